package model

import "time"

// Activation is the durable binding of a code to a device, optionally scoped
// to one client application (bundle). It is written once per code; the
// device-keyed mirror is a copy of the same record.
type Activation struct {
	Code         string `json:"code"`
	Type         Tier   `json:"type"`
	DeviceID     string `json:"deviceId"`
	DeviceName   string `json:"deviceName,omitempty"`
	BundleID     string `json:"bundleId,omitempty"`
	Start        int64  `json:"start"`
	DurationDays int    `json:"durationDays"`
	ActivatedAt  string `json:"activatedAt"`
}

// NewActivation stamps a fresh binding starting at now.
func NewActivation(code string, tier Tier, durationDays int, deviceID, deviceName, bundleID string, now time.Time) *Activation {
	return &Activation{
		Code:         code,
		Type:         tier,
		DeviceID:     deviceID,
		DeviceName:   deviceName,
		BundleID:     bundleID,
		Start:        now.Unix(),
		DurationDays: durationDays,
		ActivatedAt:  now.UTC().Format(time.RFC3339),
	}
}

// UsageRecord is the audit copy of an activation. Same shape, never updated.
type UsageRecord = Activation

// ActivationStatus is the computed view returned by status queries and
// activation attempts.
type ActivationStatus struct {
	Active        bool   `json:"active"`
	Type          Tier   `json:"type,omitempty"`
	Code          string `json:"code,omitempty"`
	DeviceName    string `json:"deviceName,omitempty"`
	BundleID      string `json:"bundleId,omitempty"`
	Start         int64  `json:"start,omitempty"`
	DurationDays  int    `json:"durationDays,omitempty"`
	ExpiresAt     int64  `json:"expiresAt,omitempty"`
	RemainingDays int    `json:"remainingDays"`
}
