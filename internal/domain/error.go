package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Activation errors
	ErrInvalidInput          = errors.New("deviceId or code missing")
	ErrInvalidCode           = errors.New("code is invalid or not supported")
	ErrForeignDeviceReuse    = errors.New("code was already used on another device")
	ErrCrossApplicationReuse = errors.New("code was already used by another application on this device")
	ErrExpiredActivation     = errors.New("previous activation of this code on this device has expired")
	ErrPoolUnavailable       = errors.New("allowed codes unavailable")
	ErrStoreFailure          = errors.New("store operation failed")
	ErrRateLimited           = errors.New("too many activation attempts")
	ErrUnknownTier           = errors.New("unknown code type")
)

// Error kinds reported to callers alongside the message.
const (
	KindInvalidInput          = "InvalidInput"
	KindInvalidCode           = "InvalidCode"
	KindForeignDeviceReuse    = "ForeignDeviceReuse"
	KindCrossApplicationReuse = "CrossApplicationReuse"
	KindExpiredActivation     = "ExpiredActivation"
	KindPoolUnavailable       = "PoolUnavailable"
	KindStoreFailure          = "StoreFailure"
	KindRateLimited           = "RateLimited"
	KindInternal              = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrInvalidArgument, KindInvalidInput},
	{ErrUnknownTier, KindInvalidInput},
	{ErrInvalidCode, KindInvalidCode},
	{ErrForeignDeviceReuse, KindForeignDeviceReuse},
	{ErrCrossApplicationReuse, KindCrossApplicationReuse},
	{ErrExpiredActivation, KindExpiredActivation},
	{ErrPoolUnavailable, KindPoolUnavailable},
	{ErrStoreFailure, KindStoreFailure},
	{ErrRateLimited, KindRateLimited},
}

// KindOf maps err onto the error taxonomy. Unrecognised errors are Internal.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
