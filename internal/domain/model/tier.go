package model

import (
	"strings"

	"license-activation/internal/domain"
)

// Tier is the subscription class of a code. It determines how long an
// activation stays valid.
type Tier string

const (
	TierMonthly Tier = "monthly"
	TierYearly  Tier = "yearly"
)

// Tiers lists every tier in classification precedence order.
var Tiers = []Tier{TierMonthly, TierYearly}

// ParseTier accepts the wire name of a tier, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierMonthly:
		return TierMonthly, nil
	case TierYearly:
		return TierYearly, nil
	}
	return "", domain.ErrUnknownTier
}

func (t Tier) String() string { return string(t) }

// Durations maps tiers to their validity in days.
type Durations map[Tier]int

// DefaultDurations are 30 days for monthly codes and 365 for yearly ones.
func DefaultDurations() Durations {
	return Durations{TierMonthly: 30, TierYearly: 365}
}

func (d Durations) Days(t Tier) int {
	if n, ok := d[t]; ok && n > 0 {
		return n
	}
	return DefaultDurations()[t]
}
