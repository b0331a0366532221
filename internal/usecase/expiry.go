package usecase

import "time"

const secondsPerDay = 24 * 60 * 60

// ComputeExpiry returns the expiry instant (unix seconds) of a binding that
// started at start and lasts durationDays, and the whole days left at now.
// Partial days are truncated, so a binding with less than a day left reports
// zero remaining days and is treated as expired.
func ComputeExpiry(start int64, durationDays int, now time.Time) (expiresAt int64, remainingDays int) {
	expiresAt = start + int64(durationDays)*secondsPerDay
	left := time.Unix(expiresAt, 0).Sub(now)
	if left < 0 {
		left = 0
	}
	return expiresAt, int(left / (secondsPerDay * time.Second))
}
