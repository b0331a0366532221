package repository

import (
	"context"

	"license-activation/internal/domain/model"
)

// ActivationRepository is the ledger port. The code-keyed index is
// authoritative; the device-keyed index is a mirror used for status queries
// and idempotent re-entry.
type ActivationRepository interface {
	// FindByCode returns domain.ErrNotFound when the code was never bound.
	FindByCode(ctx context.Context, code string) (*model.Activation, error)
	// FindByDevice looks up the device (and bundle, when non-empty) mirror.
	FindByDevice(ctx context.Context, deviceID, bundleID string) (*model.Activation, error)
	// CreateByCode writes the code-keyed record only if none exists and
	// reports whether this call won.
	CreateByCode(ctx context.Context, a *model.Activation) (bool, error)
	// SaveDevice writes the device-keyed mirror of a.
	SaveDevice(ctx context.Context, a *model.Activation) error
	// DeleteDevice removes a device mirror. Missing keys are not an error.
	DeleteDevice(ctx context.Context, deviceID, bundleID string) error
}
