package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/adapter"
	"license-activation/internal/domain/ports/repository"
	"license-activation/internal/infra/logging"
)

const maxIdentityLength = 256

// ActivateRequest is one activation attempt.
type ActivateRequest struct {
	DeviceID   string
	Code       string
	BundleID   string
	DeviceName string
}

// ActivationResult is returned on success. Reentry is set when the code was
// already bound to the same device and bundle and nothing was written.
type ActivationResult struct {
	model.ActivationStatus
	Reentry bool
}

// ActivationUseCase binds one-time codes to devices and answers status
// queries.
type ActivationUseCase interface {
	Activate(ctx context.Context, req ActivateRequest) (*ActivationResult, error)
	Status(ctx context.Context, deviceID, bundleID string) (*model.ActivationStatus, error)
}

// AttemptLimiter bounds activation attempts per key.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ActivationOptions tunes the ledger. Zero values select defaults.
type ActivationOptions struct {
	Durations model.Durations
	// PruneLegacyDeviceKey deletes the unscoped device:<id> mirror after a
	// bundle-scoped activation.
	PruneLegacyDeviceKey bool
	Limiter              AttemptLimiter
	Notifier             adapter.ActivationNotifier
	Now                  func() time.Time
}

var _ ActivationUseCase = (*activationUC)(nil)

type activationUC struct {
	ledger repository.ActivationRepository
	pools  CodePoolUseCase
	usage  repository.UsageRepository
	opts   ActivationOptions
	log    *zerolog.Logger
}

func NewActivationUseCase(
	ledger repository.ActivationRepository,
	pools CodePoolUseCase,
	usage repository.UsageRepository,
	opts ActivationOptions,
	logger *zerolog.Logger,
) ActivationUseCase {
	if opts.Durations == nil {
		opts.Durations = model.DefaultDurations()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "ActivationUC").Logger()
	return &activationUC{ledger: ledger, pools: pools, usage: usage, opts: opts, log: &l}
}

// bindingState is where a code stands relative to one incoming request.
type bindingState int

const (
	stateUnseen bindingState = iota
	stateBoundSameIdentity
	stateBoundForeignDevice
	stateBoundForeignApplication
)

func (s bindingState) String() string {
	switch s {
	case stateUnseen:
		return "unseen"
	case stateBoundSameIdentity:
		return "bound_same_identity"
	case stateBoundForeignDevice:
		return "bound_foreign_device"
	case stateBoundForeignApplication:
		return "bound_foreign_application"
	}
	return "unknown"
}

// resolveBinding classifies the code-keyed record against the requester.
func resolveBinding(existing *model.Activation, deviceID, bundleID string) bindingState {
	switch {
	case existing == nil:
		return stateUnseen
	case existing.DeviceID != deviceID:
		return stateBoundForeignDevice
	case existing.BundleID != bundleID:
		return stateBoundForeignApplication
	default:
		return stateBoundSameIdentity
	}
}

func (uc *activationUC) Activate(ctx context.Context, req ActivateRequest) (*ActivationResult, error) {
	req = normalizeRequest(req)
	if req.Code == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := validateIdentity(req.DeviceID, req.BundleID); err != nil {
		return nil, err
	}
	log := logging.With(logging.WithDeviceID(ctx, req.DeviceID), uc.log)
	defer logging.TraceDuration(log, "ActivationUC.Activate")()

	if uc.opts.Limiter != nil {
		ok, err := uc.opts.Limiter.Allow(ctx, req.DeviceID)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable; allowing attempt")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	existing, err := uc.findByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	return uc.transition(ctx, log, req, existing, true)
}

func (uc *activationUC) transition(ctx context.Context, log *zerolog.Logger, req ActivateRequest, existing *model.Activation, mayRetry bool) (*ActivationResult, error) {
	state := resolveBinding(existing, req.DeviceID, req.BundleID)
	log.Debug().Str("state", state.String()).Msg("activation state resolved")

	switch state {
	case stateBoundForeignDevice:
		return nil, domain.ErrForeignDeviceReuse
	case stateBoundForeignApplication:
		return nil, domain.ErrCrossApplicationReuse
	case stateBoundSameIdentity:
		st := uc.statusOf(existing)
		if !st.Active {
			return nil, domain.ErrExpiredActivation
		}
		return &ActivationResult{ActivationStatus: *st, Reentry: true}, nil
	default:
		return uc.bind(ctx, log, req, mayRetry)
	}
}

// bind creates a new binding for an unseen code. The code key is claimed
// with a conditional write; a request that loses the claim is resolved
// against the winner's record.
func (uc *activationUC) bind(ctx context.Context, log *zerolog.Logger, req ActivateRequest, mayRetry bool) (*ActivationResult, error) {
	pool, err := uc.pools.GetAllowed(ctx)
	if err != nil {
		return nil, err
	}
	tier, ok := ResolveType(req.Code, pool)
	if !ok {
		return nil, domain.ErrInvalidCode
	}

	a := model.NewActivation(req.Code, tier, uc.opts.Durations.Days(tier), req.DeviceID, req.DeviceName, req.BundleID, uc.opts.Now())
	won, err := uc.ledger.CreateByCode(ctx, a)
	if err != nil {
		return nil, err
	}
	if !won {
		winner, err := uc.findByCode(ctx, req.Code)
		if err != nil {
			return nil, err
		}
		if winner == nil || !mayRetry {
			return nil, fmt.Errorf("%w: code %s claimed concurrently", domain.ErrStoreFailure, req.Code)
		}
		log.Info().Msg("lost activation race; resolving against winner")
		return uc.transition(ctx, log, req, winner, false)
	}
	if err := uc.ledger.SaveDevice(ctx, a); err != nil {
		return nil, err
	}

	uc.afterBind(ctx, log, a)
	log.Info().Str("type", tier.String()).Str("bundle_id", a.BundleID).Msg("code activated")
	return &ActivationResult{ActivationStatus: *uc.statusOf(a)}, nil
}

// afterBind runs the non-critical side effects of a new binding. Failures
// are logged and never undo the ledger write.
func (uc *activationUC) afterBind(ctx context.Context, log *zerolog.Logger, a *model.Activation) {
	if a.BundleID != "" && uc.opts.PruneLegacyDeviceKey {
		if err := uc.ledger.DeleteDevice(ctx, a.DeviceID, ""); err != nil {
			log.Warn().Err(err).Msg("legacy device key cleanup failed")
		}
	}
	if err := uc.pools.Consume(ctx, a.Type, a.Code); err != nil {
		log.Warn().Err(err).Msg("pool pruning failed")
	}
	if uc.usage != nil {
		if err := uc.usage.Record(ctx, a); err != nil {
			log.Warn().Err(err).Msg("usage log append failed")
		}
	}
	if uc.opts.Notifier != nil {
		if err := uc.opts.Notifier.NotifyActivation(ctx, a); err != nil {
			log.Warn().Err(err).Msg("activation notification failed")
		}
	}
}

func (uc *activationUC) Status(ctx context.Context, deviceID, bundleID string) (*model.ActivationStatus, error) {
	deviceID = strings.TrimSpace(deviceID)
	bundleID = strings.TrimSpace(bundleID)
	if err := validateIdentity(deviceID, bundleID); err != nil {
		return nil, err
	}
	a, err := uc.ledger.FindByDevice(ctx, deviceID, bundleID)
	if errors.Is(err, domain.ErrNotFound) {
		return &model.ActivationStatus{Active: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return uc.statusOf(a), nil
}

func (uc *activationUC) statusOf(a *model.Activation) *model.ActivationStatus {
	expiresAt, remaining := ComputeExpiry(a.Start, a.DurationDays, uc.opts.Now())
	return &model.ActivationStatus{
		Active:        remaining > 0,
		Type:          a.Type,
		Code:          a.Code,
		DeviceName:    a.DeviceName,
		BundleID:      a.BundleID,
		Start:         a.Start,
		DurationDays:  a.DurationDays,
		ExpiresAt:     expiresAt,
		RemainingDays: remaining,
	}
}

func (uc *activationUC) findByCode(ctx context.Context, code string) (*model.Activation, error) {
	a, err := uc.ledger.FindByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// validateIdentity checks the device and bundle pair used to key the device
// mirror. The device id may not contain ':', which separates it from the
// bundle in the key.
func validateIdentity(deviceID, bundleID string) error {
	if deviceID == "" || strings.Contains(deviceID, ":") {
		return domain.ErrInvalidInput
	}
	if len(deviceID) > maxIdentityLength || len(bundleID) > maxIdentityLength {
		return domain.ErrInvalidInput
	}
	return nil
}

func normalizeRequest(req ActivateRequest) ActivateRequest {
	return ActivateRequest{
		DeviceID:   strings.TrimSpace(req.DeviceID),
		Code:       strings.TrimSpace(req.Code),
		BundleID:   strings.TrimSpace(req.BundleID),
		DeviceName: strings.TrimSpace(req.DeviceName),
	}
}
