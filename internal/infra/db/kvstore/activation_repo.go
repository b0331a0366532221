package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/repository"
)

var _ repository.ActivationRepository = (*activationRepo)(nil)

type activationRepo struct {
	kv  repository.KV
	ttl time.Duration
}

// NewActivationRepo stores ledger records with the given retention TTL.
// The TTL bounds storage only; validity is computed from start and duration.
func NewActivationRepo(kv repository.KV, ttl time.Duration) repository.ActivationRepository {
	return &activationRepo{kv: kv, ttl: ttl}
}

func (r *activationRepo) FindByCode(ctx context.Context, code string) (*model.Activation, error) {
	return r.get(ctx, codeKey(code))
}

func (r *activationRepo) FindByDevice(ctx context.Context, deviceID, bundleID string) (*model.Activation, error) {
	return r.get(ctx, deviceKey(deviceID, bundleID))
}

func (r *activationRepo) CreateByCode(ctx context.Context, a *model.Activation) (bool, error) {
	key := codeKey(a.Code)
	data, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("encode activation: %w", err)
	}
	ok, err := r.kv.PutIfAbsent(ctx, key, data, r.ttl)
	if err != nil {
		return false, storeErr("put-if-absent", key, err)
	}
	return ok, nil
}

func (r *activationRepo) SaveDevice(ctx context.Context, a *model.Activation) error {
	key := deviceKey(a.DeviceID, a.BundleID)
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode activation: %w", err)
	}
	return storeErr("put", key, r.kv.Put(ctx, key, data, r.ttl))
}

func (r *activationRepo) DeleteDevice(ctx context.Context, deviceID, bundleID string) error {
	key := deviceKey(deviceID, bundleID)
	return storeErr("delete", key, r.kv.Delete(ctx, key))
}

func (r *activationRepo) get(ctx context.Context, key string) (*model.Activation, error) {
	data, err := r.kv.Get(ctx, key)
	if err != nil {
		return nil, storeErr("get", key, err)
	}
	var a model.Activation
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, storeErr("decode", key, err)
	}
	return &a, nil
}
