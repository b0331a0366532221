package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/repository"
)

var _ repository.CodePoolRepository = (*codePoolRepo)(nil)

type codePoolRepo struct {
	kv repository.KV
}

// NewCodePoolRepo persists the pool without expiry; freshness is tracked by
// the allowed-codes:last marker.
func NewCodePoolRepo(kv repository.KV) repository.CodePoolRepository {
	return &codePoolRepo{kv: kv}
}

func (r *codePoolRepo) Load(ctx context.Context) (*model.CodePool, error) {
	data, err := r.kv.Get(ctx, keyAllowedCodes)
	if err != nil {
		return nil, storeErr("get", keyAllowedCodes, err)
	}
	pool := model.NewCodePool()
	if err := json.Unmarshal(data, pool); err != nil {
		return nil, storeErr("decode", keyAllowedCodes, err)
	}

	last, err := r.kv.Get(ctx, keyAllowedLast)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, storeErr("get", keyAllowedLast, err)
	default:
		if secs, perr := strconv.ParseInt(strings.TrimSpace(string(last)), 10, 64); perr == nil {
			pool.FetchedAt = time.Unix(secs, 0)
		}
	}
	return pool, nil
}

func (r *codePoolRepo) Save(ctx context.Context, pool *model.CodePool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return storeErr("put", keyAllowedCodes, r.kv.Put(ctx, keyAllowedCodes, data, 0))
}

func (r *codePoolRepo) MarkFetched(ctx context.Context, at time.Time) error {
	v := []byte(strconv.FormatInt(at.Unix(), 10))
	return storeErr("put", keyAllowedLast, r.kv.Put(ctx, keyAllowedLast, v, 0))
}

// LoadRemoved never returns domain.ErrNotFound; a missing key is an empty set.
func (r *codePoolRepo) LoadRemoved(ctx context.Context) (*model.CodeSet, error) {
	data, err := r.kv.Get(ctx, keyAllowedRemoved)
	if errors.Is(err, domain.ErrNotFound) {
		return model.NewCodeSet(), nil
	}
	if err != nil {
		return nil, storeErr("get", keyAllowedRemoved, err)
	}
	set := model.NewCodeSet()
	if err := json.Unmarshal(data, set); err != nil {
		return nil, storeErr("decode", keyAllowedRemoved, err)
	}
	return set, nil
}

func (r *codePoolRepo) SaveRemoved(ctx context.Context, removed *model.CodeSet) error {
	data, err := json.Marshal(removed)
	if err != nil {
		return err
	}
	return storeErr("put", keyAllowedRemoved, r.kv.Put(ctx, keyAllowedRemoved, data, 0))
}
