package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

type usageRepo struct {
	kv  repository.KV
	ttl time.Duration
	log *zerolog.Logger
}

func NewUsageRepo(kv repository.KV, ttl time.Duration, logger *zerolog.Logger) repository.UsageRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &usageRepo{kv: kv, ttl: ttl, log: logger}
}

func (r *usageRepo) Record(ctx context.Context, rec *model.UsageRecord) error {
	key := usageKey(rec.Code)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	created, err := r.kv.PutIfAbsent(ctx, key, data, r.ttl)
	if err != nil {
		return storeErr("put-if-absent", key, err)
	}
	if !created {
		r.log.Warn().Str("key", key).Msg("usage record already present; kept original")
	}
	return nil
}

// List is best-effort: entries that vanish or fail to decode between the
// scan and the read are skipped.
func (r *usageRepo) List(ctx context.Context, limit int, cursor string) ([]*model.UsageRecord, string, error) {
	page, err := r.kv.List(ctx, prefixUsage, cursor, limit)
	if err != nil {
		return nil, "", storeErr("list", prefixUsage, err)
	}
	out := make([]*model.UsageRecord, 0, len(page.Keys))
	for _, key := range page.Keys {
		data, err := r.kv.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				r.log.Warn().Err(err).Str("key", key).Msg("skipping unreadable usage entry")
			}
			continue
		}
		var rec model.UsageRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("skipping corrupt usage entry")
			continue
		}
		out = append(out, &rec)
	}
	return out, page.Cursor, nil
}
