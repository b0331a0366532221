package repository

import (
	"context"
	"time"
)

// KV is the associative store every piece of state lives in. Individual
// operations may be eventually consistent; there are no multi-key
// transactions.
//
// Implementations return domain.ErrNotFound from Get when the key is absent
// or its TTL has lapsed. A ttl <= 0 means the entry never expires.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent writes value only when key does not exist and reports
	// whether this call created it.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	// List returns up to limit keys with the given prefix, starting after
	// cursor. An empty returned cursor means the scan is complete.
	List(ctx context.Context, prefix, cursor string, limit int) (KeyPage, error)
	Close() error
}

// KeyPage is one page of a prefix scan.
type KeyPage struct {
	Keys   []string
	Cursor string
}

// Counter is implemented by stores that can increment a key atomically.
// The window is applied as the key's TTL when the counter is created.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}
