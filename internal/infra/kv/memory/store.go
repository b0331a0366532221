// Package memory is an in-process KV store used in development and tests.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"license-activation/internal/domain"
	"license-activation/internal/domain/ports/repository"
)

var (
	_ repository.KV      = (*Store)(nil)
	_ repository.Counter = (*Store)(nil)
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

func New() *Store {
	return &Store{data: make(map[string]entry), now: time.Now}
}

// NewWithClock lets tests control TTL expiry.
func NewWithClock(now func() time.Time) *Store {
	return &Store{data: make(map[string]entry), now: now}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok || e.expired(s.now()) {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = s.entry(value, ttl)
	return nil
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[key]; ok && !e.expired(s.now()) {
		return false, nil
	}
	s.data[key] = s.entry(value, ttl)
	return true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) List(ctx context.Context, prefix, cursor string, limit int) (repository.KeyPage, error) {
	s.mu.RLock()
	now := s.now()
	keys := make([]string, 0)
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) && k > cursor && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	if limit <= 0 || len(keys) <= limit {
		return repository.KeyPage{Keys: keys}, nil
	}
	keys = keys[:limit]
	return repository.KeyPage{Keys: keys, Cursor: keys[len(keys)-1]}, nil
}

func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	e, ok := s.data[key]
	if ok && !e.expired(s.now()) {
		n = decodeCount(e.value)
	} else {
		e = s.entry(nil, window)
	}
	n++
	e.value = encodeCount(n)
	s.data[key] = e
	return n, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) entry(value []byte, ttl time.Duration) entry {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}

func encodeCount(n int64) []byte { return []byte(strconv.FormatInt(n, 10)) }

func decodeCount(b []byte) int64 {
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}
