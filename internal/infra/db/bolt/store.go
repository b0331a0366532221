// Package bolt is an embedded KV store on top of bbolt. Entries carry their
// own expiry; expired entries read as absent and are purged by Sweep.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"license-activation/internal/domain"
	"license-activation/internal/domain/ports/repository"
)

var (
	_ repository.KV      = (*Store)(nil)
	_ repository.Counter = (*Store)(nil)
)

var bucketKV = []byte("kv")

// header is the 8-byte big-endian unix-nano expiry; zero means no expiry.
const headerLen = 8

type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v, ok := s.read(tx.Bucket(bucketKV), []byte(key))
		if !ok {
			return domain.ErrNotFound
		}
		out = v
		return nil
	})
	return out, err
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), s.encode(value, ttl))
	})
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if _, ok := s.read(b, []byte(key)); ok {
			return nil
		}
		created = true
		return b.Put([]byte(key), s.encode(value, ttl))
	})
	return created, err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
}

// List scans keys in byte order.
func (s *Store) List(ctx context.Context, prefix, cursor string, limit int) (repository.KeyPage, error) {
	var page repository.KeyPage
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		p := []byte(prefix)
		start := p
		if cursor != "" {
			start = []byte(cursor)
		}
		now := s.now()
		for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if cursor != "" && string(k) == cursor {
				continue
			}
			if expired(v, now) {
				continue
			}
			if limit > 0 && len(page.Keys) == limit {
				page.Cursor = page.Keys[len(page.Keys)-1]
				return nil
			}
			page.Keys = append(page.Keys, string(k))
		}
		return nil
	})
	return page, err
}

func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKV)
		raw := b.Get([]byte(key))
		if raw != nil && !expired(raw, s.now()) && len(raw) >= headerLen {
			n, _ = strconv.ParseInt(string(raw[headerLen:]), 10, 64)
			n++
			buf := make([]byte, len(raw[:headerLen]), headerLen+20)
			copy(buf, raw[:headerLen])
			return b.Put([]byte(key), strconv.AppendInt(buf, n, 10))
		}
		n = 1
		return b.Put([]byte(key), s.encode([]byte("1"), window))
	})
	return n, err
}

// Sweep deletes expired entries and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKV)
		now := s.now()
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if expired(v, now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (s *Store) read(b *bbolt.Bucket, key []byte) ([]byte, bool) {
	raw := b.Get(key)
	if raw == nil || len(raw) < headerLen || expired(raw, s.now()) {
		return nil, false
	}
	return append([]byte(nil), raw[headerLen:]...), true
}

func (s *Store) encode(value []byte, ttl time.Duration) []byte {
	buf := make([]byte, headerLen+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(s.now().Add(ttl).UnixNano()))
	}
	copy(buf[headerLen:], value)
	return buf
}

func expired(raw []byte, now time.Time) bool {
	if len(raw) < headerLen {
		return true
	}
	at := binary.BigEndian.Uint64(raw[:headerLen])
	return at != 0 && now.UnixNano() >= int64(at)
}
