// Package kvtest holds the behaviour every repository.KV implementation
// must share. Store packages call Run from their own tests.
package kvtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-activation/internal/domain"
	"license-activation/internal/domain/ports/repository"
)

// Factory returns an empty store. Run closes it when the subtest ends.
type Factory func(t *testing.T) repository.KV

func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) repository.KV {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("missing key is ErrNotFound", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Put(ctx, "code:A", []byte(`{"code":"A"}`), 0))

		got, err := s.Get(ctx, "code:A")
		require.NoError(t, err)
		assert.Equal(t, `{"code":"A"}`, string(got))
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Put(ctx, "k", []byte("1"), time.Hour))
		require.NoError(t, s.Put(ctx, "k", []byte("2"), time.Hour))

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "2", string(got))
	})

	t.Run("put if absent only writes once", func(t *testing.T) {
		s := open(t)
		created, err := s.PutIfAbsent(ctx, "code:B", []byte("first"), time.Hour)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.PutIfAbsent(ctx, "code:B", []byte("second"), time.Hour)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := s.Get(ctx, "code:B")
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))
	})

	t.Run("concurrent put if absent has one winner", func(t *testing.T) {
		s := open(t)
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.PutIfAbsent(ctx, "code:RACE", []byte(fmt.Sprint(i)), time.Hour)
				assert.NoError(t, err)
				if ok {
					atomic.AddInt32(&wins, 1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Put(ctx, "device:X", []byte("v"), 0))
		require.NoError(t, s.Delete(ctx, "device:X"))
		require.NoError(t, s.Delete(ctx, "device:X"))

		_, err := s.Get(ctx, "device:X")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list pages through a prefix", func(t *testing.T) {
		s := open(t)
		want := make([]string, 0, 7)
		for i := 0; i < 7; i++ {
			k := fmt.Sprintf("usage:C%02d", i)
			want = append(want, k)
			require.NoError(t, s.Put(ctx, k, []byte("x"), 0))
		}
		require.NoError(t, s.Put(ctx, "code:C00", []byte("x"), 0))

		var got []string
		cursor := ""
		for pages := 0; ; pages++ {
			require.Less(t, pages, 20, "list did not terminate")
			page, err := s.List(ctx, "usage:", cursor, 3)
			require.NoError(t, err)
			got = append(got, page.Keys...)
			if page.Cursor == "" {
				break
			}
			cursor = page.Cursor
		}
		sort.Strings(got)
		assert.Equal(t, want, got)
	})

	t.Run("list of an empty prefix", func(t *testing.T) {
		s := open(t)
		page, err := s.List(ctx, "usage:", "", 10)
		require.NoError(t, err)
		assert.Empty(t, page.Keys)
		assert.Empty(t, page.Cursor)
	})

	probe := newStore(t)
	_, counts := probe.(repository.Counter)
	_ = probe.Close()
	if counts {
		t.Run("incr counts within a window", func(t *testing.T) {
			s := open(t)
			c := s.(repository.Counter)
			for want := int64(1); want <= 3; want++ {
				n, err := c.Incr(ctx, "rate_limit:activate:dev-1", time.Minute)
				require.NoError(t, err)
				assert.Equal(t, want, n)
			}
			n, err := c.Incr(ctx, "rate_limit:activate:dev-2", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}
}
