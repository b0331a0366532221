// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fixedClock is a settable time source.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fixedClock { return &fixedClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memLedger is an in-memory ActivationRepository.
type memLedger struct {
	mu      sync.Mutex
	byCode  map[string]*model.Activation
	devices map[string]*model.Activation

	// beforeCreate runs inside CreateByCode before the existence check, so a
	// test can slip in a competing writer.
	beforeCreate func()
	createErr    error
	saveErr      error
	deleteErr    error
	deleted      []string
}

func newMemLedger() *memLedger {
	return &memLedger{byCode: map[string]*model.Activation{}, devices: map[string]*model.Activation{}}
}

func deviceIndex(deviceID, bundleID string) string {
	if bundleID == "" {
		return deviceID
	}
	return deviceID + ":" + bundleID
}

func (m *memLedger) FindByCode(ctx context.Context, code string) (*model.Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byCode[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memLedger) FindByDevice(ctx context.Context, deviceID, bundleID string) (*model.Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.devices[deviceIndex(deviceID, bundleID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memLedger) CreateByCode(ctx context.Context, a *model.Activation) (bool, error) {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		hook()
	}
	if m.createErr != nil {
		return false, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCode[a.Code]; ok {
		return false, nil
	}
	cp := *a
	m.byCode[a.Code] = &cp
	return true, nil
}

func (m *memLedger) SaveDevice(ctx context.Context, a *model.Activation) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.devices[deviceIndex(a.DeviceID, a.BundleID)] = &cp
	return nil
}

func (m *memLedger) DeleteDevice(ctx context.Context, deviceID, bundleID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := deviceIndex(deviceID, bundleID)
	delete(m.devices, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// put seeds a binding in both indexes.
func (m *memLedger) put(a *model.Activation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.byCode[a.Code] = &cp
	m.devices[deviceIndex(a.DeviceID, a.BundleID)] = &cp
}

// memPoolRepo is an in-memory CodePoolRepository.
type memPoolRepo struct {
	mu        sync.Mutex
	pool      *model.CodePool
	fetchedAt time.Time
	removed   *model.CodeSet
	saves     int
	saveErr   error
	loadErr   error
}

func newMemPoolRepo() *memPoolRepo { return &memPoolRepo{} }

func (m *memPoolRepo) Load(ctx context.Context) (*model.CodePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.pool == nil {
		return nil, domain.ErrNotFound
	}
	p := m.pool.Clone()
	p.FetchedAt = m.fetchedAt
	return p, nil
}

func (m *memPoolRepo) Save(ctx context.Context, pool *model.CodePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.pool = pool.Clone()
	m.saves++
	return nil
}

func (m *memPoolRepo) MarkFetched(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchedAt = at
	return nil
}

func (m *memPoolRepo) LoadRemoved(ctx context.Context) (*model.CodeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed == nil {
		return model.NewCodeSet(), nil
	}
	return model.NewCodeSet(m.removed.Codes()...), nil
}

func (m *memPoolRepo) SaveRemoved(ctx context.Context, removed *model.CodeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = model.NewCodeSet(removed.Codes()...)
	return nil
}

// seed stores a pool fetched at the given instant.
func (m *memPoolRepo) seed(pool *model.CodePool, fetchedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool = pool.Clone()
	m.fetchedAt = fetchedAt
}

func (m *memPoolRepo) stored() *model.CodePool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Clone()
}

// fakeSource serves a fixed snapshot and counts fetches.
type fakeSource struct {
	mu    sync.Mutex
	pool  *model.CodePool
	err   error
	calls int

	// when gate is set, Fetch signals started and waits for gate or ctx.
	gate    chan struct{}
	started chan struct{}
}

func newFakeSource(monthly, yearly []string) *fakeSource {
	p := model.NewCodePool()
	p.Tier(model.TierMonthly).Add(monthly...)
	p.Tier(model.TierYearly).Add(yearly...)
	return &fakeSource{pool: p}
}

func (f *fakeSource) Fetch(ctx context.Context) (*model.CodePool, error) {
	f.mu.Lock()
	f.calls++
	gate, started := f.gate, f.started
	f.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.pool.Clone(), nil
}

func (f *fakeSource) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memUsage is an in-memory UsageRepository.
type memUsage struct {
	mu      sync.Mutex
	records map[string]*model.UsageRecord
	err     error
}

func newMemUsage() *memUsage { return &memUsage{records: map[string]*model.UsageRecord{}} }

func (m *memUsage) Record(ctx context.Context, rec *model.UsageRecord) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Code]; ok {
		return nil
	}
	cp := *rec
	m.records[rec.Code] = &cp
	return nil
}

func (m *memUsage) List(ctx context.Context, limit int, cursor string) ([]*model.UsageRecord, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.UsageRecord, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	if len(out) > limit {
		out = out[:limit]
		return out, "more", nil
	}
	return out, "", nil
}

// seqGenerator replays a fixed list of codes.
type seqGenerator struct {
	codes []string
	i     int
}

func (g *seqGenerator) Generate() (string, error) {
	if g.i >= len(g.codes) {
		return "", errors.New("sequence exhausted")
	}
	c := g.codes[g.i]
	g.i++
	return c, nil
}

// counterGenerator yields RY00000001, RY00000002, ...
type counterGenerator struct{ n int }

func (g *counterGenerator) Generate() (string, error) {
	g.n++
	return fmt.Sprintf("RY%08d", g.n), nil
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	seen []*model.Activation
	err  error
}

func (f *fakeNotifier) NotifyActivation(ctx context.Context, a *model.Activation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, a)
	return f.err
}
