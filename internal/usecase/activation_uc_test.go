package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
)

const day = 24 * time.Hour

type activationFixture struct {
	clock    *fixedClock
	ledger   *memLedger
	repo     *memPoolRepo
	source   *fakeSource
	usage    *memUsage
	limiter  *fakeLimiter
	notifier *fakeNotifier
	uc       ActivationUseCase
}

func newActivationFixture(prune bool) *activationFixture {
	f := &activationFixture{
		clock:    newClock(),
		ledger:   newMemLedger(),
		repo:     newMemPoolRepo(),
		source:   newFakeSource([]string{"RYMONTH001", "RYMONTH002"}, []string{"RYYEAR0001"}),
		usage:    newMemUsage(),
		limiter:  &fakeLimiter{allow: true},
		notifier: &fakeNotifier{},
	}
	pools := NewCodePoolUseCase(f.repo, f.source, PoolOptions{PersistRemovals: true, Now: f.clock.Now}, newTestLogger())
	f.uc = NewActivationUseCase(f.ledger, pools, f.usage, ActivationOptions{
		PruneLegacyDeviceKey: prune,
		Limiter:              f.limiter,
		Notifier:             f.notifier,
		Now:                  f.clock.Now,
	}, newTestLogger())
	return f
}

// bound seeds a binding that started ago before the fixture clock.
func (f *activationFixture) bound(code string, tier model.Tier, days int, deviceID, bundleID string, ago time.Duration) {
	f.ledger.put(model.NewActivation(code, tier, days, deviceID, "seeded", bundleID, f.clock.Now().Add(-ago)))
}

func TestActivate_FirstUse(t *testing.T) {
	ctx := context.Background()

	t.Run("monthly code binds for 30 days", func(t *testing.T) {
		f := newActivationFixture(false)

		res, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001", DeviceName: "Pixel"})

		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if res.Reentry || !res.Active || res.Type != model.TierMonthly || res.RemainingDays != 30 || res.DurationDays != 30 {
			t.Fatalf("unexpected result: %+v", res)
		}
		now := f.clock.Now().Unix()
		if res.Start != now || res.ExpiresAt != now+30*86400 {
			t.Fatalf("start=%d expiresAt=%d", res.Start, res.ExpiresAt)
		}
		if _, err := f.ledger.FindByCode(ctx, "RYMONTH001"); err != nil {
			t.Fatalf("code key missing: %v", err)
		}
		mirror, err := f.ledger.FindByDevice(ctx, "dev-1", "")
		if err != nil || mirror.Code != "RYMONTH001" || mirror.DeviceName != "Pixel" {
			t.Fatalf("device mirror = %+v, %v", mirror, err)
		}
		if f.repo.stored().Contains("RYMONTH001") {
			t.Fatal("bound code still in pool")
		}
		if _, ok := f.usage.records["RYMONTH001"]; !ok {
			t.Fatal("usage not recorded")
		}
		if len(f.notifier.seen) != 1 || f.notifier.seen[0].Code != "RYMONTH001" {
			t.Fatalf("notifier saw %v", f.notifier.seen)
		}
	})

	t.Run("yearly code binds for 365 days", func(t *testing.T) {
		f := newActivationFixture(false)

		res, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYYEAR0001"})

		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if res.Type != model.TierYearly || res.RemainingDays != 365 {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("bundle-scoped binding writes the scoped mirror", func(t *testing.T) {
		f := newActivationFixture(false)

		res, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001", BundleID: "com.example.app"})

		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if res.BundleID != "com.example.app" {
			t.Fatalf("bundle = %q", res.BundleID)
		}
		if _, err := f.ledger.FindByDevice(ctx, "dev-1", "com.example.app"); err != nil {
			t.Fatalf("scoped mirror missing: %v", err)
		}
		if _, err := f.ledger.FindByDevice(ctx, "dev-1", ""); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("unexpected unscoped mirror: %v", err)
		}
		if len(f.ledger.deleted) != 0 {
			t.Fatalf("prune disabled but deleted %v", f.ledger.deleted)
		}
	})

	t.Run("input is trimmed", func(t *testing.T) {
		f := newActivationFixture(false)

		res, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "  dev-1 ", Code: " RYMONTH001\n"})

		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if res.Code != "RYMONTH001" {
			t.Fatalf("code = %q", res.Code)
		}
	})

	t.Run("unknown code is InvalidCode", func(t *testing.T) {
		f := newActivationFixture(false)

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "NOPE"})

		if !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode, got %v", err)
		}
		if len(f.ledger.byCode) != 0 {
			t.Fatal("ledger written for invalid code")
		}
	})

	t.Run("pool unavailable surfaces", func(t *testing.T) {
		f := newActivationFixture(false)
		f.source.err = errors.New("down")

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrPoolUnavailable) {
			t.Fatalf("expected ErrPoolUnavailable, got %v", err)
		}
	})
}

func TestActivate_Validation(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("x", maxIdentityLength+1)

	tests := []struct {
		name string
		req  ActivateRequest
	}{
		{"missing device", ActivateRequest{Code: "RYMONTH001"}},
		{"missing code", ActivateRequest{DeviceID: "dev-1"}},
		{"blank fields", ActivateRequest{DeviceID: "  ", Code: "\t"}},
		{"device too long", ActivateRequest{DeviceID: long, Code: "RYMONTH001"}},
		{"bundle too long", ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001", BundleID: long}},
		{"separator in device", ActivateRequest{DeviceID: "dev:com.example.app", Code: "RYMONTH001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newActivationFixture(false)

			_, err := f.uc.Activate(ctx, tt.req)

			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if f.source.fetches() != 0 || len(f.limiter.keys) != 0 {
				t.Fatal("invalid input reached the pool or limiter")
			}
		})
	}
}

func TestActivate_AlreadyBound(t *testing.T) {
	ctx := context.Background()

	t.Run("same identity re-entry returns stored data", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-1", "", 10*day)

		res, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001", DeviceName: "renamed"})

		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if !res.Reentry || res.RemainingDays != 20 || res.DeviceName != "seeded" {
			t.Fatalf("unexpected result: %+v", res)
		}
		if len(f.notifier.seen) != 0 || len(f.usage.records) != 0 {
			t.Fatal("re-entry must not have side effects")
		}
	})

	t.Run("ledger is consulted before the pool", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("CONSUMED01", model.TierYearly, 365, "dev-1", "", day)

		res, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "CONSUMED01"})

		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if !res.Reentry || f.source.fetches() != 0 {
			t.Fatalf("reentry=%v fetches=%d", res.Reentry, f.source.fetches())
		}
	})

	t.Run("same identity after expiry", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-1", "", 31*day)
		beforeCode, _ := f.ledger.FindByCode(ctx, "RYMONTH001")
		beforeDevice, _ := f.ledger.FindByDevice(ctx, "dev-1", "")

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001", DeviceName: "new name"})

		if !errors.Is(err, domain.ErrExpiredActivation) {
			t.Fatalf("expected ErrExpiredActivation, got %v", err)
		}
		afterCode, _ := f.ledger.FindByCode(ctx, "RYMONTH001")
		afterDevice, _ := f.ledger.FindByDevice(ctx, "dev-1", "")
		if !reflect.DeepEqual(beforeCode, afterCode) || !reflect.DeepEqual(beforeDevice, afterDevice) {
			t.Fatalf("expired re-entry changed the ledger:\n code %+v -> %+v\n device %+v -> %+v",
				beforeCode, afterCode, beforeDevice, afterDevice)
		}
		if len(f.usage.records) != 0 || len(f.notifier.seen) != 0 {
			t.Fatal("expired re-entry had side effects")
		}
	})

	t.Run("less than one day left counts as expired", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-1", "", 30*day-time.Hour)

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrExpiredActivation) {
			t.Fatalf("expected ErrExpiredActivation, got %v", err)
		}
	})

	t.Run("foreign device", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-other", "", day)

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrForeignDeviceReuse) {
			t.Fatalf("expected ErrForeignDeviceReuse, got %v", err)
		}
	})

	t.Run("foreign device regardless of expiry", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-other", "", 90*day)

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrForeignDeviceReuse) {
			t.Fatalf("expected ErrForeignDeviceReuse, got %v", err)
		}
	})

	t.Run("same device other bundle", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-1", "com.example.a", day)

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001", BundleID: "com.example.b"})

		if !errors.Is(err, domain.ErrCrossApplicationReuse) {
			t.Fatalf("expected ErrCrossApplicationReuse, got %v", err)
		}
	})

	t.Run("scoped binding reused without bundle", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-1", "com.example.a", day)

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrCrossApplicationReuse) {
			t.Fatalf("expected ErrCrossApplicationReuse, got %v", err)
		}
	})
}

func TestActivate_Race(t *testing.T) {
	ctx := context.Background()

	t.Run("loser against another device", func(t *testing.T) {
		f := newActivationFixture(false)
		f.ledger.beforeCreate = func() {
			f.bound("RYMONTH001", model.TierMonthly, 30, "dev-winner", "", 0)
		}

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrForeignDeviceReuse) {
			t.Fatalf("expected ErrForeignDeviceReuse, got %v", err)
		}
		if _, err := f.ledger.FindByDevice(ctx, "dev-1", ""); !errors.Is(err, domain.ErrNotFound) {
			t.Fatal("loser wrote a device mirror")
		}
		if len(f.notifier.seen) != 0 {
			t.Fatal("loser sent a notification")
		}
	})

	t.Run("loser with the same identity succeeds as re-entry", func(t *testing.T) {
		f := newActivationFixture(false)
		f.ledger.beforeCreate = func() {
			f.bound("RYMONTH001", model.TierMonthly, 30, "dev-1", "", 0)
		}

		res, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if !res.Reentry || !res.Active {
			t.Fatalf("unexpected result: %+v", res)
		}
	})
}

func TestActivate_SideEffects(t *testing.T) {
	ctx := context.Background()

	t.Run("legacy device key pruned after scoped activation", func(t *testing.T) {
		f := newActivationFixture(true)

		if _, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001", BundleID: "com.example.app"}); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if len(f.ledger.deleted) != 1 || f.ledger.deleted[0] != "dev-1" {
			t.Fatalf("deleted = %v", f.ledger.deleted)
		}
	})

	t.Run("unscoped activation prunes nothing", func(t *testing.T) {
		f := newActivationFixture(true)

		if _, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"}); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if len(f.ledger.deleted) != 0 {
			t.Fatalf("deleted = %v", f.ledger.deleted)
		}
	})

	t.Run("best-effort failures do not fail the activation", func(t *testing.T) {
		f := newActivationFixture(true)
		f.ledger.deleteErr = errors.New("delete failed")
		f.usage.err = errors.New("usage failed")
		f.notifier.err = errors.New("notify failed")

		res, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001", BundleID: "com.example.app"})

		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if !res.Active {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("code key write failure is a store failure", func(t *testing.T) {
		f := newActivationFixture(false)
		f.ledger.createErr = domain.ErrStoreFailure

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrStoreFailure) {
			t.Fatalf("expected ErrStoreFailure, got %v", err)
		}
		if len(f.notifier.seen) != 0 {
			t.Fatal("notified despite failure")
		}
	})

	t.Run("device mirror failure surfaces", func(t *testing.T) {
		f := newActivationFixture(false)
		f.ledger.saveErr = domain.ErrStoreFailure

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrStoreFailure) {
			t.Fatalf("expected ErrStoreFailure, got %v", err)
		}
	})
}

func TestActivate_RateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("denied", func(t *testing.T) {
		f := newActivationFixture(false)
		f.limiter.allow = false

		_, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"})

		if !errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if len(f.limiter.keys) != 1 || f.limiter.keys[0] != "dev-1" {
			t.Fatalf("limiter keys = %v", f.limiter.keys)
		}
		if f.source.fetches() != 0 {
			t.Fatal("denied attempt reached the pool")
		}
	})

	t.Run("limiter errors fail open", func(t *testing.T) {
		f := newActivationFixture(false)
		f.limiter.allow = false
		f.limiter.err = errors.New("counter down")

		if _, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"}); err != nil {
			t.Fatalf("Activate: %v", err)
		}
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown device is inactive", func(t *testing.T) {
		f := newActivationFixture(false)

		st, err := f.uc.Status(ctx, "dev-1", "")

		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Active || st.Code != "" {
			t.Fatalf("unexpected status: %+v", st)
		}
	})

	t.Run("active binding", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYYEAR0001", model.TierYearly, 365, "dev-1", "", 65*day)

		st, err := f.uc.Status(ctx, "dev-1", "")

		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if !st.Active || st.RemainingDays != 300 || st.Type != model.TierYearly || st.DeviceName != "seeded" {
			t.Fatalf("unexpected status: %+v", st)
		}
	})

	t.Run("expired binding is reported inactive", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-1", "", 45*day)

		st, err := f.uc.Status(ctx, "dev-1", "")

		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Active || st.RemainingDays != 0 || st.Code != "RYMONTH001" {
			t.Fatalf("unexpected status: %+v", st)
		}
	})

	t.Run("bundle scopes the lookup", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev-1", "com.example.app", day)

		scoped, _ := f.uc.Status(ctx, "dev-1", "com.example.app")
		unscoped, _ := f.uc.Status(ctx, "dev-1", "")

		if !scoped.Active || unscoped.Active {
			t.Fatalf("scoped=%+v unscoped=%+v", scoped, unscoped)
		}
	})

	t.Run("invalid identity is InvalidInput", func(t *testing.T) {
		long := strings.Repeat("x", maxIdentityLength+1)
		tests := []struct{ device, bundle string }{
			{" ", ""},
			{long, ""},
			{"dev-1", long},
			{"dev:com.example.app", ""},
		}
		for _, tt := range tests {
			f := newActivationFixture(false)
			if _, err := f.uc.Status(ctx, tt.device, tt.bundle); !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Status(%.20q, %.20q): expected ErrInvalidInput, got %v", tt.device, tt.bundle, err)
			}
		}
	})

	t.Run("device with a separator cannot read another bundle mirror", func(t *testing.T) {
		f := newActivationFixture(false)
		f.bound("RYMONTH001", model.TierMonthly, 30, "dev", "com.example.app", day)

		_, err := f.uc.Status(ctx, "dev:com.example.app", "")

		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("monthly binding ends on day 30", func(t *testing.T) {
		f := newActivationFixture(false)
		if _, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYMONTH001"}); err != nil {
			t.Fatalf("Activate: %v", err)
		}

		f.clock.Advance(29 * day)
		st, err := f.uc.Status(ctx, "dev-1", "")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if !st.Active || st.RemainingDays != 1 {
			t.Fatalf("day 29: %+v", st)
		}

		f.clock.Advance(day)
		st, err = f.uc.Status(ctx, "dev-1", "")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Active || st.RemainingDays != 0 {
			t.Fatalf("day 30: %+v", st)
		}
	})

	t.Run("activation is visible to status", func(t *testing.T) {
		f := newActivationFixture(false)
		if _, err := f.uc.Activate(ctx, ActivateRequest{DeviceID: "dev-1", Code: "RYYEAR0001"}); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		f.clock.Advance(364 * day)

		st, err := f.uc.Status(ctx, "dev-1", "")

		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if !st.Active || st.RemainingDays != 1 {
			t.Fatalf("unexpected status: %+v", st)
		}
	})
}
