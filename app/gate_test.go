package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hoaworks/metergate/adapters/clock"
	"github.com/hoaworks/metergate/adapters/memory"
	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/domain/tier"
	"github.com/hoaworks/metergate/domain/usage"
	"github.com/hoaworks/metergate/ports"
	"github.com/rs/zerolog"
)

func newTestAccount(t *testing.T, store *memory.AccountStore, a ports.Account) {
	t.Helper()
	if a.Email == "" {
		a.Email = "board@example.com"
	}
	if err := store.Create(context.Background(), a); err != nil {
		t.Fatalf("create account: %v", err)
	}
}

func newGate(store *memory.AccountStore, clk ports.Clock) *GateService {
	return NewGateService(store, StaticTable(quota.DefaultTable()), clk, zerolog.Nop())
}

func TestCheckAndConsumeAllowsAndIncrements(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Pro,
		SubscriptionStatus: tier.StatusActive,
		ResetPeriodKey:     "2026-03",
	})

	gate := newGate(store, clk)
	res, err := gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureViolationLetters, nil)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected allowed")
	}
	if res.Used != 1 {
		t.Errorf("Used = %d, want 1", res.Used)
	}
	if res.Tier != tier.Pro {
		t.Errorf("Tier = %q, want pro", res.Tier)
	}
	if res.FailOpen {
		t.Error("FailOpen should be false under the cap")
	}

	acct, _ := store.GetByKey(context.Background(), "board@example.com")
	if got := acct.UsageCounters.Get(quota.FeatureViolationLetters); got != 1 {
		t.Errorf("stored counter = %d, want 1", got)
	}
}

func TestCheckAndConsumeFreeTierDenied(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Free,
		SubscriptionStatus: tier.StatusNone,
		ResetPeriodKey:     "2026-03",
		UsageCounters:      usage.Counters{quota.FeatureViolationLetters: 5},
	})

	gate := newGate(store, clk)
	res, err := gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureViolationLetters, nil)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if res.Allowed {
		t.Fatal("free account at the limit must be denied")
	}
	if !res.OfferUpgrade {
		t.Error("free-tier denial must carry an upgrade offer")
	}
	if res.Used != 5 {
		t.Errorf("Used = %d, want 5", res.Used)
	}
	if res.Limit.IsUnlimited() || res.Limit.Value() != 5 {
		t.Errorf("Limit = %s, want 5", res.Limit)
	}

	acct, _ := store.GetByKey(context.Background(), "board@example.com")
	if got := acct.UsageCounters.Get(quota.FeatureViolationLetters); got != 5 {
		t.Errorf("denial must not increment: counter = %d, want 5", got)
	}
}

func TestCheckAndConsumePaidTierFailsOpen(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Pro,
		SubscriptionStatus: tier.StatusActive,
		ResetPeriodKey:     "2026-03",
		UsageCounters:      usage.Counters{quota.FeatureVideos: 999999},
	})

	table := quota.Table{
		tier.Pro: {quota.FeatureVideos: quota.Finite(50)},
	}
	gate := NewGateService(store, StaticTable(table), clk, zerolog.Nop())

	res, err := gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureVideos, nil)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if !res.Allowed {
		t.Fatal("paid account past a finite cap must still be allowed")
	}
	if !res.FailOpen {
		t.Error("expected FailOpen")
	}
	if res.Used != 1000000 {
		t.Errorf("Used = %d, want 1000000", res.Used)
	}
}

func TestCheckAndConsumeCanceledProBecomesFree(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Pro,
		SubscriptionStatus: tier.StatusCanceled,
		ResetPeriodKey:     "2026-03",
		UsageCounters:      usage.Counters{quota.FeatureViolationLetters: 5},
	})

	gate := newGate(store, clk)
	res, err := gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureViolationLetters, nil)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if res.Allowed {
		t.Fatal("canceled pro must be gated at free limits")
	}
	if res.Tier != tier.Free {
		t.Errorf("effective tier = %q, want free", res.Tier)
	}
	if !res.OfferUpgrade {
		t.Error("expected upgrade offer for effectively-free account")
	}
}

func TestCheckAndConsumeMonthlyRollover(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Free,
		SubscriptionStatus: tier.StatusNone,
		ResetPeriodKey:     "2026-03",
		UsageCounters:      usage.Counters{quota.FeatureViolationLetters: 5},
	})

	gate := newGate(store, clk)

	// Still March: at the limit.
	res, err := gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureViolationLetters, nil)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected denial before rollover")
	}

	// Cross into April: counters roll, the first call lands at one.
	clk.Advance(2 * time.Hour)
	res, err = gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureViolationLetters, nil)
	if err != nil {
		t.Fatalf("CheckAndConsume after rollover: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected allowance after rollover")
	}
	if res.Used != 1 {
		t.Errorf("Used = %d, want 1", res.Used)
	}

	acct, _ := store.GetByKey(context.Background(), "board@example.com")
	if acct.ResetPeriodKey != "2026-04" {
		t.Errorf("ResetPeriodKey = %q, want 2026-04", acct.ResetPeriodKey)
	}
}

func TestCheckAndConsumeRolloverResetsMonthlyVideoCount(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Pro,
		SubscriptionStatus: tier.StatusActive,
		ResetPeriodKey:     "2026-03",
		UsageCounters:      usage.Counters{quota.FeatureVideos: 5},
		VideosThisMonth:    5,
	})

	gate := newGate(store, clk)
	res, err := gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureVideos, nil)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if !res.Allowed || res.Used != 1 {
		t.Fatalf("Allowed/Used = %v/%d, want true/1 after rollover", res.Allowed, res.Used)
	}

	acct, _ := store.GetByKey(context.Background(), "board@example.com")
	if acct.ResetPeriodKey != "2026-04" {
		t.Errorf("ResetPeriodKey = %q, want 2026-04", acct.ResetPeriodKey)
	}
	if acct.VideosThisMonth != 0 {
		t.Errorf("VideosThisMonth = %d after rollover, want 0", acct.VideosThisMonth)
	}

	sum, err := gate.Summary(context.Background(), "board@example.com")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.VideosThisMonth != 0 {
		t.Errorf("Summary.VideosThisMonth = %d for new period, want 0", sum.VideosThisMonth)
	}
}

func TestCheckAndConsumeActionFailureKeepsIncrement(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Pro,
		SubscriptionStatus: tier.StatusActive,
		ResetPeriodKey:     "2026-03",
	})

	gate := newGate(store, clk)
	boom := errors.New("renderer down")
	res, err := gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureVideos,
		func(ctx context.Context) error { return boom })
	if err == nil {
		t.Fatal("expected action error to surface")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped action error", err)
	}
	if !res.Allowed {
		t.Error("result should still report admission")
	}

	acct, _ := store.GetByKey(context.Background(), "board@example.com")
	if got := acct.UsageCounters.Get(quota.FeatureVideos); got != 1 {
		t.Errorf("counter = %d, want 1 (slot consumed on admission)", got)
	}
}

func TestCheckAndConsumeUnknownAccount(t *testing.T) {
	gate := newGate(memory.NewAccountStore(), clock.NewFake(time.Now()))
	_, err := gate.CheckAndConsume(context.Background(), "missing@example.com", quota.FeatureVideos, nil)
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestCheckAndConsumeConcurrentNoLostUpdates(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Enterprise,
		SubscriptionStatus: tier.StatusActive,
		ResetPeriodKey:     "2026-03",
	})

	gate := newGate(store, clk)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := gate.CheckAndConsume(context.Background(), "board@example.com", quota.FeatureNoticeScans, nil)
			if err != nil {
				// A worker can lose the version race twice; the
				// conflict surfaces rather than losing an update.
				if !errors.Is(err, ports.ErrVersionConflict) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if res.Allowed {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	acct, _ := store.GetByKey(context.Background(), "board@example.com")
	got := acct.UsageCounters.Get(quota.FeatureNoticeScans)
	if int(got) != successes {
		t.Errorf("counter = %d, want %d (one per admitted call)", got, successes)
	}
	if successes == 0 {
		t.Error("expected at least one admitted call")
	}
}

func TestCurrentUsagePersistsReset(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Pro,
		SubscriptionStatus: tier.StatusActive,
		ResetPeriodKey:     "2026-03",
		UsageCounters:      usage.Counters{quota.FeatureVideos: 42},
		VideosThisMonth:    42,
	})

	gate := newGate(store, clk)
	used, err := gate.CurrentUsage(context.Background(), "board@example.com", quota.FeatureVideos)
	if err != nil {
		t.Fatalf("CurrentUsage: %v", err)
	}
	if used != 0 {
		t.Errorf("used = %d, want 0 after rollover", used)
	}

	acct, _ := store.GetByKey(context.Background(), "board@example.com")
	if acct.ResetPeriodKey != "2026-04" {
		t.Errorf("ResetPeriodKey = %q, want 2026-04", acct.ResetPeriodKey)
	}
	if acct.VideosThisMonth != 0 {
		t.Errorf("VideosThisMonth = %d, want 0", acct.VideosThisMonth)
	}

	// Idempotent: a second read in the same period changes nothing.
	version := acct.Version
	if _, err := gate.CurrentUsage(context.Background(), "board@example.com", quota.FeatureVideos); err != nil {
		t.Fatalf("CurrentUsage second read: %v", err)
	}
	acct, _ = store.GetByKey(context.Background(), "board@example.com")
	if acct.Version != version {
		t.Errorf("second read rewrote the account (version %d -> %d)", version, acct.Version)
	}
}

func TestSummaryReportsAllFeatures(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Agency,
		SubscriptionStatus: tier.StatusActive,
		ResetPeriodKey:     "2026-03",
		UsageCounters:      usage.Counters{quota.FeatureViolationLetters: 7},
		CreditBalance:      12,
		VideosThisMonth:    3,
	})

	gate := newGate(store, clk)
	sum, err := gate.Summary(context.Background(), "board@example.com")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Tier != tier.Agency {
		t.Errorf("Tier = %q, want agency", sum.Tier)
	}
	if sum.PeriodKey != "2026-03" {
		t.Errorf("PeriodKey = %q, want 2026-03", sum.PeriodKey)
	}
	if sum.CreditBalance != 12 {
		t.Errorf("CreditBalance = %d, want 12", sum.CreditBalance)
	}
	if len(sum.Features) != 3 {
		t.Fatalf("len(Features) = %d, want 3", len(sum.Features))
	}
	for _, f := range sum.Features {
		switch f.Feature {
		case quota.FeatureViolationLetters:
			if f.Used != 7 {
				t.Errorf("letters used = %d, want 7", f.Used)
			}
		case quota.FeatureNoticeScans:
			if !f.Limit.IsUnlimited() {
				t.Errorf("agency scans limit = %s, want unlimited", f.Limit)
			}
		}
	}
}

func TestSummaryStalePeriodReadsAsZero(t *testing.T) {
	store := memory.NewAccountStore()
	clk := clock.NewFake(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	newTestAccount(t, store, ports.Account{
		SubscriptionTier:   tier.Pro,
		SubscriptionStatus: tier.StatusActive,
		ResetPeriodKey:     "2026-03",
		UsageCounters:      usage.Counters{quota.FeatureVideos: 9},
		VideosThisMonth:    9,
	})

	gate := newGate(store, clk)
	sum, err := gate.Summary(context.Background(), "board@example.com")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.VideosThisMonth != 0 {
		t.Errorf("VideosThisMonth = %d, want 0 for stale period", sum.VideosThisMonth)
	}
	for _, f := range sum.Features {
		if f.Used != 0 {
			t.Errorf("%s used = %d, want 0 for stale period", f.Feature, f.Used)
		}
	}
}
