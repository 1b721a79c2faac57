// Package app contains the use-case services wiring domain logic to
// ports. All business rules are pure functions in domain/; I/O happens
// at the edges via injected stores.
package app

import (
	"context"
	"fmt"

	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/domain/tier"
	"github.com/hoaworks/metergate/domain/usage"
	"github.com/hoaworks/metergate/ports"
	"github.com/rs/zerolog"
)

// conflictRetries is how many times a service transparently redoes the
// read-check-write sequence after losing a version race. One retry per
// the concurrency contract; after that the conflict surfaces.
const conflictRetries = 1

// TableSource yields the current quota table. A config holder supplies
// a hot-reloadable source; tests pass a fixed table.
type TableSource func() quota.Table

// StaticTable adapts a fixed table into a TableSource.
func StaticTable(t quota.Table) TableSource {
	return func() quota.Table { return t }
}

// GateResult is the outcome of an admission check.
type GateResult struct {
	Allowed      bool
	Feature      quota.Feature
	Tier         tier.Tier
	Limit        quota.Limit
	Used         int64 // post-increment when allowed, current usage when denied
	OfferUpgrade bool  // denial should present an upgrade offer (free tier only)
	FailOpen     bool  // paid tier past a finite cap, allowed anyway
}

// Action is the billable operation executed after quota approval.
// The gate treats it as a black box that either succeeds or fails.
type Action func(ctx context.Context) error

// GateService is the admission-control check performed before a
// billable action executes. It consults the quota table, the account's
// usage counters and the effective tier, then either increments and
// runs the action or denies.
type GateService struct {
	accounts ports.AccountStore
	quotas   TableSource
	clock    ports.Clock
	logger   zerolog.Logger
}

// NewGateService creates a new usage gate.
func NewGateService(accounts ports.AccountStore, quotas TableSource, clock ports.Clock, logger zerolog.Logger) *GateService {
	return &GateService{
		accounts: accounts,
		quotas:   quotas,
		clock:    clock,
		logger:   logger,
	}
}

// CheckAndConsume decides whether the account may perform one more
// action of the given feature, increments the ledger when it may, and
// then executes the action.
//
// The free tier is fail-closed: at or past the limit the call returns
// a denial carrying an upgrade offer and performs no increment. Paid
// tiers are fail-open: a paying account somehow past a finite cap is
// allowed and counted rather than blocked. That asymmetry is business
// policy, not an accident.
//
// The reset check, the limit check and the increment are applied as a
// single conditional update against the account record, retried once
// from scratch on a version conflict.
func (s *GateService) CheckAndConsume(ctx context.Context, accountKey string, feature quota.Feature, action Action) (GateResult, error) {
	var result GateResult

	for attempt := 0; ; attempt++ {
		acct, err := s.accounts.GetByKey(ctx, accountKey)
		if err != nil {
			return GateResult{}, fmt.Errorf("load account %q: %w", accountKey, err)
		}

		eff := tier.Effective(acct.SubscriptionStatus, acct.SubscriptionTier)
		limit := s.quotas().Lookup(eff, feature)

		currentKey := quota.PeriodKey(s.clock.Now())
		counters := usage.Rolled(acct.UsageCounters, acct.ResetPeriodKey, currentKey)
		used := counters.Get(feature)

		allowed := quota.Check(used, limit)
		failOpen := false
		if !allowed && eff != tier.Free {
			allowed = true
			failOpen = true
		}

		if !allowed {
			s.logger.Info().
				Str("account", accountKey).
				Str("feature", string(feature)).
				Str("tier", string(eff)).
				Int64("used", used).
				Str("limit", limit.String()).
				Msg("usage gate denied")

			return GateResult{
				Allowed:      false,
				Feature:      feature,
				Tier:         eff,
				Limit:        limit,
				Used:         used,
				OfferUpgrade: eff == tier.Free,
			}, nil
		}

		counters[feature]++
		now := s.clock.Now().UTC()
		acct.UsageCounters = counters
		if usage.Stale(acct.ResetPeriodKey, currentKey) {
			// Rolling the quota counters rolls the reporting counter
			// with them; both belong to the same reset epoch.
			acct.VideosThisMonth = 0
		}
		acct.ResetPeriodKey = currentKey
		acct.UpdatedAt = now

		if _, err := s.accounts.Update(ctx, acct, acct.Version); err != nil {
			if err == ports.ErrVersionConflict && attempt < conflictRetries {
				s.logger.Debug().
					Str("account", accountKey).
					Str("feature", string(feature)).
					Msg("usage increment lost version race, retrying")
				continue
			}
			return GateResult{}, fmt.Errorf("increment usage for %q: %w", accountKey, err)
		}

		result = GateResult{
			Allowed:  true,
			Feature:  feature,
			Tier:     eff,
			Limit:    limit,
			Used:     counters.Get(feature),
			FailOpen: failOpen,
		}
		break
	}

	if result.FailOpen {
		s.logger.Warn().
			Str("account", accountKey).
			Str("feature", string(result.Feature)).
			Str("tier", string(result.Tier)).
			Int64("used", result.Used).
			Str("limit", result.Limit.String()).
			Msg("paid account past finite quota, allowing anyway")
	}

	if action != nil {
		if err := action(ctx); err != nil {
			// The increment stands: the slot was consumed when the
			// action was admitted.
			return result, fmt.Errorf("execute action: %w", err)
		}
	}

	return result, nil
}

// CurrentUsage returns the counter for a feature after applying the
// reset check. Stale counters are rewritten to zero in the store, not
// merely ignored, so a later increment starts the new period at one.
func (s *GateService) CurrentUsage(ctx context.Context, accountKey string, feature quota.Feature) (int64, error) {
	for attempt := 0; ; attempt++ {
		acct, err := s.accounts.GetByKey(ctx, accountKey)
		if err != nil {
			return 0, fmt.Errorf("load account %q: %w", accountKey, err)
		}

		currentKey := quota.PeriodKey(s.clock.Now())
		if !usage.Stale(acct.ResetPeriodKey, currentKey) {
			return acct.UsageCounters.Get(feature), nil
		}

		acct.UsageCounters = usage.Counters{}
		acct.VideosThisMonth = 0
		acct.ResetPeriodKey = currentKey
		acct.UpdatedAt = s.clock.Now().UTC()

		if _, err := s.accounts.Update(ctx, acct, acct.Version); err != nil {
			if err == ports.ErrVersionConflict && attempt < conflictRetries {
				continue
			}
			return 0, fmt.Errorf("reset usage for %q: %w", accountKey, err)
		}

		s.logger.Info().
			Str("account", accountKey).
			Str("period", currentKey).
			Msg("usage counters rolled over to new period")
		return 0, nil
	}
}

// FeatureUsage pairs a feature's current usage with its limit.
type FeatureUsage struct {
	Feature quota.Feature
	Used    int64
	Limit   quota.Limit
}

// UsageSummary describes an account's consumption for the current period.
type UsageSummary struct {
	AccountKey           string
	Tier                 tier.Tier
	PeriodKey            string
	Features             []FeatureUsage
	CreditBalance        int64
	VideosThisMonth      int64
	TotalVideosGenerated int64
}

// Summary reports current-period usage against limits for every
// feature the effective tier knows about. Reads are reset-aware but do
// not persist the rollover; the next increment does that.
func (s *GateService) Summary(ctx context.Context, accountKey string) (UsageSummary, error) {
	acct, err := s.accounts.GetByKey(ctx, accountKey)
	if err != nil {
		return UsageSummary{}, fmt.Errorf("load account %q: %w", accountKey, err)
	}

	eff := tier.Effective(acct.SubscriptionStatus, acct.SubscriptionTier)
	currentKey := quota.PeriodKey(s.clock.Now())
	counters := usage.Rolled(acct.UsageCounters, acct.ResetPeriodKey, currentKey)

	videosThisMonth := acct.VideosThisMonth
	if usage.Stale(acct.ResetPeriodKey, currentKey) {
		videosThisMonth = 0
	}

	table := s.quotas()
	features := []quota.Feature{
		quota.FeatureViolationLetters,
		quota.FeatureVideos,
		quota.FeatureNoticeScans,
	}

	summary := UsageSummary{
		AccountKey:           accountKey,
		Tier:                 eff,
		PeriodKey:            currentKey,
		CreditBalance:        acct.CreditBalance,
		VideosThisMonth:      videosThisMonth,
		TotalVideosGenerated: acct.TotalVideosGenerated,
	}
	for _, f := range features {
		summary.Features = append(summary.Features, FeatureUsage{
			Feature: f,
			Used:    counters.Get(f),
			Limit:   table.Lookup(eff, f),
		})
	}
	return summary, nil
}
