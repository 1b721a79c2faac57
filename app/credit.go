package app

import (
	"context"
	"fmt"

	"github.com/hoaworks/metergate/domain/credit"
	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/domain/usage"
	"github.com/hoaworks/metergate/ports"
	"github.com/rs/zerolog"
)

// DeductResult is the outcome of spending one pay-per-use credit.
// An insufficient balance is an expected business outcome, reported
// here rather than as an error.
type DeductResult struct {
	Outcome              credit.Outcome
	PreviousBalance      int64
	NewBalance           int64
	VideosThisMonth      int64
	TotalVideosGenerated int64
}

// Deducted reports whether a credit was actually spent.
func (r DeductResult) Deducted() bool {
	return r.Outcome == credit.OutcomeDeducted
}

// CreditService atomically decrements the pay-per-use credit balance.
type CreditService struct {
	accounts ports.AccountStore
	clock    ports.Clock
	logger   zerolog.Logger
}

// NewCreditService creates a new credit deduction service.
func NewCreditService(accounts ports.AccountStore, clock ports.Clock, logger zerolog.Logger) *CreditService {
	return &CreditService{
		accounts: accounts,
		clock:    clock,
		logger:   logger,
	}
}

// Deduct spends exactly one credit from the account. A balance at or
// below zero is rejected with no mutation. On success the balance, the
// monthly video counter and the lifetime video counter move together
// in a single conditional update, so two racing deductions against a
// balance of one yield exactly one success.
//
// The read-check-write sequence is retried once on a version conflict.
// Callers must not blindly retry after a timeout: a retried Deduct
// spends a second credit.
func (s *CreditService) Deduct(ctx context.Context, accountKey string) (DeductResult, error) {
	for attempt := 0; ; attempt++ {
		acct, err := s.accounts.GetByKey(ctx, accountKey)
		if err != nil {
			return DeductResult{}, fmt.Errorf("load account %q: %w", accountKey, err)
		}

		d := credit.Deduct(acct.CreditBalance)
		if d.Outcome == credit.OutcomeInsufficient {
			s.logger.Info().
				Str("account", accountKey).
				Int64("balance", d.PreviousBalance).
				Msg("credit deduction rejected, insufficient balance")

			return DeductResult{
				Outcome:              d.Outcome,
				PreviousBalance:      d.PreviousBalance,
				NewBalance:           d.NewBalance,
				VideosThisMonth:      acct.VideosThisMonth,
				TotalVideosGenerated: acct.TotalVideosGenerated,
			}, nil
		}

		now := s.clock.Now()
		currentKey := quota.PeriodKey(now)
		if usage.Stale(acct.ResetPeriodKey, currentKey) {
			// Keep a single reset epoch per account: rolling the
			// reporting counter also rolls the quota counters.
			acct.UsageCounters = usage.Counters{}
			acct.VideosThisMonth = 0
			acct.ResetPeriodKey = currentKey
		}

		acct.CreditBalance = d.NewBalance
		acct.VideosThisMonth++
		acct.TotalVideosGenerated++
		acct.UpdatedAt = now.UTC()

		updated, err := s.accounts.Update(ctx, acct, acct.Version)
		if err != nil {
			if err == ports.ErrVersionConflict && attempt < conflictRetries {
				s.logger.Debug().
					Str("account", accountKey).
					Msg("credit deduction lost version race, retrying")
				continue
			}
			return DeductResult{}, fmt.Errorf("deduct credit for %q: %w", accountKey, err)
		}

		s.logger.Info().
			Str("account", accountKey).
			Int64("previous_balance", d.PreviousBalance).
			Int64("new_balance", updated.CreditBalance).
			Msg("credit deducted")

		return DeductResult{
			Outcome:              d.Outcome,
			PreviousBalance:      d.PreviousBalance,
			NewBalance:           updated.CreditBalance,
			VideosThisMonth:      updated.VideosThisMonth,
			TotalVideosGenerated: updated.TotalVideosGenerated,
		}, nil
	}
}
