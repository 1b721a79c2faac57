package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hoaworks/metergate/domain/billing"
	"github.com/hoaworks/metergate/domain/credit"
	"github.com/hoaworks/metergate/domain/tier"
	"github.com/hoaworks/metergate/ports"
	"github.com/rs/zerolog"
)

// GrantSource yields the current per-tier credit grants. A config
// holder supplies a hot-reloadable source; tests pass fixed grants.
type GrantSource func() billing.CreditGrants

// StaticGrants adapts fixed grants into a GrantSource.
func StaticGrants(g billing.CreditGrants) GrantSource {
	return func() billing.CreditGrants { return g }
}

// UpgradeResult is the outcome of applying a tier change.
type UpgradeResult struct {
	Tier            tier.Tier
	Status          tier.Status
	PreviousBalance int64
	NewBalance      int64
}

// UpgradeService reconciles subscription-state changes (billing
// provider events or manual overrides) into the stored account.
type UpgradeService struct {
	accounts ports.AccountStore
	grants   GrantSource
	clock    ports.Clock
	logger   zerolog.Logger
}

// NewUpgradeService creates a new tier upgrade applier.
func NewUpgradeService(accounts ports.AccountStore, grants GrantSource, clock ports.Clock, logger zerolog.Logger) *UpgradeService {
	return &UpgradeService{
		accounts: accounts,
		grants:   grants,
		clock:    clock,
		logger:   logger,
	}
}

// Apply maps a raw tier label onto the account: canonical tier
// (unrecognized labels collapse to free), status active, billing
// source reference stored for audit correlation, and creditsToGrant
// ADDED to the existing balance. Grants are additive by contract, so
// a re-delivered upgrade event grants again; dedup is the caller's
// responsibility. Reporting counters are left untouched.
func (s *UpgradeService) Apply(ctx context.Context, accountKey, rawTier string, creditsToGrant int64, sourceRef string) (UpgradeResult, error) {
	canonical := tier.Canonical(rawTier)

	for attempt := 0; ; attempt++ {
		acct, err := s.accounts.GetByKey(ctx, accountKey)
		if err != nil {
			return UpgradeResult{}, fmt.Errorf("load account %q: %w", accountKey, err)
		}

		prev := acct.CreditBalance
		acct.SubscriptionTier = canonical
		acct.SubscriptionStatus = tier.StatusActive
		acct.CreditBalance = credit.Grant(prev, creditsToGrant)
		if sourceRef != "" {
			acct.PaddleSubscriptionID = sourceRef
		}
		acct.UpdatedAt = s.clock.Now().UTC()

		updated, err := s.accounts.Update(ctx, acct, acct.Version)
		if err != nil {
			if err == ports.ErrVersionConflict && attempt < conflictRetries {
				continue
			}
			return UpgradeResult{}, fmt.Errorf("apply upgrade for %q: %w", accountKey, err)
		}

		s.logger.Info().
			Str("account", accountKey).
			Str("tier", string(canonical)).
			Str("source_ref", sourceRef).
			Int64("credits_granted", creditsToGrant).
			Int64("previous_balance", prev).
			Int64("new_balance", updated.CreditBalance).
			Msg("tier upgrade applied")

		return UpgradeResult{
			Tier:            updated.SubscriptionTier,
			Status:          updated.SubscriptionStatus,
			PreviousBalance: prev,
			NewBalance:      updated.CreditBalance,
		}, nil
	}
}

// GrantCredits adds credits to the balance without touching the
// subscription tier or status. Manual goodwill grants and purchased
// top-ups go through here; only a real subscription upgrade activates.
func (s *UpgradeService) GrantCredits(ctx context.Context, accountKey string, credits int64, sourceRef string) (UpgradeResult, error) {
	for attempt := 0; ; attempt++ {
		acct, err := s.accounts.GetByKey(ctx, accountKey)
		if err != nil {
			return UpgradeResult{}, fmt.Errorf("load account %q: %w", accountKey, err)
		}

		prev := acct.CreditBalance
		acct.CreditBalance = credit.Grant(prev, credits)
		acct.UpdatedAt = s.clock.Now().UTC()

		updated, err := s.accounts.Update(ctx, acct, acct.Version)
		if err != nil {
			if err == ports.ErrVersionConflict && attempt < conflictRetries {
				continue
			}
			return UpgradeResult{}, fmt.Errorf("grant credits for %q: %w", accountKey, err)
		}

		s.logger.Info().
			Str("account", accountKey).
			Str("source_ref", sourceRef).
			Int64("credits_granted", credits).
			Int64("previous_balance", prev).
			Int64("new_balance", updated.CreditBalance).
			Msg("credits granted")

		return UpgradeResult{
			Tier:            updated.SubscriptionTier,
			Status:          updated.SubscriptionStatus,
			PreviousBalance: prev,
			NewBalance:      updated.CreditBalance,
		}, nil
	}
}

// Cancel marks the subscription canceled. The stored tier string stays
// for audit; the tier resolver collapses any non-active status to free.
// Balances and counters are untouched.
func (s *UpgradeService) Cancel(ctx context.Context, accountKey, sourceRef string) error {
	for attempt := 0; ; attempt++ {
		acct, err := s.accounts.GetByKey(ctx, accountKey)
		if err != nil {
			return fmt.Errorf("load account %q: %w", accountKey, err)
		}

		acct.SubscriptionStatus = tier.StatusCanceled
		acct.UpdatedAt = s.clock.Now().UTC()

		if _, err := s.accounts.Update(ctx, acct, acct.Version); err != nil {
			if err == ports.ErrVersionConflict && attempt < conflictRetries {
				continue
			}
			return fmt.Errorf("cancel subscription for %q: %w", accountKey, err)
		}

		s.logger.Info().
			Str("account", accountKey).
			Str("source_ref", sourceRef).
			Msg("subscription canceled")
		return nil
	}
}

// EventResult summarizes how a subscription event was applied.
type EventResult struct {
	Canceled       bool
	Tier           tier.Tier
	CreditsGranted int64
}

// HandleSubscriptionEvent adapts a billing provider event onto Apply
// or Cancel. The event's price ID determines the tier and the per-tier
// grant table determines the credits.
func (s *UpgradeService) HandleSubscriptionEvent(ctx context.Context, ev billing.SubscriptionEvent) (EventResult, error) {
	if ev.Email == "" {
		return EventResult{}, errors.New("subscription event carries no account key")
	}

	if ev.IsCancellation() {
		if err := s.Cancel(ctx, ev.Email, ev.SubscriptionID); err != nil {
			return EventResult{}, err
		}
		return EventResult{Canceled: true}, nil
	}

	newTier := ev.ResolveTier()
	grant := s.grants().For(newTier)

	res, err := s.Apply(ctx, ev.Email, string(newTier), grant, ev.SubscriptionID)
	if err != nil {
		return EventResult{}, err
	}

	// Remember the provider's customer handle for later correlation.
	if ev.CustomerID != "" {
		if err := s.setCustomerID(ctx, ev.Email, ev.CustomerID); err != nil {
			s.logger.Warn().Err(err).
				Str("account", ev.Email).
				Msg("failed to record billing customer id")
		}
	}

	s.logger.Info().
		Str("account", ev.Email).
		Str("event", string(ev.Type)).
		Str("price_id", ev.PriceID).
		Str("tier", string(res.Tier)).
		Msg("subscription event reconciled")
	return EventResult{Tier: res.Tier, CreditsGranted: grant}, nil
}

func (s *UpgradeService) setCustomerID(ctx context.Context, accountKey, customerID string) error {
	for attempt := 0; ; attempt++ {
		acct, err := s.accounts.GetByKey(ctx, accountKey)
		if err != nil {
			return err
		}
		if acct.PaddleCustomerID == customerID {
			return nil
		}
		acct.PaddleCustomerID = customerID
		acct.UpdatedAt = s.clock.Now().UTC()
		if _, err := s.accounts.Update(ctx, acct, acct.Version); err != nil {
			if err == ports.ErrVersionConflict && attempt < conflictRetries {
				continue
			}
			return err
		}
		return nil
	}
}
