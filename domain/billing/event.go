// Package billing provides billing provider value types and pure
// functions. The provider's checkout flow is out of scope; this package
// only models the subscription-change events it emits.
package billing

import "github.com/hoaworks/metergate/domain/tier"

// EventType classifies a subscription-change event.
type EventType string

const (
	EventSubscriptionCreated  EventType = "subscription_created"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventPaymentSucceeded     EventType = "payment_succeeded"
)

// SubscriptionEvent is a tier-change event from the billing provider.
type SubscriptionEvent struct {
	Type           EventType
	CustomerID     string
	SubscriptionID string
	PriceID        string
	Status         string // provider status string, e.g. "active", "deleted"
	Email          string // account key carried in the event passthrough
}

// ResolveTier maps the event's price identifier to a canonical tier.
// This is a PURE function.
func (e SubscriptionEvent) ResolveTier() tier.Tier {
	return tier.FromPriceID(e.PriceID)
}

// IsCancellation reports whether the event ends the subscription.
// Paddle reports ended subscriptions with status "deleted".
// This is a PURE function.
func (e SubscriptionEvent) IsCancellation() bool {
	return e.Type == EventSubscriptionCanceled || e.Status == "deleted"
}

// CreditGrants maps a tier to the pay-per-use credits granted when a
// subscription to that tier is applied.
type CreditGrants map[tier.Tier]int64

// DefaultCreditGrants returns the built-in per-tier credit grants.
func DefaultCreditGrants() CreditGrants {
	return CreditGrants{
		tier.Free:       0,
		tier.Pro:        20,
		tier.Agency:     100,
		tier.Enterprise: 500,
	}
}

// For returns the grant for a tier, zero for unknown tiers.
// This is a PURE function.
func (g CreditGrants) For(t tier.Tier) int64 {
	return g[t]
}
