// Package tier provides subscription tier value types and pure functions.
// All functions are deterministic with no side effects.
package tier

import "strings"

// Tier is a named subscription level determining feature quotas.
type Tier string

const (
	Free       Tier = "free"
	Pro        Tier = "pro"
	Agency     Tier = "agency"
	Enterprise Tier = "enterprise"
)

// All lists every known tier in ascending order of capability.
func All() []Tier {
	return []Tier{Free, Pro, Agency, Enterprise}
}

// Valid reports whether t is a known tier.
func Valid(t Tier) bool {
	switch t {
	case Free, Pro, Agency, Enterprise:
		return true
	}
	return false
}

// Status is the subscription state paired with a stored tier.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusNone     Status = "none"
)

// Effective resolves the tier that actually applies to an account.
// A stored tier is only meaningful while the subscription is active;
// any other status collapses to Free regardless of the stored value.
// An active subscription with an empty or unrecognized tier resolves
// to Pro, which is the default tier granted on subscribe.
// This is a PURE function.
func Effective(status Status, stored Tier) Tier {
	if status != StatusActive {
		return Free
	}
	if !Valid(stored) {
		return Pro
	}
	return stored
}

// Canonical maps a raw external tier label to a canonical Tier.
// Unrecognized labels canonicalize to Free (fail-safe-restrictive).
// This is a PURE function.
func Canonical(label string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(label))) {
	case Free:
		return Free
	case Pro:
		return Pro
	case Agency:
		return Agency
	case Enterprise:
		return Enterprise
	}
	return Free
}

// FromPriceID maps a billing provider price identifier to a Tier by
// substring match. Price IDs are provider-defined and carry the tier
// name somewhere in the string (e.g. "pri_hoa_agency_monthly").
// Longer tier names are checked first so "enterprise" never matches
// as "pro" does not appear inside it but ordering keeps this explicit.
// This is a PURE function.
func FromPriceID(priceID string) Tier {
	id := strings.ToLower(priceID)
	switch {
	case strings.Contains(id, string(Enterprise)):
		return Enterprise
	case strings.Contains(id, string(Agency)):
		return Agency
	case strings.Contains(id, string(Pro)):
		return Pro
	}
	return Free
}
