// Package usage provides per-feature usage counter value types and the
// pure monthly reset rule. All functions are deterministic with no side
// effects; persistence and atomicity live behind ports.AccountStore.
package usage

import "github.com/hoaworks/metergate/domain/quota"

// Counters holds per-feature action counts for a single reset period.
type Counters map[quota.Feature]int64

// Clone returns an independent copy so callers can mutate freely.
func (c Counters) Clone() Counters {
	out := make(Counters, len(c))
	for f, n := range c {
		out[f] = n
	}
	return out
}

// Get returns the count for a feature, zero when absent.
func (c Counters) Get(f quota.Feature) int64 {
	return c[f]
}

// Rolled applies the reset rule: counters stamped with a stale period
// key are discarded entirely, not merely ignored, so a later increment
// starts from zero. Counters for the current period pass through as a
// copy. The returned counters always belong to currentKey.
// This is a PURE function.
func Rolled(c Counters, storedKey, currentKey string) Counters {
	if storedKey != currentKey {
		return make(Counters)
	}
	return c.Clone()
}

// Stale reports whether counters stamped with storedKey belong to a
// period other than currentKey.
// This is a PURE function.
func Stale(storedKey, currentKey string) bool {
	return storedKey != currentKey
}
