// Package quota provides pure functions for monthly quota enforcement.
// All functions are deterministic with no side effects.
package quota

import (
	"fmt"
	"time"

	"github.com/hoaworks/metergate/domain/tier"
)

// Feature names a billable action category (e.g. "violation_letters").
type Feature string

const (
	FeatureViolationLetters Feature = "violation_letters"
	FeatureVideos           Feature = "video_generations"
	FeatureNoticeScans      Feature = "notice_scans"
)

// Limit is a monthly allowance: either a finite non-negative count or
// unlimited. The zero value is Finite(0), which denies everything.
type Limit struct {
	unlimited bool
	n         int64
}

// Finite returns a finite limit of n actions per period.
func Finite(n int64) Limit {
	return Limit{n: n}
}

// Unlimited is the no-cap sentinel.
var Unlimited = Limit{unlimited: true}

// IsUnlimited reports whether the limit has no cap.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Value returns the finite allowance. Only meaningful when !IsUnlimited().
func (l Limit) Value() int64 {
	return l.n
}

// String returns "unlimited" or the decimal allowance.
func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.n)
}

// Table maps tier and feature to a monthly limit.
type Table map[tier.Tier]map[Feature]Limit

// DefaultTable returns the built-in plan quotas.
func DefaultTable() Table {
	return Table{
		tier.Free: {
			FeatureViolationLetters: Finite(5),
			FeatureVideos:           Finite(2),
			FeatureNoticeScans:      Finite(10),
		},
		tier.Pro: {
			FeatureViolationLetters: Finite(200),
			FeatureVideos:           Finite(50),
			FeatureNoticeScans:      Finite(500),
		},
		tier.Agency: {
			FeatureViolationLetters: Finite(1000),
			FeatureVideos:           Finite(200),
			FeatureNoticeScans:      Unlimited,
		},
		tier.Enterprise: {
			FeatureViolationLetters: Unlimited,
			FeatureVideos:           Unlimited,
			FeatureNoticeScans:      Unlimited,
		},
	}
}

// Lookup resolves the limit for a (tier, feature) pair. The lookup is
// total: an unknown tier or a feature missing from the tier's row falls
// back to the free tier's limit for that feature, and a feature unknown
// even to the free tier yields Finite(0). The fallback is restrictive
// rather than open so a mistyped tier never grants unmetered access.
// This is a PURE function.
func (t Table) Lookup(tr tier.Tier, f Feature) Limit {
	if row, ok := t[tr]; ok {
		if l, ok := row[f]; ok {
			return l
		}
	}
	if tr != tier.Free {
		return t.Lookup(tier.Free, f)
	}
	return Finite(0)
}

// Check reports whether one more action fits under the limit.
// This is a PURE function.
func Check(used int64, limit Limit) bool {
	if limit.IsUnlimited() {
		return true
	}
	return used < limit.Value()
}

// PeriodKey derives the reset period token for a point in time. Usage
// counters belong to exactly one key; a stored key that differs from
// the current one marks the counters as stale. Keys use the UTC
// calendar month.
// This is a PURE function.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodBounds returns the start and end of the reset period containing t.
// This is a PURE function.
func PeriodBounds(t time.Time) (start, end time.Time) {
	u := t.UTC()
	start = time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return
}
