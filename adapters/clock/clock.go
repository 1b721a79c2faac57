// Package clock implements ports.Clock. Reset period keys are derived
// from the UTC calendar month of Now(), so the gate and credit services
// take a Clock instead of calling time.Now and tests force a monthly
// rollover by moving a Fake across a month boundary.
package clock

import (
	"sync"
	"time"
)

// Real reads the system clock.
type Real struct{}

// Now returns the current wall-clock time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a manually driven clock for tests. It only moves when told
// to, so a test can pin usage to one reset period and then step into
// the next.
type Fake struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFake creates a fake clock pinned to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the pinned time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// Set pins the clock to an absolute instant.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d. Advancing past the end of the
// month is how tests trigger a quota reset.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
