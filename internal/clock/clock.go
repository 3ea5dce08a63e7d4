// Package clock provides the single source of wall time used by the rest
// of the event manager. Every time read in the core goes through a Clock
// so tests can inject a frozen instant instead of racing the real clock.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current wall time, optionally in a given location.
type Clock interface {
	// Now returns the current time. If loc is nil, UTC is used.
	Now(loc *time.Location) time.Time
}

// System is the production Clock backed by time.Now.
type System struct{}

// Now returns time.Now() converted to loc (UTC if loc is nil).
func (System) Now(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

// Frozen is a Clock test double that returns a fixed instant until moved
// forward explicitly. It is safe for concurrent use.
type Frozen struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozen creates a Frozen clock starting at now.
func NewFrozen(now time.Time) *Frozen {
	return &Frozen{now: now}
}

// Now returns the frozen instant converted to loc (UTC if loc is nil).
func (f *Frozen) Now(loc *time.Location) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if loc == nil {
		loc = time.UTC
	}
	return f.now.In(loc)
}

// Set moves the frozen clock to an absolute instant.
func (f *Frozen) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Advance moves the frozen clock forward by d (d may be negative).
func (f *Frozen) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
