package clock

import (
	"sync"
	"time"
)

// Clock abstracts the time source so expiry checks are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// Real returns wall-clock time.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set moves the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
