package clock

import "time"

// FakeClock is a manually stepped Clock for tests. It never moves on its
// own; tests drive it with Advance.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

func (f *FakeClock) Now() time.Time {
	return f.now
}

// Advance moves the clock by step. Negative steps are allowed so tests
// can simulate skew.
func (f *FakeClock) Advance(step time.Duration) {
	f.now = f.now.Add(step)
}
