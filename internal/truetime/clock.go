package truetime

import "time"

// Clock reads the local clock. Production code uses SystemClock; tests
// inject a clock they can step.
type Clock interface {
	Now() time.Time
}

// SystemClock is the process wall clock, with its monotonic reading.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
