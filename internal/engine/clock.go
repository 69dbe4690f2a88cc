package engine

import "time"

// Clock supplies "now" to the executor and the poller.
// Implemented by SystemClock (production) and testutil.SettableClock (tests).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
