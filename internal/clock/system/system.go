// Package system provides the wall clock.
package system

import "time"

// Clock reads the wall clock in UTC, truncated to microseconds so timestamps
// survive a round trip through Postgres unchanged.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
