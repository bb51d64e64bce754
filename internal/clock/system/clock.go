// Package system implements feed.Clock with the wall clock.
package system

import "time"

// Clock returns the real current time.
type Clock struct{}

// New creates a Clock.
func New() Clock {
	return Clock{}
}

// Now returns time.Now.
func (Clock) Now() time.Time {
	return time.Now()
}
