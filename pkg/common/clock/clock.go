// Package clock abstracts the wall clock so schedulers can be driven
// deterministically in tests.
package clock

import "time"

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// InLocation returns a Clock whose readings are expressed in loc.
func InLocation(c Clock, loc *time.Location) Clock {
	if c == nil {
		c = SystemClock{}
	}
	if loc == nil {
		return c
	}
	return locatedClock{base: c, loc: loc}
}

type locatedClock struct {
	base Clock
	loc  *time.Location
}

func (c locatedClock) Now() time.Time {
	return c.base.Now().In(c.loc)
}
