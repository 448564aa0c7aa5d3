package schedule

import (
	"time"

	"github.com/vnykmshr/beatflow/pkg/common/validation"
)

// Interval fires every fixed duration.
//
// With Relative set, the next due instant is aligned down to the resolution
// of the interval: whole days for intervals of a day or more, whole hours,
// whole minutes, otherwise whole seconds.
type Interval struct {
	Every    time.Duration
	Relative bool
}

// NewInterval returns a validated Interval.
func NewInterval(every time.Duration, relative bool) (*Interval, error) {
	if err := validation.ValidatePositiveDuration("schedule", "every", every); err != nil {
		return nil, err
	}
	return &Interval{Every: every, Relative: relative}, nil
}

// Every is NewInterval without validation or alignment, for literals.
func Every(d time.Duration) *Interval {
	return &Interval{Every: d}
}

func (i *Interval) Next(last time.Time) (time.Time, bool) {
	next := last.Add(i.Every)
	if i.Relative {
		next = alignToResolution(next, i.Every)
	}
	return next, true
}

func alignToResolution(t time.Time, every time.Duration) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	loc := t.Location()

	switch {
	case every >= 24*time.Hour:
		return time.Date(y, mo, d, 0, 0, 0, 0, loc)
	case every >= time.Hour:
		return time.Date(y, mo, d, h, 0, 0, 0, loc)
	case every >= time.Minute:
		return time.Date(y, mo, d, h, mi, 0, 0, loc)
	default:
		return time.Date(y, mo, d, h, mi, s, 0, loc)
	}
}
