package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
)

// Frequency is the base period of a CalendarRule. Values match the
// iCalendar / dateutil numbering (Yearly = 0).
type Frequency int

const (
	Yearly Frequency = iota
	Monthly
	Weekly
	Daily
	Hourly
	Minutely
	Secondly
)

// Weekday is a day of the week (Monday = 0) with an optional ordinal N,
// e.g. {Day: 4, N: -1} is the last Friday of the period.
type Weekday struct {
	Day int
	N   int
}

var rruleWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// CalendarRule is an RFC 5545 recurrence rule. Occurrences are bounded by
// Dtstart, Count and Until; zero values mean unbounded.
type CalendarRule struct {
	Freq       Frequency
	Interval   int
	Wkst       int
	Count      int
	Dtstart    time.Time
	Until      time.Time
	BySetPos   []int
	ByMonth    []int
	ByMonthDay []int
	ByYearDay  []int
	ByEaster   []int
	ByWeekNo   []int
	ByWeekday  []Weekday
	ByHour     []int
	ByMinute   []int
	BySecond   []int

	compiled *rrule.RRule
}

// NewCalendarRule validates rule and prepares it for evaluation. A missing
// Dtstart is set to the current second so every process evaluating the
// persisted rule agrees on its anchor.
func NewCalendarRule(rule CalendarRule) (*CalendarRule, error) {
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if rule.Dtstart.IsZero() {
		rule.Dtstart = time.Now().UTC().Truncate(time.Second)
	}

	compiled, err := rule.compile()
	if err != nil {
		return nil, err
	}
	rule.compiled = compiled
	return &rule, nil
}

func (r *CalendarRule) Next(last time.Time) (time.Time, bool) {
	compiled := r.compiled
	if compiled == nil {
		var err error
		if compiled, err = r.compile(); err != nil {
			return time.Time{}, false
		}
	}
	next := compiled.After(last, false)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (r *CalendarRule) compile() (*rrule.RRule, error) {
	if r.Freq < Yearly || r.Freq > Secondly {
		return nil, bferrors.NewValidationError("schedule", "freq", int(r.Freq), "unknown frequency")
	}
	if r.Wkst < 0 || r.Wkst > 6 {
		return nil, bferrors.NewValidationError("schedule", "wkst", r.Wkst, "out of range").
			WithHint("use 0 (Monday) through 6 (Sunday)")
	}

	weekdays := make([]rrule.Weekday, 0, len(r.ByWeekday))
	for _, wd := range r.ByWeekday {
		if wd.Day < 0 || wd.Day > 6 {
			return nil, bferrors.NewValidationError("schedule", "byweekday", wd.Day, "out of range")
		}
		base := rruleWeekdays[wd.Day]
		if wd.N != 0 {
			base = base.Nth(wd.N)
		}
		weekdays = append(weekdays, base)
	}

	interval := r.Interval
	if interval == 0 {
		interval = 1
	}

	compiled, err := rrule.NewRRule(rrule.ROption{
		Freq:       rrule.Frequency(r.Freq),
		Dtstart:    r.Dtstart,
		Interval:   interval,
		Wkst:       rruleWeekdays[r.Wkst],
		Count:      r.Count,
		Until:      r.Until,
		Bysetpos:   r.BySetPos,
		Bymonth:    r.ByMonth,
		Bymonthday: r.ByMonthDay,
		Byyearday:  r.ByYearDay,
		Byeaster:   r.ByEaster,
		Byweekno:   r.ByWeekNo,
		Byweekday:  weekdays,
		Byhour:     r.ByHour,
		Byminute:   r.ByMinute,
		Bysecond:   r.BySecond,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid calendar rule: %w", err)
	}
	return compiled, nil
}
