package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vnykmshr/beatflow/pkg/common/validation"
)

// CronField is one of the five crontab positions: either every value
// (the zero CronField) or an explicit set of allowed integers.
type CronField struct {
	values []int
}

// Values returns a field restricted to the given values.
func Values(v ...int) CronField {
	out := slices.Clone(v)
	slices.Sort(out)
	return CronField{values: slices.Compact(out)}
}

// IsEvery reports whether the field is unrestricted.
func (f CronField) IsEvery() bool { return len(f.values) == 0 }

// Allowed returns a copy of the explicit values, nil for an unrestricted field.
func (f CronField) Allowed() []int { return slices.Clone(f.values) }

// String renders the field in crontab syntax ("*" or "0,15,30").
func (f CronField) String() string {
	if f.IsEvery() {
		return "*"
	}
	parts := make([]string, len(f.values))
	for i, v := range f.values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

type fieldBounds struct {
	name   string
	lo, hi int
	names  map[string]int
}

var (
	minuteBounds = fieldBounds{name: "minute", lo: 0, hi: 59}
	hourBounds   = fieldBounds{name: "hour", lo: 0, hi: 23}
	dowBounds    = fieldBounds{name: "day_of_week", lo: 0, hi: 6, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
	domBounds   = fieldBounds{name: "day_of_month", lo: 1, hi: 31}
	monthBounds = fieldBounds{name: "month_of_year", lo: 1, hi: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
)

// Crontab fires at instants matching all five fields, with the usual cron
// rule that day-of-week and day-of-month are OR-ed when both are restricted.
// Day-of-week counts from Sunday = 0. Instants are matched in the location
// of the previous run.
type Crontab struct {
	Minute      CronField
	Hour        CronField
	DayOfWeek   CronField
	DayOfMonth  CronField
	MonthOfYear CronField

	compiled cron.Schedule
}

// NewCrontab parses the five fields. Each accepts "*", single values,
// ranges ("1-5"), steps ("*/15", "10-40/10"), comma lists and, for days and
// months, three-letter names.
func NewCrontab(minute, hour, dayOfWeek, dayOfMonth, monthOfYear string) (*Crontab, error) {
	var c Crontab
	var err error

	if c.Minute, err = parseCronField(minute, minuteBounds); err != nil {
		return nil, err
	}
	if c.Hour, err = parseCronField(hour, hourBounds); err != nil {
		return nil, err
	}
	if c.DayOfWeek, err = parseCronField(dayOfWeek, dowBounds); err != nil {
		return nil, err
	}
	if c.DayOfMonth, err = parseCronField(dayOfMonth, domBounds); err != nil {
		return nil, err
	}
	if c.MonthOfYear, err = parseCronField(monthOfYear, monthBounds); err != nil {
		return nil, err
	}

	if c.compiled, err = c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Spec returns the standard five-field expression
// ("minute hour day-of-month month day-of-week").
func (c *Crontab) Spec() string {
	return strings.Join([]string{
		c.Minute.String(),
		c.Hour.String(),
		c.DayOfMonth.String(),
		c.MonthOfYear.String(),
		c.DayOfWeek.String(),
	}, " ")
}

func (c *Crontab) Next(last time.Time) (time.Time, bool) {
	sched := c.compiled
	if sched == nil {
		var err error
		if sched, err = c.compile(); err != nil {
			return time.Time{}, false
		}
	}
	next := sched.Next(last)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (c *Crontab) compile() (cron.Schedule, error) {
	sched, err := cron.ParseStandard(c.Spec())
	if err != nil {
		return nil, fmt.Errorf("invalid crontab %q: %w", c.Spec(), err)
	}
	return sched, nil
}

func parseCronField(expr string, b fieldBounds) (CronField, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" || expr == "*" || expr == "?" {
		return CronField{}, nil
	}

	var values []int
	for _, part := range strings.Split(expr, ",") {
		vals, every, err := parseCronPart(part, b)
		if err != nil {
			return CronField{}, err
		}
		if every {
			return CronField{}, nil
		}
		values = append(values, vals...)
	}
	if b.name == dowBounds.name {
		for i, v := range values {
			if v == 7 {
				values[i] = 0
			}
		}
	}
	return Values(values...), nil
}

// parseCronPart expands one comma-separated term. every is true when the
// term covers the whole range with step 1.
func parseCronPart(part string, b fieldBounds) (vals []int, every bool, err error) {
	rangeExpr, stepExpr, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		if step, err = strconv.Atoi(stepExpr); err != nil || step <= 0 {
			return nil, false, fmt.Errorf("invalid %s step %q", b.name, part)
		}
	}

	lo, hi := b.lo, b.hi
	switch {
	case rangeExpr == "*":
		if step == 1 {
			return nil, true, nil
		}
	case strings.Contains(rangeExpr, "-"):
		start, end, _ := strings.Cut(rangeExpr, "-")
		if lo, err = b.value(start); err != nil {
			return nil, false, err
		}
		if hi, err = b.value(end); err != nil {
			return nil, false, err
		}
		if lo > hi {
			return nil, false, fmt.Errorf("invalid %s range %q", b.name, part)
		}
	default:
		if lo, err = b.value(rangeExpr); err != nil {
			return nil, false, err
		}
		if !hasStep {
			hi = lo
		}
	}

	for v := lo; v <= hi; v += step {
		vals = append(vals, v)
	}
	return vals, false, nil
}

func (b fieldBounds) value(s string) (int, error) {
	if v, ok := b.names[s]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", b.name, s)
	}
	hi := b.hi
	if b.name == dowBounds.name {
		hi = 7 // Sunday may be written as 7
	}
	if err := validation.ValidateRange("schedule", b.name, v, b.lo, hi); err != nil {
		return 0, err
	}
	return v, nil
}
