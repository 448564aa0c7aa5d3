package codec

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cast"

	"github.com/vnykmshr/beatflow/pkg/schedule"
)

func intervalRecord(i *schedule.Interval) map[string]any {
	return map[string]any{
		TypeKey:    TypeInterval,
		"every":    i.Every.Seconds(),
		"relative": i.Relative,
	}
}

func decodeInterval(rec map[string]any) (*schedule.Interval, error) {
	seconds, err := cast.ToFloat64E(rec["every"])
	if err != nil {
		return nil, fmt.Errorf("decode interval every: %w", err)
	}
	relative, err := cast.ToBoolE(orDefault(rec["relative"], false))
	if err != nil {
		return nil, fmt.Errorf("decode interval relative: %w", err)
	}
	every := time.Duration(math.Round(seconds * float64(time.Second)))
	return schedule.NewInterval(every, relative)
}

func crontabRecord(c *schedule.Crontab) map[string]any {
	return map[string]any{
		TypeKey:         TypeCrontab,
		"minute":        c.Minute.String(),
		"hour":          c.Hour.String(),
		"day_of_week":   c.DayOfWeek.String(),
		"day_of_month":  c.DayOfMonth.String(),
		"month_of_year": c.MonthOfYear.String(),
	}
}

func decodeCrontab(rec map[string]any) (*schedule.Crontab, error) {
	field := func(key string) string {
		v, ok := rec[key]
		if !ok || v == nil {
			return "*"
		}
		return cast.ToString(v)
	}
	return schedule.NewCrontab(
		field("minute"),
		field("hour"),
		field("day_of_week"),
		field("day_of_month"),
		field("month_of_year"),
	)
}

func weekdayRecord(wd schedule.Weekday) map[string]any {
	return map[string]any{
		TypeKey: TypeWeekday,
		"wkday": wd.Day,
		"n":     wd.N,
	}
}

func decodeWeekday(rec map[string]any) (schedule.Weekday, error) {
	day, err := cast.ToIntE(rec["wkday"])
	if err != nil {
		return schedule.Weekday{}, fmt.Errorf("decode weekday: %w", err)
	}
	n, err := cast.ToIntE(orDefault(rec["n"], 0))
	if err != nil {
		return schedule.Weekday{}, fmt.Errorf("decode weekday n: %w", err)
	}
	return schedule.Weekday{Day: day, N: n}, nil
}

// rruleListFields maps wire keys to the integer lists of a CalendarRule.
var rruleListFields = []struct {
	key string
	get func(*schedule.CalendarRule) *[]int
}{
	{"bysetpos", func(r *schedule.CalendarRule) *[]int { return &r.BySetPos }},
	{"bymonth", func(r *schedule.CalendarRule) *[]int { return &r.ByMonth }},
	{"bymonthday", func(r *schedule.CalendarRule) *[]int { return &r.ByMonthDay }},
	{"byyearday", func(r *schedule.CalendarRule) *[]int { return &r.ByYearDay }},
	{"byeaster", func(r *schedule.CalendarRule) *[]int { return &r.ByEaster }},
	{"byweekno", func(r *schedule.CalendarRule) *[]int { return &r.ByWeekNo }},
	{"byhour", func(r *schedule.CalendarRule) *[]int { return &r.ByHour }},
	{"byminute", func(r *schedule.CalendarRule) *[]int { return &r.ByMinute }},
	{"bysecond", func(r *schedule.CalendarRule) *[]int { return &r.BySecond }},
}

// rruleRecord emits every rule field. Start and end instants are stored as
// epoch seconds plus a sibling UTC offset in minutes, so they come back in
// their original offset with whole-second precision.
func rruleRecord(r *schedule.CalendarRule) map[string]any {
	rec := map[string]any{
		TypeKey:    TypeRRule,
		"freq":     int(r.Freq),
		"interval": r.Interval,
		"wkst":     r.Wkst,
		"count":    nil,
	}
	if r.Count > 0 {
		rec["count"] = r.Count
	}

	for _, f := range rruleListFields {
		list := *f.get(r)
		if len(list) == 0 {
			rec[f.key] = nil
			continue
		}
		rec[f.key] = list
	}

	if len(r.ByWeekday) > 0 {
		days := make([]any, len(r.ByWeekday))
		for i, wd := range r.ByWeekday {
			days[i] = weekdayRecord(wd)
		}
		rec["byweekday"] = days
	} else {
		rec["byweekday"] = nil
	}

	if !r.Dtstart.IsZero() {
		rec["dtstart"] = toTimestamp(r.Dtstart)
		rec["dtstart_tz"] = utcOffsetMinutes(r.Dtstart)
	}
	if !r.Until.IsZero() {
		rec["until"] = toTimestamp(r.Until)
		rec["until_tz"] = utcOffsetMinutes(r.Until)
	}
	return rec
}

func decodeRRule(rec map[string]any) (*schedule.CalendarRule, error) {
	var rule schedule.CalendarRule
	var err error

	freq, err := cast.ToIntE(rec["freq"])
	if err != nil {
		return nil, fmt.Errorf("decode rrule freq: %w", err)
	}
	rule.Freq = schedule.Frequency(freq)

	if rule.Interval, err = cast.ToIntE(orDefault(rec["interval"], 1)); err != nil {
		return nil, fmt.Errorf("decode rrule interval: %w", err)
	}
	if rule.Wkst, err = cast.ToIntE(orDefault(rec["wkst"], 0)); err != nil {
		return nil, fmt.Errorf("decode rrule wkst: %w", err)
	}
	if rule.Count, err = cast.ToIntE(orDefault(rec["count"], 0)); err != nil {
		return nil, fmt.Errorf("decode rrule count: %w", err)
	}

	for _, f := range rruleListFields {
		list, err := intList(rec[f.key])
		if err != nil {
			return nil, fmt.Errorf("decode rrule %s: %w", f.key, err)
		}
		*f.get(&rule) = list
	}

	if rule.ByWeekday, err = weekdayList(rec["byweekday"]); err != nil {
		return nil, err
	}

	if rule.Dtstart, err = boundary(rec, "dtstart", "dtstart_tz"); err != nil {
		return nil, err
	}
	if rule.Until, err = boundary(rec, "until", "until_tz"); err != nil {
		return nil, err
	}

	return schedule.NewCalendarRule(rule)
}

func boundary(rec map[string]any, key, tzKey string) (time.Time, error) {
	raw, ok := rec[key]
	if !ok || raw == nil {
		return time.Time{}, nil
	}
	seconds, err := cast.ToInt64E(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode rrule %s: %w", key, err)
	}
	minutes, err := cast.ToFloat64E(orDefault(rec[tzKey], 0))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode rrule %s: %w", tzKey, err)
	}
	return fromTimestamp(seconds, int(minutes)), nil
}

func intList(v any) ([]int, error) {
	if v == nil {
		return nil, nil
	}
	if n, ok := v.(float64); ok {
		return []int{int(n)}, nil
	}
	list, err := cast.ToIntSliceE(v)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}

func weekdayList(v any) ([]schedule.Weekday, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}

	days := make([]schedule.Weekday, 0, len(items))
	for _, item := range items {
		switch x := item.(type) {
		case map[string]any:
			wd, err := decodeWeekday(x)
			if err != nil {
				return nil, err
			}
			days = append(days, wd)
		default:
			day, err := cast.ToIntE(x)
			if err != nil {
				return nil, fmt.Errorf("decode rrule byweekday: %w", err)
			}
			days = append(days, schedule.Weekday{Day: day})
		}
	}
	if len(days) == 0 {
		return nil, nil
	}
	return days, nil
}

func orDefault(v, def any) any {
	if v == nil {
		return def
	}
	return v
}
