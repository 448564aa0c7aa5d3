package codec

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

func instantRecord(t time.Time) map[string]any {
	return map[string]any{
		TypeKey:       TypeDatetime,
		"year":        t.Year(),
		"month":       int(t.Month()),
		"day":         t.Day(),
		"hour":        t.Hour(),
		"minute":      t.Minute(),
		"second":      t.Second(),
		"microsecond": t.Nanosecond() / int(time.Microsecond),
		"timezone":    zoneOf(t),
	}
}

// zoneOf returns the IANA name of t's location when it resolves to a zone
// with the same offset at t, otherwise t's UTC offset in seconds. Fixed
// zones that merely borrow an IANA name ("EET", "UTC") keep their offset.
func zoneOf(t time.Time) any {
	_, offset := t.Zone()
	name := t.Location().String()
	if name != "" && name != "Local" {
		if loaded, err := time.LoadLocation(name); err == nil {
			if _, named := t.In(loaded).Zone(); named == offset {
				return name
			}
		}
	}
	return offset
}

func decodeInstant(rec map[string]any) (time.Time, error) {
	fields := [...]string{"year", "month", "day", "hour", "minute", "second", "microsecond"}
	var parts [len(fields)]int
	for i, key := range fields {
		raw, ok := rec[key]
		if !ok {
			if key == "microsecond" {
				continue
			}
			return time.Time{}, fmt.Errorf("decode datetime: missing %q", key)
		}
		v, err := cast.ToIntE(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("decode datetime %s: %w", key, err)
		}
		parts[i] = v
	}

	loc, err := locationOf(rec["timezone"])
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(parts[0], time.Month(parts[1]), parts[2],
		parts[3], parts[4], parts[5], parts[6]*int(time.Microsecond), loc), nil
}

// locationOf rebuilds a location from a stored zone: a number is a fixed
// offset in seconds, a string is an IANA name, absence means UTC.
func locationOf(zone any) (*time.Location, error) {
	switch z := zone.(type) {
	case nil:
		return time.UTC, nil
	case string:
		if z == "" || z == "UTC" {
			return time.UTC, nil
		}
		loc, err := time.LoadLocation(z)
		if err != nil {
			return nil, fmt.Errorf("decode datetime timezone %q: %w", z, err)
		}
		return loc, nil
	default:
		seconds, err := cast.ToFloat64E(z)
		if err != nil {
			return nil, fmt.Errorf("decode datetime timezone %v: %w", z, err)
		}
		return time.FixedZone("", int(seconds)), nil
	}
}

// toTimestamp returns whole seconds since the epoch.
func toTimestamp(t time.Time) int64 {
	return t.Unix()
}

// utcOffsetMinutes returns t's offset from UTC in minutes.
func utcOffsetMinutes(t time.Time) int {
	_, offset := t.Zone()
	return offset / 60
}

// fromTimestamp converts epoch seconds to an instant carrying the given
// offset, or UTC when the offset is zero.
func fromTimestamp(seconds int64, offsetMinutes int) time.Time {
	loc := time.UTC
	if offsetMinutes != 0 {
		loc = time.FixedZone("", offsetMinutes*60)
	}
	return time.Unix(seconds, 0).In(loc)
}
