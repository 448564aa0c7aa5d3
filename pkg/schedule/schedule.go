package schedule

import (
	"maps"
	"time"
)

// Schedule is a recurrence rule. Interval, Crontab and CalendarRule are the
// built-in kinds; any other type must implement Encodable to be persisted.
type Schedule interface {
	// Next returns the first due instant strictly after last. ok is false
	// when the schedule has no further occurrences.
	Next(last time.Time) (next time.Time, ok bool)
}

// Encodable is implemented by custom schedule types that can describe
// themselves on the wire.
type Encodable interface {
	Schedule

	// TypeID returns the identifier the type is registered under, usually
	// its fully qualified Go name ("github.com/acme/jobs.SolarSchedule").
	TypeID() string

	// EncodeAttrs returns the attribute mapping that reconstructs the value.
	EncodeAttrs() (map[string]any, error)
}

// WireInitializer is implemented by custom types that want to populate
// themselves from decoded attributes instead of the default JSON mapping.
type WireInitializer interface {
	InitFromWire(attrs map[string]any) error
}

// Unresolved holds a custom schedule whose type is not registered in this
// process. It is never due and re-encodes to the record it came from.
type Unresolved struct {
	Type       string
	ImportPath string
	Attrs      map[string]any
}

// Next always reports no occurrence.
func (u *Unresolved) Next(time.Time) (time.Time, bool) {
	return time.Time{}, false
}

func (u *Unresolved) TypeID() string { return u.ImportPath }

func (u *Unresolved) EncodeAttrs() (map[string]any, error) {
	return maps.Clone(u.Attrs), nil
}
