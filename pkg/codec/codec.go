package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // named zones must resolve on hosts without a zoneinfo database

	"github.com/rs/zerolog"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/schedule"
)

// Wire keys shared by every record.
const (
	TypeKey       = "__type__"
	ImportPathKey = "import_path"
)

// Built-in type tags.
const (
	TypeDatetime = "datetime"
	TypeInterval = "interval"
	TypeCrontab  = "crontab"
	TypeRRule    = "rrule"
	TypeWeekday  = "weekday"
)

// Factory returns a zero value of a custom schedule type, ready to be
// populated from wire attributes. It must return a pointer.
type Factory func() schedule.Encodable

// Codec converts schedules and instants to and from self-describing JSON
// records. Encoding an unknown value fails; decoding an unknown custom type
// degrades to a *schedule.Unresolved and logs a warning, so one missing
// type does not poison a whole batch.
type Codec struct {
	log zerolog.Logger

	mu    sync.RWMutex
	types map[string]Factory
}

// New creates a Codec that reports decode warnings to log.
func New(log zerolog.Logger) *Codec {
	return &Codec{
		log:   log,
		types: make(map[string]Factory),
	}
}

// Register makes a custom schedule type resolvable by its type identifier.
// Registering the same identifier again replaces the factory.
func (c *Codec) Register(typeID string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[typeID] = factory
}

func (c *Codec) lookup(typeID string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.types[typeID]
	return f, ok
}

// Encode serializes v, which must be a time.Time, a built-in schedule, a
// schedule.Weekday or a schedule.Encodable.
func (c *Codec) Encode(v any) ([]byte, error) {
	rec, err := c.ToRecord(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// Decode parses a record produced by Encode. JSON objects without a type
// tag are returned as plain maps.
func (c *Codec) Decode(data []byte) (any, error) {
	var raw any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec, ok := raw.(map[string]any)
	if !ok {
		return raw, nil
	}
	return c.FromRecord(rec)
}

// EncodeSchedule serializes a schedule.
func (c *Codec) EncodeSchedule(s schedule.Schedule) ([]byte, error) {
	return c.Encode(s)
}

// DecodeSchedule parses a schedule record.
func (c *Codec) DecodeSchedule(data []byte) (schedule.Schedule, error) {
	v, err := c.Decode(data)
	if err != nil {
		return nil, err
	}
	s, ok := v.(schedule.Schedule)
	if !ok {
		return nil, fmt.Errorf("decode schedule: record of kind %T is not a schedule", v)
	}
	return s, nil
}

// EncodeInstant serializes a timezone-aware instant with microsecond precision.
func (c *Codec) EncodeInstant(t time.Time) ([]byte, error) {
	return c.Encode(t)
}

// DecodeInstant parses an instant record.
func (c *Codec) DecodeInstant(data []byte) (time.Time, error) {
	v, err := c.Decode(data)
	if err != nil {
		return time.Time{}, err
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("decode instant: record of kind %T is not an instant", v)
	}
	return t, nil
}

// ToRecord converts v into its wire mapping.
func (c *Codec) ToRecord(v any) (map[string]any, error) {
	switch x := v.(type) {
	case time.Time:
		return instantRecord(x), nil
	case *time.Time:
		if x == nil {
			return nil, &bferrors.UnsupportedTypeError{Type: "nil *time.Time"}
		}
		return instantRecord(*x), nil
	case *schedule.Interval:
		return intervalRecord(x), nil
	case schedule.Interval:
		return intervalRecord(&x), nil
	case *schedule.Crontab:
		return crontabRecord(x), nil
	case *schedule.CalendarRule:
		return rruleRecord(x), nil
	case schedule.Weekday:
		return weekdayRecord(x), nil
	case *schedule.Unresolved:
		return unresolvedRecord(x), nil
	case schedule.Encodable:
		return c.customRecord(x)
	default:
		return nil, &bferrors.UnsupportedTypeError{Type: fmt.Sprintf("%T", v)}
	}
}

// FromRecord converts a wire mapping back into a value, dispatching on its
// type tag. The mapping is not modified.
func (c *Codec) FromRecord(rec map[string]any) (any, error) {
	tag, ok := rec[TypeKey].(string)
	if !ok {
		return rec, nil
	}

	switch tag {
	case TypeDatetime:
		return decodeInstant(rec)
	case TypeInterval:
		return decodeInterval(rec)
	case TypeCrontab:
		return decodeCrontab(rec)
	case TypeRRule:
		return decodeRRule(rec)
	case TypeWeekday:
		return decodeWeekday(rec)
	default:
		return c.decodeCustom(tag, rec)
	}
}

// EncodePayload serializes opaque task arguments. Instants and schedules
// nested anywhere in maps or slices are written as records.
func (c *Codec) EncodePayload(v any) ([]byte, error) {
	enc, err := c.encodeNested(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(enc)
}

// DecodePayload parses data written by EncodePayload, restoring nested
// records to their values.
func (c *Codec) DecodePayload(data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return c.decodeNested(raw), nil
}
