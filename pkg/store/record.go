package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"github.com/vnykmshr/beatflow/pkg/entry"
)

// Hash fields of a persisted entry.
const (
	fieldName          = "name"
	fieldTask          = "task"
	fieldSchedule      = "schedule"
	fieldArgs          = "args"
	fieldKwargs        = "kwargs"
	fieldOptions       = "options"
	fieldEnabled       = "enabled"
	fieldLastRunAt     = "last_run_at"
	fieldTotalRunCount = "total_run_count"

	// Older records kept the entry in two JSON blobs.
	fieldDefinition = "definition"
	fieldMeta       = "meta"
)

// updateIfExists rewrites the entry hash at KEYS[1] and its position in the
// index at KEYS[2], only when the hash exists. ARGV[1] is the index score,
// empty to drop the entry from the index; ARGV[2] is the number of stale
// fields that follow; the remaining arguments are field/value pairs. It
// returns 1 on write and 0 when the hash is absent.
var updateIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local nstale = tonumber(ARGV[2])
local stale = {}
for i = 3, 2 + nstale do
	stale[#stale + 1] = ARGV[i]
end
local fields = {}
for i = 3 + nstale, #ARGV do
	fields[#fields + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], unpack(fields))
if #stale > 0 then
	redis.call('HDEL', KEYS[1], unpack(stale))
end
if ARGV[1] == '' then
	redis.call('ZREM', KEYS[2], KEYS[1])
else
	redis.call('ZADD', KEYS[2], ARGV[1], KEYS[1])
end
return 1
`)

func (s *Store) encode(e *entry.Entry) (map[string]any, error) {
	sched, err := s.codec.EncodeSchedule(e.Schedule)
	if err != nil {
		return nil, err
	}
	args, err := s.codec.EncodePayload(e.Args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	kwargs, err := s.codec.EncodePayload(orEmpty(e.Kwargs))
	if err != nil {
		return nil, fmt.Errorf("encode kwargs: %w", err)
	}
	options, err := s.codec.EncodePayload(orEmpty(e.Options))
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}

	fields := map[string]any{
		fieldName:          e.Name,
		fieldTask:          e.Task,
		fieldSchedule:      string(sched),
		fieldArgs:          string(args),
		fieldKwargs:        string(kwargs),
		fieldOptions:       string(options),
		fieldEnabled:       strconv.FormatBool(e.Enabled),
		fieldTotalRunCount: strconv.Itoa(e.TotalRunCount),
	}
	if !e.LastRunAt.IsZero() {
		last, err := s.codec.EncodeInstant(e.LastRunAt)
		if err != nil {
			return nil, err
		}
		fields[fieldLastRunAt] = string(last)
	}
	return fields, nil
}

// staleFields lists the fields a write of e must remove: the legacy blobs
// and, for a never-run entry, any previous run instant.
func staleFields(e *entry.Entry) []string {
	stale := []string{fieldDefinition, fieldMeta}
	if e.LastRunAt.IsZero() {
		stale = append(stale, fieldLastRunAt)
	}
	return stale
}

func (s *Store) decode(name string, fields map[string]string) (*entry.Entry, error) {
	if _, ok := fields[fieldTask]; !ok {
		var err error
		if fields, err = fromLegacy(fields); err != nil {
			return nil, err
		}
	}

	e := &entry.Entry{
		Name:    name,
		Task:    fields[fieldTask],
		Enabled: true,
	}
	if n := fields[fieldName]; n != "" {
		e.Name = n
	}

	sched, err := s.codec.DecodeSchedule([]byte(fields[fieldSchedule]))
	if err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	e.Schedule = sched

	if raw := fields[fieldArgs]; raw != "" {
		v, err := s.codec.DecodePayload([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		if v != nil {
			if e.Args, err = cast.ToSliceE(v); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
		}
	}
	if e.Kwargs, err = s.decodeMap(fields[fieldKwargs]); err != nil {
		return nil, fmt.Errorf("decode kwargs: %w", err)
	}
	if e.Options, err = s.decodeMap(fields[fieldOptions]); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}

	if raw := fields[fieldEnabled]; raw != "" {
		if e.Enabled, err = strconv.ParseBool(raw); err != nil {
			return nil, fmt.Errorf("decode enabled: %w", err)
		}
	}
	if raw := fields[fieldLastRunAt]; raw != "" && raw != "null" {
		if e.LastRunAt, err = s.codec.DecodeInstant([]byte(raw)); err != nil {
			return nil, fmt.Errorf("decode last_run_at: %w", err)
		}
	}
	if raw := fields[fieldTotalRunCount]; raw != "" {
		if e.TotalRunCount, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("decode total_run_count: %w", err)
		}
	}
	return e, nil
}

func (s *Store) decodeMap(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	v, err := s.codec.DecodePayload([]byte(raw))
	if err != nil || v == nil {
		return map[string]any{}, err
	}
	return cast.ToStringMapE(v)
}

// fromLegacy flattens the definition and meta blobs into per-field values.
// Fields already present at the top level win.
func fromLegacy(fields map[string]string) (map[string]string, error) {
	out := maps.Clone(fields)
	for _, blob := range []string{fieldDefinition, fieldMeta} {
		raw, ok := fields[blob]
		if !ok {
			continue
		}
		var parts map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &parts); err != nil {
			return nil, fmt.Errorf("decode %s: %w", blob, err)
		}
		for k, v := range parts {
			if _, set := out[k]; set {
				continue
			}
			switch k {
			case fieldName, fieldTask:
				var str string
				if err := json.Unmarshal(v, &str); err != nil {
					return nil, fmt.Errorf("decode %s.%s: %w", blob, k, err)
				}
				out[k] = str
			default:
				out[k] = string(v)
			}
		}
	}
	if _, ok := out[fieldTask]; !ok {
		return nil, fmt.Errorf("record has no task")
	}
	return out, nil
}

// flatten turns fields into HSET arguments in a stable order.
func flatten(fields map[string]any) []any {
	keys := slices.Sorted(maps.Keys(fields))
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
