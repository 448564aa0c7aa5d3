package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/vnykmshr/beatflow/pkg/codec"
	"github.com/vnykmshr/beatflow/pkg/entry"
	"github.com/vnykmshr/beatflow/pkg/schedule"
)

// StaticEntries builds entries from the beat_schedule definitions, sorted
// by name. A definition looks like:
//
//	cleanup:
//	  task: tasks.cleanup
//	  schedule: 30s            # duration, seconds, cron expression or record
//	  args: [1, 2]
//	  kwargs: {dry_run: true}
//	  options: {queue: maintenance}
//	  enabled: true
//
// Records carrying a "__type__" tag are decoded with cd, which must know
// any custom schedule types they reference.
func (c *Config) StaticEntries(cd *codec.Codec) ([]*entry.Entry, error) {
	names := make([]string, 0, len(c.Schedule))
	for name := range c.Schedule {
		names = append(names, name)
	}
	slices.Sort(names)

	entries := make([]*entry.Entry, 0, len(names))
	for _, name := range names {
		e, err := staticEntry(cd, name, c.Schedule[name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", SettingSchedule, name, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func staticEntry(cd *codec.Codec, name string, raw any) (*entry.Entry, error) {
	def, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil, fmt.Errorf("definition must be a mapping: %w", err)
	}

	sched, err := parseSchedule(cd, def["schedule"])
	if err != nil {
		return nil, err
	}

	e, err := entry.New(name, cast.ToString(def["task"]), sched)
	if err != nil {
		return nil, err
	}

	if v, ok := def["args"]; ok && v != nil {
		if e.Args, err = cast.ToSliceE(v); err != nil {
			return nil, fmt.Errorf("args: %w", err)
		}
	}
	if v, ok := def["kwargs"]; ok && v != nil {
		if e.Kwargs, err = cast.ToStringMapE(v); err != nil {
			return nil, fmt.Errorf("kwargs: %w", err)
		}
	}
	if v, ok := def["options"]; ok && v != nil {
		if e.Options, err = cast.ToStringMapE(v); err != nil {
			return nil, fmt.Errorf("options: %w", err)
		}
	}
	if v, ok := def["enabled"]; ok && v != nil {
		if e.Enabled, err = cast.ToBoolE(v); err != nil {
			return nil, fmt.Errorf("enabled: %w", err)
		}
	}
	return e, nil
}

// parseSchedule accepts a duration string ("90s"), a number of seconds, a
// five-field cron expression or a tagged schedule record.
func parseSchedule(cd *codec.Codec, raw any) (schedule.Schedule, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("schedule is required")
	case string:
		s := strings.TrimSpace(v)
		if d, err := time.ParseDuration(s); err == nil {
			return schedule.NewInterval(d, false)
		}
		fields := strings.Fields(s)
		if len(fields) != 5 {
			return nil, fmt.Errorf("schedule %q is neither a duration nor a cron expression", v)
		}
		return schedule.NewCrontab(fields[0], fields[1], fields[4], fields[2], fields[3])
	case map[string]any:
		decoded, err := cd.FromRecord(v)
		if err != nil {
			return nil, err
		}
		sched, ok := decoded.(schedule.Schedule)
		if !ok {
			return nil, fmt.Errorf("schedule record of kind %T is not a schedule", decoded)
		}
		return sched, nil
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("schedule: %w", err)
		}
		return schedule.NewInterval(time.Duration(secs*float64(time.Second)), false)
	}
}
