// Package entry models a named periodic schedule entry and its pure state
// transitions: due time, index score and advancing after a run.
package entry

import (
	"fmt"
	"maps"
	"slices"
	"time"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/common/validation"
	"github.com/vnykmshr/beatflow/pkg/schedule"
)

// MaxScore is the index score of an entry whose schedule has no further
// occurrences (9999-12-31T23:59:59Z). Such entries sort last and never fire.
const MaxScore int64 = 253402300799

// Entry is one named, independently scheduled unit of work.
//
// An Entry is treated as an immutable snapshot once persisted: Advance
// returns a new value instead of mutating the receiver.
type Entry struct {
	Name     string
	Task     string
	Schedule schedule.Schedule

	// Args, Kwargs and Options hold JSON values once loaded: numbers come
	// back as float64, nested objects as map[string]any, and instants as
	// time.Time.
	Args    []any
	Kwargs  map[string]any
	Options map[string]any
	Enabled bool

	// LastRunAt is the zero time until the entry has run once.
	LastRunAt     time.Time
	TotalRunCount int
}

// New returns an enabled entry that has never run.
func New(name, task string, sched schedule.Schedule) (*Entry, error) {
	e := &Entry{
		Name:     name,
		Task:     task,
		Schedule: sched,
		Enabled:  true,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the fields every persisted entry must carry.
func (e *Entry) Validate() error {
	if err := validation.ValidateNotEmpty("entry", "name", e.Name); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("entry", "task", e.Task); err != nil {
		return err
	}
	if err := validation.ValidateNotNil("entry", "schedule", e.Schedule); err != nil {
		return err
	}
	if e.TotalRunCount < 0 {
		return bferrors.NewValidationError("entry", "total_run_count", e.TotalRunCount, "cannot be negative")
	}
	return nil
}

// DueAt returns the instant the entry is next due. An entry that never ran
// is due at now. ok is false when the schedule is exhausted.
func (e *Entry) DueAt(now time.Time) (due time.Time, ok bool) {
	if e.LastRunAt.IsZero() {
		return now, true
	}
	return e.Schedule.Next(e.LastRunAt)
}

// IsDue reports whether now is at or past the entry's due instant.
func (e *Entry) IsDue(now time.Time) bool {
	due, ok := e.DueAt(now)
	return ok && !now.Before(due)
}

// Score is the due instant in whole seconds since the epoch, the sort key
// of the due-ordering index.
func (e *Entry) Score(now time.Time) int64 {
	due, ok := e.DueAt(now)
	if !ok {
		return MaxScore
	}
	return due.Unix()
}

// Remaining returns how long until the entry is due, zero when overdue.
func (e *Entry) Remaining(now time.Time) time.Duration {
	due, ok := e.DueAt(now)
	if !ok {
		return time.Duration(MaxScore-now.Unix()) * time.Second
	}
	if d := due.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Advance returns the successor of e after a run observed at at. The run
// counter is incremented unless onlyUpdateLastRunAt is set. at must not be
// the zero time.
func (e *Entry) Advance(at time.Time, onlyUpdateLastRunAt bool) (*Entry, error) {
	if at.IsZero() {
		return nil, &bferrors.InvalidStateError{Reason: fmt.Sprintf("entry %q: run instant has no time zone", e.Name)}
	}

	next := e.Clone()
	next.LastRunAt = at
	if !onlyUpdateLastRunAt {
		next.TotalRunCount++
	}
	return next, nil
}

// Clone returns a copy of e whose argument slices and maps are not shared.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Args = slices.Clone(e.Args)
	c.Kwargs = maps.Clone(e.Kwargs)
	c.Options = maps.Clone(e.Options)
	return &c
}

func (e *Entry) String() string {
	return fmt.Sprintf("<entry %s %s(%v, %v) runs=%d>", e.Name, e.Task, e.Args, e.Kwargs, e.TotalRunCount)
}
