package entry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/schedule"
)

func newTestEntry(t *testing.T, every time.Duration) *Entry {
	t.Helper()
	e, err := New("test", "tasks.test", schedule.Every(every))
	require.NoError(t, err)
	return e
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		ename string
		task  string
		sched schedule.Schedule
	}{
		{"empty name", "", "tasks.test", schedule.Every(time.Minute)},
		{"blank task", "test", "  ", schedule.Every(time.Minute)},
		{"nil schedule", "test", "tasks.test", nil},
		{"typed nil schedule", "test", "tasks.test", (*schedule.Interval)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.ename, tt.task, tt.sched)
			require.Error(t, err)
			assert.True(t, bferrors.IsValidationError(err))
		})
	}
}

func TestNeverRunIsImmediatelyDue(t *testing.T) {
	e := newTestEntry(t, time.Hour)

	before := time.Now()
	due, ok := e.DueAt(time.Now())
	after := time.Now()

	require.True(t, ok)
	assert.False(t, due.Before(before))
	assert.False(t, due.After(after))
	assert.True(t, e.IsDue(after))
	assert.Zero(t, e.Remaining(after))
}

func TestScenario_IntervalAdvance(t *testing.T) {
	e := newTestEntry(t, 3660*time.Second)
	now := time.Now().UTC()

	assert.Equal(t, now.Unix(), e.Score(now))

	next, err := e.Advance(now, false)
	require.NoError(t, err)

	assert.Equal(t, now.Unix()+3660, next.Score(now))
	assert.Equal(t, 1, next.TotalRunCount)
	assert.False(t, next.IsDue(now))
	assert.True(t, next.IsDue(now.Add(3660*time.Second)))
	assert.Equal(t, 3660*time.Second, next.Remaining(now))
}

func TestAdvance(t *testing.T) {
	e := newTestEntry(t, time.Minute)
	e.Args = []any{1, "two"}
	e.Kwargs = map[string]any{"k": "v"}
	e.Options = map[string]any{"queue": "default"}

	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("increments counter", func(t *testing.T) {
		next, err := e.Advance(t1, false)
		require.NoError(t, err)
		assert.Equal(t, e.TotalRunCount+1, next.TotalRunCount)
		assert.True(t, next.LastRunAt.Equal(t1))
	})

	t.Run("only update last run", func(t *testing.T) {
		first, err := e.Advance(t1, false)
		require.NoError(t, err)

		t2 := t1.Add(time.Second)
		next, err := first.Advance(t2, true)
		require.NoError(t, err)
		assert.Equal(t, first.TotalRunCount, next.TotalRunCount)
		assert.True(t, next.LastRunAt.After(first.LastRunAt))
	})

	t.Run("does not mutate receiver", func(t *testing.T) {
		next, err := e.Advance(t1, false)
		require.NoError(t, err)

		next.Args[0] = 99
		next.Kwargs["k"] = "changed"
		next.Options["queue"] = "other"

		assert.Zero(t, e.TotalRunCount)
		assert.True(t, e.LastRunAt.IsZero())
		assert.Equal(t, 1, e.Args[0])
		assert.Equal(t, "v", e.Kwargs["k"])
		assert.Equal(t, "default", e.Options["queue"])
	})

	t.Run("idempotent under identical inputs", func(t *testing.T) {
		a, err := e.Advance(t1, false)
		require.NoError(t, err)
		b, err := e.Advance(t1, false)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("rejects zero instant", func(t *testing.T) {
		_, err := e.Advance(time.Time{}, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, bferrors.ErrInvalidState)
	})
}

func TestOverdueEntry(t *testing.T) {
	e := newTestEntry(t, 10*time.Minute)
	last := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	e.LastRunAt = last

	now := last.Add(2 * time.Hour)
	assert.True(t, e.IsDue(now))
	assert.Equal(t, last.Add(10*time.Minute).Unix(), e.Score(now))
	assert.Zero(t, e.Remaining(now))
}

func TestScoreTruncatesSubSecond(t *testing.T) {
	e := newTestEntry(t, 1500*time.Millisecond)
	e.LastRunAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, e.LastRunAt.Unix()+1, e.Score(e.LastRunAt))
}

func TestCrontabEntry(t *testing.T) {
	cron, err := schedule.NewCrontab("0", "9", "*", "*", "*")
	require.NoError(t, err)

	e, err := New("morning", "tasks.report", cron)
	require.NoError(t, err)
	e.LastRunAt = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	due, ok := e.DueAt(e.LastRunAt)
	require.True(t, ok)
	assert.True(t, due.Equal(time.Date(2024, 6, 11, 9, 0, 0, 0, time.UTC)), "got %v", due)
}

func TestExhaustedScheduleNeverDue(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rule, err := schedule.NewCalendarRule(schedule.CalendarRule{Freq: schedule.Daily, Count: 2, Dtstart: start})
	require.NoError(t, err)

	e, err := New("twice", "tasks.once", rule)
	require.NoError(t, err)
	e.LastRunAt = start.Add(24 * time.Hour)

	now := start.AddDate(1, 0, 0)
	assert.False(t, e.IsDue(now))
	assert.Equal(t, MaxScore, e.Score(now))
	assert.Positive(t, e.Remaining(now))
}

func TestUnresolvedScheduleNeverDueOnceRun(t *testing.T) {
	e, err := New("solar", "tasks.solar", &schedule.Unresolved{Type: "Sunrise"})
	require.NoError(t, err)
	e.LastRunAt = time.Now()

	assert.False(t, e.IsDue(time.Now().Add(24*time.Hour)))
	assert.Equal(t, MaxScore, e.Score(time.Now()))
}
