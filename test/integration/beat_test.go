package integration

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/beatflow/internal/testutil"
	"github.com/vnykmshr/beatflow/pkg/codec"
	"github.com/vnykmshr/beatflow/pkg/config"
	"github.com/vnykmshr/beatflow/pkg/coordinator"
	"github.com/vnykmshr/beatflow/pkg/dispatch"
	"github.com/vnykmshr/beatflow/pkg/store"
)

const settingsYAML = `
beat_key_prefix: "it:"
beat_max_interval: 5m
beat_reconcile_interval: 0
beat_schedule:
  cleanup:
    task: tasks.cleanup
    schedule: 90s
    kwargs:
      older_than: 7
  hourly:
    task: tasks.report
    schedule: "0 * * * *"
    options:
      queue: reports
`

// TestBeatsShareSchedule runs two scheduler processes against one Redis and
// checks that statics are dispatched once per due instant and that published
// messages decode back into task calls.
func TestBeatsShareSchedule(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	ctx := context.Background()

	settings, err := config.Parse("beat.yaml", []byte(settingsYAML))
	require.NoError(t, err)
	cfg, err := config.New(settings, zerolog.Nop())
	require.NoError(t, err)

	cd := codec.New(zerolog.Nop())
	statics, err := cfg.StaticEntries(cd)
	require.NoError(t, err)
	require.Len(t, statics, 2)

	clk := testutil.NewMockClock(time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC))

	newBeat := func() *coordinator.Coordinator {
		st, err := store.New(store.Options{Redis: rdb, Config: cfg, Codec: cd, Clock: clk})
		require.NoError(t, err)
		q, err := dispatch.NewQueue(dispatch.QueueOptions{Redis: rdb, Config: cfg, Codec: cd})
		require.NoError(t, err)
		co, err := coordinator.New(coordinator.Options{
			Redis:      rdb,
			Store:      st,
			Config:     cfg,
			Dispatcher: q,
			Statics:    statics,
			Clock:      clk,
		})
		require.NoError(t, err)
		return co
	}
	a, b := newBeat(), newBeat()

	drain := func(queue string) []*dispatch.Call {
		t.Helper()
		var calls []*dispatch.Call
		for {
			data, err := rdb.RPop(ctx, cfg.QueueKey(queue)).Bytes()
			if err != nil {
				break
			}
			call, err := dispatch.DecodeMessage(cd, data)
			require.NoError(t, err)
			calls = append(calls, call)
		}
		return calls
	}
	tasks := func(calls []*dispatch.Call) []string {
		var out []string
		for _, c := range calls {
			out = append(out, c.Task)
		}
		sort.Strings(out)
		return out
	}

	// First tick: both statics have never run and are due immediately.
	_, err = a.Tick(ctx)
	require.NoError(t, err)
	_, err = b.Tick(ctx)
	require.NoError(t, err)

	celery := drain(cfg.DispatchQueue)
	require.Len(t, celery, 1)
	assert.Equal(t, "tasks.cleanup", celery[0].Task)
	assert.Equal(t, map[string]any{"older_than": 7.0}, celery[0].Kwargs)
	assert.True(t, clk.Now().Equal(celery[0].ScheduledAt))
	assert.Equal(t, []string{"tasks.report"}, tasks(drain("reports")))

	// 90s later only the interval entry is due, and only one beat fires it.
	clk.Advance(90 * time.Second)
	sleepA, err := a.Tick(ctx)
	require.NoError(t, err)
	_, err = b.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks.cleanup"}, tasks(drain(cfg.DispatchQueue)))
	assert.Empty(t, drain("reports"))
	assert.Equal(t, 90*time.Second, sleepA)

	// At the top of the hour both are due again.
	clk.Set(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))
	_, err = b.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks.cleanup"}, tasks(drain(cfg.DispatchQueue)))
	assert.Equal(t, []string{"tasks.report"}, tasks(drain("reports")))
}
