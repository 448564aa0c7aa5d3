package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fresh := f.create(t, "fresh", time.Minute)
	_, err := f.store.Save(ctx, fresh)
	require.NoError(t, err)

	ran := f.create(t, "ran", time.Minute)
	ran, err = ran.Advance(f.clock.Now(), false)
	require.NoError(t, err)
	_, err = f.store.Save(ctx, ran)
	require.NoError(t, err)

	off := f.create(t, "off", time.Minute)
	_, err = f.store.Save(ctx, off)
	require.NoError(t, err)

	// Break the index in every way reconciliation repairs.
	_, err = f.mr.ZRem(f.cfg.ScheduleKey(), f.cfg.EntryKey("fresh"))
	require.NoError(t, err)
	_, err = f.mr.ZAdd(f.cfg.ScheduleKey(), 1, f.cfg.EntryKey("ran"))
	require.NoError(t, err)
	f.mr.HSet(f.cfg.EntryKey("off"), "enabled", "false")
	_, err = f.mr.ZAdd(f.cfg.ScheduleKey(), 1, f.cfg.EntryKey("ghost"))
	require.NoError(t, err)

	// Bookkeeping keys under the prefix are not entries.
	require.NoError(t, f.rdb.SAdd(ctx, f.cfg.StaticsKey(), "fresh").Err())
	require.NoError(t, f.rdb.LPush(ctx, f.cfg.QueueKey("celery"), "{}").Err())

	repaired, err := f.store.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, repaired)

	members, err := f.mr.ZMembers(f.cfg.ScheduleKey())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.cfg.EntryKey("fresh"), f.cfg.EntryKey("ran")}, members)
	assert.Equal(t, float64(f.clock.Now().Add(time.Minute).Unix()), f.score(t, "ran"))
	assert.Equal(t, float64(f.clock.Now().Unix()), f.score(t, "fresh"))

	repaired, err = f.store.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestReconcile_NeverRunEntryKeepsPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Save(ctx, f.create(t, "fresh", time.Minute))
	require.NoError(t, err)
	before := f.score(t, "fresh")

	f.clock.Advance(10 * time.Minute)
	repaired, err := f.store.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
	assert.Equal(t, before, f.score(t, "fresh"))
}
