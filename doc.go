/*
Package beatflow is a persistent periodic task scheduler backed by Redis.

Schedule entries live in Redis, one hash per entry, with a sorted-set index
ordered by the next due instant. Any number of scheduler processes may run
against the same key prefix; a Redis lock ensures that only one of them
dispatches in a given tick.

Packages:
  - schedule: Interval, Crontab and CalendarRule recurrences
  - codec: tagged JSON wire format for instants, schedules and custom types
  - entry: the schedule entry model and its due-time arithmetic
  - config: settings resolution with legacy fallbacks and static entries
  - store: Redis persistence, due-ordered iteration and index repair
  - coordinator: the scheduler lock and the tick loop
  - dispatch: Redis queue and in-process worker pool dispatchers
  - metrics: Prometheus instrumentation

Example usage:

	cfg, _ := config.New(config.Settings{"beat_max_interval": 30}, log)
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	cd := codec.New(log)

	st, _ := store.New(store.Options{Redis: rdb, Config: cfg, Codec: cd})
	e, _ := entry.New("cleanup", "tasks.cleanup", schedule.Every(time.Minute))
	_, _ = st.Save(ctx, e)

	queue, _ := dispatch.NewQueue(dispatch.QueueOptions{Redis: rdb, Config: cfg, Codec: cd})
	co, _ := coordinator.New(coordinator.Options{
		Redis:      rdb,
		Store:      st,
		Config:     cfg,
		Dispatcher: queue,
	})
	_ = co.Run(ctx)

See cmd/beat for a complete process.
*/
package beatflow
