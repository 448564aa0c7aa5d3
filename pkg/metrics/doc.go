// Package metrics provides Prometheus instrumentation for beatflow components.
//
// # Overview
//
// The coordinator reports ticks, lock operations, dispatches, the size of the
// due-ordering index and reconciliation repairs. The dispatchers report queue
// publishes and local worker pool occupancy.
//
// Components take a *Registry; nil disables collection without branching at
// call sites:
//
//	reg := metrics.New(metrics.Config{Enabled: true, Registry: prometheus.NewRegistry()})
//	coord, err := coordinator.New(coordinator.Options{Metrics: reg, ...})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Available Metrics
//
//   - beatflow_coordinator_ticks_total{outcome}: ticks by outcome (ran, skipped, failed)
//   - beatflow_coordinator_tick_duration_seconds: duration of ticks that held the lock
//   - beatflow_lock_operations_total{operation,result}: acquire, renew and release results
//   - beatflow_scheduler_entries_dispatched_total{task}: due entries handed to the dispatcher
//   - beatflow_scheduler_dispatch_errors_total{task}: dispatch attempts that failed
//   - beatflow_scheduler_index_entries: entries in the due-ordering index
//   - beatflow_scheduler_reconcile_repairs_total: index positions repaired
//   - beatflow_dispatch_queue_published_total{queue}: messages pushed to Redis queues
//   - beatflow_workerpool_tasks_total{pool_name,result}: local pool task results
//   - beatflow_workerpool_active_workers{pool_name}: busy local workers
//   - beatflow_workerpool_queued_tasks{pool_name}: tasks waiting for a local worker
package metrics
