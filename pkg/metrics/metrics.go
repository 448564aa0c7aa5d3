package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "beatflow"

// Tick outcomes.
const (
	TickRan     = "ran"
	TickSkipped = "skipped"
	TickFailed  = "failed"
)

// Lock results.
const (
	LockOK          = "ok"
	LockUnavailable = "unavailable"
	LockLost        = "lost"
	LockError       = "error"
)

// Registry holds all metric instances for beatflow components. A nil
// *Registry is valid and records nothing.
type Registry struct {
	// Coordinator
	Ticks          *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	LockOperations *prometheus.CounterVec

	// Scheduling
	EntriesDispatched *prometheus.CounterVec
	DispatchErrors    *prometheus.CounterVec
	IndexSize         prometheus.Gauge
	ReconcileRepairs  prometheus.Counter

	// Dispatchers
	QueuePublished *prometheus.CounterVec
	PoolTasks      *prometheus.CounterVec
	PoolActive     *prometheus.GaugeVec
	PoolQueued     *prometheus.GaugeVec
}

// NewRegistry creates a metrics registry with the default namespace on the
// given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return New(Config{Enabled: true, Registry: reg, Namespace: DefaultNamespace})
}

// New creates a metrics registry from cfg. It returns nil when metrics are
// disabled.
func New(cfg Config) *Registry {
	if !cfg.Enabled {
		return nil
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)
	labels := cfg.Labels

	return &Registry{
		Ticks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "coordinator",
				Name:        "ticks_total",
				Help:        "Total number of scheduler ticks by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),

		TickDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "coordinator",
				Name:        "tick_duration_seconds",
				Help:        "Time spent in ticks that held the lock",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
		),

		LockOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "lock",
				Name:        "operations_total",
				Help:        "Total number of scheduler lock operations by result",
				ConstLabels: labels,
			},
			[]string{"operation", "result"},
		),

		EntriesDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "entries_dispatched_total",
				Help:        "Total number of due entries handed to the dispatcher",
				ConstLabels: labels,
			},
			[]string{"task"},
		),

		DispatchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "dispatch_errors_total",
				Help:        "Total number of dispatch attempts that returned an error",
				ConstLabels: labels,
			},
			[]string{"task"},
		),

		IndexSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "index_entries",
				Help:        "Number of entries in the due-ordering index",
				ConstLabels: labels,
			},
		),

		ReconcileRepairs: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "reconcile_repairs_total",
				Help:        "Total number of index positions repaired by reconciliation",
				ConstLabels: labels,
			},
		),

		QueuePublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "dispatch",
				Name:        "queue_published_total",
				Help:        "Total number of task messages pushed to Redis queues",
				ConstLabels: labels,
			},
			[]string{"queue"},
		),

		PoolTasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_total",
				Help:        "Total number of tasks run by the local pool by result",
				ConstLabels: labels,
			},
			[]string{"pool_name", "result"},
		),

		PoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "active_workers",
				Help:        "Number of workers currently running a task",
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		PoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "queued_tasks",
				Help:        "Number of tasks waiting for a worker",
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),
	}
}

// ObserveTick records a tick outcome, and its duration when it ran.
func (r *Registry) ObserveTick(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.Ticks.WithLabelValues(outcome).Inc()
	if outcome != TickSkipped {
		r.TickDuration.Observe(d.Seconds())
	}
}

// ObserveLock records the result of a lock operation.
func (r *Registry) ObserveLock(operation, result string) {
	if r == nil {
		return
	}
	r.LockOperations.WithLabelValues(operation, result).Inc()
}

// ObserveDispatch records a dispatch attempt of task.
func (r *Registry) ObserveDispatch(task string, err error) {
	if r == nil {
		return
	}
	r.EntriesDispatched.WithLabelValues(task).Inc()
	if err != nil {
		r.DispatchErrors.WithLabelValues(task).Inc()
	}
}

// SetIndexSize records the current index size.
func (r *Registry) SetIndexSize(n int64) {
	if r == nil {
		return
	}
	r.IndexSize.Set(float64(n))
}

// AddReconcileRepairs records repairs made by a reconciliation pass.
func (r *Registry) AddReconcileRepairs(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.ReconcileRepairs.Add(float64(n))
}

// ObservePublish records a message pushed to queue.
func (r *Registry) ObservePublish(queue string) {
	if r == nil {
		return
	}
	r.QueuePublished.WithLabelValues(queue).Inc()
}

// ObservePoolTask records a finished pool task.
func (r *Registry) ObservePoolTask(pool, result string) {
	if r == nil {
		return
	}
	r.PoolTasks.WithLabelValues(pool, result).Inc()
}

// SetPoolState records pool occupancy.
func (r *Registry) SetPoolState(pool string, active, queued int) {
	if r == nil {
		return
	}
	r.PoolActive.WithLabelValues(pool).Set(float64(active))
	r.PoolQueued.WithLabelValues(pool).Set(float64(queued))
}
