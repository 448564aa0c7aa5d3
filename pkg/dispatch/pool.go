package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/entry"
	"github.com/vnykmshr/beatflow/pkg/metrics"
)

// Handler runs one task invocation.
type Handler func(ctx context.Context, call *Call) error

// HandlerFunc is a convenience for handlers that only need the arguments.
func HandlerFunc(fn func(ctx context.Context, args []any, kwargs map[string]any) error) Handler {
	return func(ctx context.Context, call *Call) error {
		return fn(ctx, call.Args, call.Kwargs)
	}
}

// ErrQueueFull is returned by Pool.Dispatch when no queue slot is free.
var ErrQueueFull = errors.New("dispatch pool queue is full")

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Name labels the pool's metrics and logs.
	Name string

	// Workers is the number of concurrent handlers (default: 4).
	Workers int

	// QueueSize is the number of calls that may wait for a worker
	// (default: 16 * Workers).
	QueueSize int

	// TaskTimeout bounds each handler run. Zero disables.
	TaskTimeout time.Duration

	// Rate limits dispatches per second. Zero disables limiting.
	Rate rate.Limit

	// Burst is the limiter burst (default: 1).
	Burst int

	Logger  zerolog.Logger
	Metrics *metrics.Registry
}

type job struct {
	handler Handler
	call    *Call
}

// Pool runs registered task handlers in-process. Dispatch never waits for
// a worker: a full queue fails the dispatch instead of stalling the tick.
type Pool struct {
	name        string
	taskTimeout time.Duration
	limiter     *rate.Limiter
	log         zerolog.Logger
	metrics     *metrics.Registry

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	mu       sync.RWMutex
	closed   bool
	queue    chan job
	workerWg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
}

// NewPool starts a pool with cfg.Workers workers.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Workers < 0 {
		return nil, bferrors.NewValidationError("dispatch", "workers", cfg.Workers, "cannot be negative")
	}
	if cfg.QueueSize < 0 {
		return nil, bferrors.NewValidationError("dispatch", "queue_size", cfg.QueueSize, "cannot be negative")
	}
	if cfg.Rate < 0 {
		return nil, bferrors.NewValidationError("dispatch", "rate", cfg.Rate, "cannot be negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 16 * cfg.Workers
	}
	if cfg.Name == "" {
		cfg.Name = "local"
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:        cfg.Name,
		taskTimeout: cfg.TaskTimeout,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		handlers:    make(map[string]Handler),
		queue:       make(chan job, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	if cfg.Rate > 0 {
		p.limiter = rate.NewLimiter(cfg.Rate, max(cfg.Burst, 1))
	}

	for i := 0; i < cfg.Workers; i++ {
		p.workerWg.Add(1)
		go p.work(i)
	}
	return p, nil
}

// Handle registers h for task, replacing any previous handler.
func (p *Pool) Handle(task string, h Handler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[task] = h
}

// Tasks returns the registered task names, sorted.
func (p *Pool) Tasks() []string {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()
	return slices.Sorted(maps.Keys(p.handlers))
}

func (p *Pool) handler(task string) (Handler, bool) {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()
	h, ok := p.handlers[task]
	return h, ok
}

// Dispatch queues e's task for execution. It fails when no handler is
// registered, the queue is full, or the pool is shut down.
func (p *Pool) Dispatch(ctx context.Context, e *entry.Entry, scheduledAt time.Time) error {
	h, ok := p.handler(e.Task)
	if !ok {
		return fmt.Errorf("no handler registered for task %q", e.Task)
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("dispatch %q: %w", e.Name, err)
		}
	}

	snapshot := e.Clone()
	j := job{
		handler: h,
		call: &Call{
			ID:          uuid.NewString(),
			Task:        snapshot.Task,
			Entry:       snapshot.Name,
			Args:        snapshot.Args,
			Kwargs:      snapshot.Kwargs,
			Options:     snapshot.Options,
			ScheduledAt: scheduledAt,
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return bferrors.ErrClosed
	}
	select {
	case p.queue <- j:
		p.submitted.Add(1)
		p.metrics.SetPoolState(p.name, int(p.active.Load()), len(p.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) work(id int) {
	defer p.workerWg.Done()
	for j := range p.queue {
		p.execute(id, j)
	}
}

func (p *Pool) execute(id int, j job) {
	p.active.Add(1)
	p.metrics.SetPoolState(p.name, int(p.active.Load()), len(p.queue))
	start := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}
		p.active.Add(-1)
		p.completed.Add(1)

		result := "ok"
		if err != nil {
			result = "error"
			p.log.Warn().Err(err).
				Str("task", j.call.Task).
				Str("entry", j.call.Entry).
				Int("worker", id).
				Msg("task failed")
		}
		p.metrics.ObservePoolTask(p.name, result)
		p.metrics.SetPoolState(p.name, int(p.active.Load()), len(p.queue))
		p.log.Debug().Str("task", j.call.Task).Dur("took", time.Since(start)).Msg("task finished")
	}()

	ctx := p.ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}
	err = j.handler(ctx, j.call)
}

// Shutdown stops accepting calls and waits for queued calls to finish. If
// ctx is done first, running handlers are canceled and Shutdown waits for
// them to return before reporting ctx's error.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Active returns the number of handlers currently running.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Queued returns the number of calls waiting for a worker.
func (p *Pool) Queued() int { return len(p.queue) }

// TotalSubmitted returns the number of accepted calls.
func (p *Pool) TotalSubmitted() int64 { return p.submitted.Load() }

// TotalCompleted returns the number of calls that finished, including failures.
func (p *Pool) TotalCompleted() int64 { return p.completed.Load() }
