// Package coordinator runs the scheduler tick loop. Every tick happens under
// a Redis lock so that, across any number of processes sharing one store,
// a due entry is dispatched once per due instant.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/beatflow/pkg/common/clock"
	bfcontext "github.com/vnykmshr/beatflow/pkg/common/context"
	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/common/validation"
	"github.com/vnykmshr/beatflow/pkg/config"
	"github.com/vnykmshr/beatflow/pkg/entry"
	"github.com/vnykmshr/beatflow/pkg/metrics"
	"github.com/vnykmshr/beatflow/pkg/store"
)

// minSleep is the shortest pause after a tick that left due work behind.
// Index scores have whole-second resolution.
const minSleep = time.Second

// Dispatcher hands a due entry to the task execution mechanism. The
// coordinator advances the entry whether or not Dispatch succeeds.
type Dispatcher interface {
	Dispatch(ctx context.Context, e *entry.Entry, scheduledAt time.Time) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, e *entry.Entry, scheduledAt time.Time) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, e *entry.Entry, scheduledAt time.Time) error {
	return f(ctx, e, scheduledAt)
}

// Options configures a Coordinator.
type Options struct {
	Redis      redis.UniversalClient
	Store      *store.Store
	Config     *config.Config
	Dispatcher Dispatcher

	// Statics are written to the store on the first tick that holds the
	// lock. Nil leaves static entries untouched.
	Statics []*entry.Entry

	// Clock defaults to the system clock in Config.Location.
	Clock   clock.Clock
	Logger  zerolog.Logger
	Metrics *metrics.Registry
}

// Coordinator drives ticks for one scheduler process.
type Coordinator struct {
	store      *store.Store
	cfg        *config.Config
	dispatcher Dispatcher
	clock      clock.Clock
	log        zerolog.Logger
	metrics    *metrics.Registry
	lock       *Lock

	lockTimeout time.Duration

	mu            sync.Mutex
	statics       []*entry.Entry
	staticsSynced bool
	lastReconcile time.Time
}

// New validates opts and returns a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if err := validation.ValidateNotNil("coordinator", "redis", opts.Redis); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("coordinator", "store", opts.Store); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("coordinator", "config", opts.Config); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("coordinator", "dispatcher", opts.Dispatcher); err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.InLocation(clock.SystemClock{}, opts.Config.Location)
	}
	lockTimeout := opts.Config.EffectiveLockTimeout()

	return &Coordinator{
		store:       opts.Store,
		cfg:         opts.Config,
		dispatcher:  opts.Dispatcher,
		clock:       clk,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		lock:        NewLock(opts.Redis, opts.Config.LockKey(), lockTimeout, opts.Logger, opts.Metrics),
		lockTimeout: lockTimeout,
		statics:     opts.Statics,
	}, nil
}

// Lock returns the coordinator's lock owner.
func (c *Coordinator) Lock() *Lock { return c.lock }

// Run ticks until ctx is done. A tick in progress when ctx is canceled
// finishes and releases the lock before Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info().
		Str("lock_key", c.lock.Key()).
		Dur("max_interval", c.cfg.MaxInterval).
		Dur("lock_timeout", c.lockTimeout).
		Msg("beat: starting")

	for !bfcontext.IsCanceled(ctx) {
		sleep, err := c.Tick(ctx)
		if err != nil {
			c.log.Error().Err(err).Bool("retryable", bferrors.IsRetryable(err)).Msg("tick failed")
		}
		c.log.Debug().Dur("sleep", sleep).Msg("beat: waking up later")
		if !bfcontext.Sleep(ctx, sleep) {
			break
		}
	}

	c.log.Info().Msg("beat: shutting down")
	return nil
}

// Tick runs one scheduling pass and returns how long to sleep before the
// next. If another process holds the lock the pass is skipped with a nil
// error.
func (c *Coordinator) Tick(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The tick runs to completion after ctx is canceled, bounded by the
	// lock timeout so it cannot outlive its lock.
	ctx, cancel := bfcontext.Detached(ctx, c.lockTimeout)
	defer cancel()

	start := time.Now()
	if err := c.lock.Acquire(ctx, c.cfg.LockAcquireTimeout); err != nil {
		if errors.Is(err, bferrors.ErrLockUnavailable) {
			c.metrics.ObserveTick(metrics.TickSkipped, 0)
			c.log.Debug().Str("key", c.lock.Key()).Msg("lock held elsewhere, skipping tick")
			return c.cfg.MaxInterval, nil
		}
		c.metrics.ObserveTick(metrics.TickFailed, time.Since(start))
		return c.cfg.MaxInterval, err
	}

	ka := c.lock.KeepAlive(ctx, max(c.lockTimeout/3, time.Millisecond))
	defer func() {
		ka.Stop()
		if err := c.lock.Release(ctx); err != nil {
			c.log.Error().Err(err).Msg("failed to release scheduler lock")
		}
	}()

	sleep, err := c.tick(ctx, ka.Lost())
	outcome := metrics.TickRan
	if err != nil {
		outcome = metrics.TickFailed
	}
	c.metrics.ObserveTick(outcome, time.Since(start))
	return sleep, err
}

func (c *Coordinator) tick(ctx context.Context, lost <-chan struct{}) (time.Duration, error) {
	if !c.staticsSynced && c.statics != nil {
		if err := c.store.SyncStatics(ctx, c.statics); err != nil {
			return c.cfg.MaxInterval, fmt.Errorf("sync static entries: %w", err)
		}
		c.staticsSynced = true
		c.log.Info().Int("entries", len(c.statics)).Msg("static schedule synced")
	}

	now := c.clock.Now()
	c.maybeReconcile(ctx, now)

	sleep := c.cfg.MaxInterval
	var tickErr error
	for e, err := range c.store.DueCandidates(ctx, now) {
		select {
		case <-lost:
			return minSleep, &bferrors.LockUnavailableError{Key: c.lock.Key()}
		default:
		}
		if err != nil {
			c.log.Error().Err(err).Msg("failed to load due entry")
			if tickErr == nil {
				tickErr = err
			}
			continue
		}
		if !e.IsDue(now) {
			// Scores truncate to the second; the entry is due later within it.
			sleep = min(sleep, max(e.Remaining(now), minSleep/10))
			continue
		}
		if err := c.fire(ctx, e, now); err != nil {
			tickErr = errors.Join(tickErr, err)
		}
	}

	if n, err := c.store.Size(ctx); err == nil {
		c.metrics.SetIndexSize(n)
	}

	due, ok, err := c.store.NextDue(ctx)
	if err != nil {
		return sleep, errors.Join(tickErr, err)
	}
	if ok {
		if d := due.Sub(c.clock.Now()); d > 0 {
			sleep = min(sleep, d)
		} else {
			sleep = min(sleep, minSleep)
		}
	}
	return sleep, tickErr
}

// fire dispatches e and persists its successor. Dispatch failures are
// logged and the entry advances regardless: a due entry is attempted once,
// not retried until it succeeds. Failing to persist the successor is
// returned, except when the entry was deleted meanwhile.
func (c *Coordinator) fire(ctx context.Context, e *entry.Entry, now time.Time) error {
	log := c.log.With().Str("entry", e.Name).Str("task", e.Task).Logger()

	err := c.dispatcher.Dispatch(ctx, e, now)
	c.metrics.ObserveDispatch(e.Task, err)
	if err != nil {
		log.Warn().Err(err).Msg("dispatch failed")
	} else {
		log.Debug().Msg("dispatched")
	}

	next, err := e.Advance(now, false)
	if err != nil {
		log.Error().Err(err).Msg("cannot advance entry")
		return err
	}
	if err := c.store.Update(ctx, next); err != nil {
		if errors.Is(err, bferrors.ErrNotFound) {
			log.Info().Msg("entry deleted while firing, not rescheduling")
			return nil
		}
		log.Error().Err(err).Msg("failed to persist advanced entry")
		return err
	}
	return nil
}

func (c *Coordinator) maybeReconcile(ctx context.Context, now time.Time) {
	if c.cfg.ReconcileInterval <= 0 {
		return
	}
	if !c.lastReconcile.IsZero() && now.Sub(c.lastReconcile) < c.cfg.ReconcileInterval {
		return
	}
	c.lastReconcile = now

	repaired, err := c.store.Reconcile(ctx)
	c.metrics.AddReconcileRepairs(repaired)
	if err != nil {
		c.log.Warn().Err(err).Msg("index reconciliation failed")
		return
	}
	if repaired > 0 {
		c.log.Info().Int("repaired", repaired).Msg("index reconciled")
	}
}
