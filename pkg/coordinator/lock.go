package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	bfcontext "github.com/vnykmshr/beatflow/pkg/common/context"
	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/metrics"
)

const lockRetryInterval = 100 * time.Millisecond

var (
	// renewScript extends the expiry only while ARGV[1] still owns the lock.
	renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

	// releaseScript deletes the lock only while ARGV[1] still owns it.
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
)

// Lock is a Redis lock held by at most one owner until it expires. Each
// Lock value is one owner, identified by a random token.
type Lock struct {
	rdb     redis.UniversalClient
	key     string
	ttl     time.Duration
	token   string
	log     zerolog.Logger
	metrics *metrics.Registry
}

// NewLock returns an unheld lock on key that expires ttl after each
// acquire or renew.
func NewLock(rdb redis.UniversalClient, key string, ttl time.Duration, log zerolog.Logger, m *metrics.Registry) *Lock {
	return &Lock{
		rdb:     rdb,
		key:     key,
		ttl:     ttl,
		token:   uuid.NewString(),
		log:     log,
		metrics: m,
	}
}

// Key returns the Redis key of the lock.
func (l *Lock) Key() string { return l.key }

// Token identifies this owner.
func (l *Lock) Token() string { return l.token }

// TryAcquire makes a single attempt and returns a LockUnavailableError if
// another owner holds the lock.
func (l *Lock) TryAcquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		l.metrics.ObserveLock("acquire", metrics.LockError)
		return bferrors.NewOperationError("lock", "Acquire", err).WithContext(l.key)
	}
	if !ok {
		l.metrics.ObserveLock("acquire", metrics.LockUnavailable)
		return &bferrors.LockUnavailableError{Key: l.key}
	}
	l.metrics.ObserveLock("acquire", metrics.LockOK)
	return nil
}

// Acquire retries TryAcquire until it succeeds, timeout elapses or ctx is
// done. A non-positive timeout makes a single attempt.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return l.TryAcquire(ctx)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := l.TryAcquire(ctx)
		if err == nil || !errors.Is(err, bferrors.ErrLockUnavailable) {
			return err
		}
		wait := min(lockRetryInterval, time.Until(deadline))
		if wait <= 0 || !bfcontext.Sleep(ctx, wait) {
			return err
		}
	}
}

// Renew resets the expiry. It returns a LockUnavailableError when the lock
// expired and is no longer owned by l.
func (l *Lock) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		l.metrics.ObserveLock("renew", metrics.LockError)
		return bferrors.NewOperationError("lock", "Renew", err).WithContext(l.key)
	}
	if n == 0 {
		l.metrics.ObserveLock("renew", metrics.LockLost)
		return &bferrors.LockUnavailableError{Key: l.key}
	}
	l.metrics.ObserveLock("renew", metrics.LockOK)
	return nil
}

// Release deletes the lock if l still owns it. Releasing an expired or
// foreign lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		l.metrics.ObserveLock("release", metrics.LockError)
		return bferrors.NewOperationError("lock", "Release", err).WithContext(l.key)
	}
	if n == 0 {
		l.metrics.ObserveLock("release", metrics.LockLost)
		l.log.Warn().Str("key", l.key).Msg("lock expired before release")
		return nil
	}
	l.metrics.ObserveLock("release", metrics.LockOK)
	return nil
}

// KeepAlive renews the lock every interval until Stop is called. If a
// renewal finds the lock taken over, Lost is closed and renewal stops.
// Transport errors are logged and retried at the next interval.
func (l *Lock) KeepAlive(ctx context.Context, interval time.Duration) *KeepAlive {
	ctx, cancel := context.WithCancel(ctx)
	ka := &KeepAlive{cancel: cancel, lost: make(chan struct{})}

	ka.wg.Add(1)
	go func() {
		defer ka.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := l.Renew(ctx)
			switch {
			case err == nil:
			case errors.Is(err, bferrors.ErrLockUnavailable):
				l.log.Error().Str("key", l.key).Msg("scheduler lock lost to another owner")
				close(ka.lost)
				return
			case ctx.Err() == nil:
				l.log.Warn().Err(err).Str("key", l.key).Msg("lock renewal failed")
			}
		}
	}()
	return ka
}

// KeepAlive is a running lock renewal.
type KeepAlive struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	lost   chan struct{}
}

// Lost is closed when the lock was found owned by someone else.
func (k *KeepAlive) Lost() <-chan struct{} { return k.lost }

// Stop ends renewal and waits for the renewing goroutine to exit.
func (k *KeepAlive) Stop() {
	k.cancel()
	k.wg.Wait()
}
