// Package store persists schedule entries in Redis and maintains the
// due-ordering index.
//
// Each entry is a hash at KeyPrefix+name. The index is a sorted set at
// the configured schedule key whose members are entry hash keys scored by
// the entry's due instant in epoch seconds. Writes touch the hash and the
// index in one pipeline without MULTI; a crash between the two leaves them
// briefly inconsistent until Reconcile runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/beatflow/pkg/codec"
	"github.com/vnykmshr/beatflow/pkg/common/clock"
	bfcontext "github.com/vnykmshr/beatflow/pkg/common/context"
	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/common/validation"
	"github.com/vnykmshr/beatflow/pkg/config"
	"github.com/vnykmshr/beatflow/pkg/entry"
)

// Options configures a Store.
type Options struct {
	// Redis client for all reads and writes.
	Redis redis.UniversalClient

	// Config supplies the key namespace.
	Config *config.Config

	// Codec encodes schedules, instants and task arguments.
	Codec *codec.Codec

	// Clock provides "now" for index scores of never-run entries.
	// Defaults to the system clock in Config.Location.
	Clock clock.Clock

	// Logger receives store warnings. Zero value discards.
	Logger zerolog.Logger

	// OpTimeout bounds each Redis round trip. Zero disables.
	OpTimeout time.Duration
}

// Store reads and writes entries and their index positions.
type Store struct {
	rdb     redis.UniversalClient
	cfg     *config.Config
	codec   *codec.Codec
	clock   clock.Clock
	log     zerolog.Logger
	timeout time.Duration
}

// New validates opts and returns a Store.
func New(opts Options) (*Store, error) {
	if err := validation.ValidateNotNil("store", "redis", opts.Redis); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("store", "config", opts.Config); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("store", "codec", opts.Codec); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("store", "op_timeout", opts.OpTimeout); err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.InLocation(clock.SystemClock{}, opts.Config.Location)
	}

	return &Store{
		rdb:     opts.Redis,
		cfg:     opts.Config,
		codec:   opts.Codec,
		clock:   clk,
		log:     opts.Logger,
		timeout: opts.OpTimeout,
	}, nil
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return bfcontext.WithTimeoutOrCancel(ctx, s.timeout)
}

// Save writes e and places it in the index at its current score, or removes
// it from the index when e is disabled. It returns e for chaining.
func (s *Store) Save(ctx context.Context, e *entry.Entry) (*entry.Entry, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	fields, err := s.encode(e)
	if err != nil {
		return nil, fmt.Errorf("save %q: %w", e.Name, err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	key := s.cfg.EntryKey(e.Name)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.HDel(ctx, key, staleFields(e)...)
	s.index(ctx, pipe, key, e)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, bferrors.NewOperationError("store", "Save", err).WithContext(key)
	}
	return e, nil
}

// Update persists an entry that must already exist, typically the result
// of entry.Advance. It fails with a NotFoundError when the entry was
// deleted in the meantime, so a concurrent delete is never undone.
func (s *Store) Update(ctx context.Context, e *entry.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	fields, err := s.encode(e)
	if err != nil {
		return fmt.Errorf("update %q: %w", e.Name, err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	key := s.cfg.EntryKey(e.Name)
	score := ""
	if e.Enabled {
		score = formatScore(e.Score(s.clock.Now()))
	}
	stale := staleFields(e)
	args := make([]any, 0, 2+len(stale)+2*len(fields))
	args = append(args, score, len(stale))
	for _, f := range stale {
		args = append(args, f)
	}
	args = append(args, flatten(fields)...)

	updated, err := updateIfExists.Run(ctx, s.rdb, []string{key, s.cfg.ScheduleKey()}, args...).Int()
	if err != nil {
		return bferrors.NewOperationError("store", "Update", err).WithContext(key)
	}
	if updated == 0 {
		return &bferrors.NotFoundError{Name: e.Name}
	}
	return nil
}

func (s *Store) index(ctx context.Context, pipe redis.Pipeliner, key string, e *entry.Entry) {
	if !e.Enabled {
		pipe.ZRem(ctx, s.cfg.ScheduleKey(), key)
		return
	}
	pipe.ZAdd(ctx, s.cfg.ScheduleKey(), redis.Z{
		Score:  float64(e.Score(s.clock.Now())),
		Member: key,
	})
}

// Load returns the named entry or a NotFoundError.
func (s *Store) Load(ctx context.Context, name string) (*entry.Entry, error) {
	return s.loadKey(ctx, s.cfg.EntryKey(name))
}

func (s *Store) loadKey(ctx context.Context, key string) (*entry.Entry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, bferrors.NewOperationError("store", "Load", err).WithContext(key)
	}
	name := s.nameOf(key)
	if len(fields) == 0 {
		return nil, &bferrors.NotFoundError{Name: name}
	}
	e, err := s.decode(name, fields)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", name, err)
	}
	return e, nil
}

// Delete removes the named entry and its index position. Deleting an
// absent entry is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	key := s.cfg.EntryKey(name)
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, s.cfg.ScheduleKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return bferrors.NewOperationError("store", "Delete", err).WithContext(key)
	}
	return nil
}

// NextDue returns the lowest score in the index as an instant. ok is false
// when the index is empty.
func (s *Store) NextDue(ctx context.Context) (due time.Time, ok bool, err error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	zs, err := s.rdb.ZRangeWithScores(ctx, s.cfg.ScheduleKey(), 0, 0).Result()
	if err != nil {
		return time.Time{}, false, bferrors.NewOperationError("store", "NextDue", err)
	}
	if len(zs) == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(int64(zs[0].Score), 0), true, nil
}

// Size returns the number of indexed entries.
func (s *Store) Size(ctx context.Context) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.rdb.ZCard(ctx, s.cfg.ScheduleKey()).Result()
	if err != nil {
		return 0, bferrors.NewOperationError("store", "Size", err)
	}
	return n, nil
}

// List returns every indexed entry in due order. Index members whose hash
// has disappeared are skipped.
func (s *Store) List(ctx context.Context) ([]*entry.Entry, error) {
	var out []*entry.Entry
	for e, err := range s.scoreRange(ctx, "+inf") {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) nameOf(key string) string {
	return strings.TrimPrefix(key, s.cfg.KeyPrefix)
}

func isNotFound(err error) bool {
	return errors.Is(err, bferrors.ErrNotFound)
}

func formatScore(score int64) string {
	return strconv.FormatInt(score, 10)
}
