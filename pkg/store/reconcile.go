package store

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
)

const scanBatch = 100

// Reconcile re-derives the index from the persisted entry hashes: missing
// or stale positions are rewritten, disabled entries are dropped, and index
// members whose hash no longer exists are removed. It returns the number of
// repairs made.
//
// Never-run entries are only added when absent, since their score tracks
// the current time.
func (s *Store) Reconcile(ctx context.Context) (int, error) {
	scores, err := s.indexScores(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	repaired := 0
	seen := make(map[string]struct{}, len(scores))

	iter := s.rdb.ScanType(ctx, 0, s.cfg.KeyPrefix+"*", scanBatch, "hash").Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if s.reserved(key) {
			continue
		}
		seen[key] = struct{}{}

		e, err := s.loadKey(ctx, key)
		if err != nil {
			if !isNotFound(err) {
				s.log.Warn().Err(err).Str("key", key).Msg("skipping unreadable entry during reconcile")
			}
			continue
		}

		indexed, ok := scores[key]
		switch {
		case !e.Enabled && ok:
			err = s.rdb.ZRem(ctx, s.cfg.ScheduleKey(), key).Err()
		case !e.Enabled:
			continue
		case ok && (e.LastRunAt.IsZero() || int64(indexed) == e.Score(now)):
			continue
		default:
			err = s.rdb.ZAdd(ctx, s.cfg.ScheduleKey(), redis.Z{Score: float64(e.Score(now)), Member: key}).Err()
		}
		if err != nil {
			return repaired, bferrors.NewOperationError("store", "Reconcile", err).WithContext(key)
		}
		repaired++
	}
	if err := iter.Err(); err != nil {
		return repaired, bferrors.NewOperationError("store", "Reconcile", err)
	}

	for key := range scores {
		if _, ok := seen[key]; ok {
			continue
		}
		// The scan may miss hashes created while it ran.
		exists, err := s.rdb.Exists(ctx, key).Result()
		if err != nil {
			return repaired, bferrors.NewOperationError("store", "Reconcile", err).WithContext(key)
		}
		if exists > 0 {
			continue
		}
		if err := s.rdb.ZRem(ctx, s.cfg.ScheduleKey(), key).Err(); err != nil {
			return repaired, bferrors.NewOperationError("store", "Reconcile", err).WithContext(key)
		}
		s.log.Info().Str("key", key).Msg("removed orphaned index member")
		repaired++
	}
	return repaired, nil
}

func (s *Store) indexScores(ctx context.Context) (map[string]float64, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, s.cfg.ScheduleKey(), 0, -1).Result()
	if err != nil {
		return nil, bferrors.NewOperationError("store", "Reconcile", err)
	}
	scores := make(map[string]float64, len(zs))
	for _, z := range zs {
		if key, ok := z.Member.(string); ok {
			scores[key] = z.Score
		}
	}
	return scores, nil
}

// reserved reports whether key belongs to the scheduler's own bookkeeping
// rather than an entry.
func (s *Store) reserved(key string) bool {
	switch key {
	case s.cfg.ScheduleKey(), s.cfg.StaticsKey(), s.cfg.LockKey():
		return true
	}
	return strings.HasPrefix(key, s.cfg.QueueKey(""))
}
