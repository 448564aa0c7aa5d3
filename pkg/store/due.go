package store

import (
	"context"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/entry"
)

// DueCandidates yields entries whose index score is at or before until, in
// ascending score order, so the most overdue entry comes first. The index
// range is read once per call; entries are loaded lazily as the sequence is
// consumed. Entries deleted after the range read are skipped. A decode
// failure is yielded as an error and iteration may continue past it.
func (s *Store) DueCandidates(ctx context.Context, until time.Time) iter.Seq2[*entry.Entry, error] {
	return s.scoreRange(ctx, formatScore(until.Unix()))
}

func (s *Store) scoreRange(ctx context.Context, maxScore string) iter.Seq2[*entry.Entry, error] {
	return func(yield func(*entry.Entry, error) bool) {
		keys, err := s.rangeKeys(ctx, maxScore)
		if err != nil {
			yield(nil, err)
			return
		}

		for _, key := range keys {
			e, err := s.loadKey(ctx, key)
			if isNotFound(err) {
				s.log.Debug().Str("key", key).Msg("indexed entry vanished before load")
				continue
			}
			if !yield(e, err) {
				return
			}
		}
	}
}

func (s *Store) rangeKeys(ctx context.Context, maxScore string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	keys, err := s.rdb.ZRangeByScore(ctx, s.cfg.ScheduleKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return nil, bferrors.NewOperationError("store", "DueCandidates", err)
	}
	return keys, nil
}
