package store

import (
	"context"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/entry"
)

// SyncStatics makes the store match the statically configured entries.
// Each entry is saved with the run bookkeeping of its persisted
// counterpart, if any. Entries that were static at the previous sync but
// are no longer configured are deleted. Entries created at runtime are
// left alone.
func (s *Store) SyncStatics(ctx context.Context, entries []*entry.Entry) error {
	previous, err := s.rdb.SMembers(ctx, s.cfg.StaticsKey()).Result()
	if err != nil {
		return bferrors.NewOperationError("store", "SyncStatics", err)
	}

	current := make(map[string]struct{}, len(entries))
	names := make([]any, 0, len(entries))
	for _, e := range entries {
		merged := e.Clone()
		existing, err := s.Load(ctx, e.Name)
		switch {
		case err == nil:
			merged.LastRunAt = existing.LastRunAt
			merged.TotalRunCount = existing.TotalRunCount
		case !isNotFound(err):
			return err
		}
		if _, err := s.Save(ctx, merged); err != nil {
			return err
		}
		current[e.Name] = struct{}{}
		names = append(names, e.Name)
	}

	for _, name := range previous {
		if _, ok := current[name]; ok {
			continue
		}
		if err := s.Delete(ctx, name); err != nil {
			return err
		}
		s.log.Info().Str("entry", name).Msg("removed entry no longer in static schedule")
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.cfg.StaticsKey())
	if len(names) > 0 {
		pipe.SAdd(ctx, s.cfg.StaticsKey(), names...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return bferrors.NewOperationError("store", "SyncStatics", err)
	}
	return nil
}
