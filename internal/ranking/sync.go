package ranking

import (
	"context"
)

// Sync bundles the score index and the read caches behind the engine's syncer
// contract. Either half may be absent (redis down at boot); calls then no-op.
type Sync struct {
	Ranking *Ranking
	Cache   *Cache
}

func (s *Sync) OnScoreChanged(ctx context.Context, nodeID int64, score int64) error {
	if s == nil || s.Ranking == nil {
		return nil
	}
	return s.Ranking.OnScoreChanged(ctx, nodeID, score)
}

func (s *Sync) Invalidate(ctx context.Context, nodeID int64) error {
	if s == nil || s.Cache == nil {
		return nil
	}
	return s.Cache.Invalidate(ctx, nodeID)
}
