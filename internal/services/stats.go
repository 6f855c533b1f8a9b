package services

import (
	"context"
	"time"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/ranking"
	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/types"
)

type LevelStats struct {
	NodeID int64         `json:"node_id"`
	Levels map[int]int64 `json:"levels"`
	Total  int64         `json:"total"`
}

type NodeSummary struct {
	ID              int64     `json:"id"`
	ParentID        *int64    `json:"parent_id,omitempty"`
	Depth           int       `json:"depth"`
	Tier            string    `json:"tier"`
	Score           int64     `json:"score"`
	DescendantCount int64     `json:"descendant_count"`
	CreatedAt       time.Time `json:"created_at"`
}

type Profile struct {
	Node *types.Node `json:"node"`
	Rank int64       `json:"rank,omitempty"`
}

// StatsService serves the read-only tree queries. Everything here reads the
// hierarchy store or the ranking index, never the ledger.
type StatsService interface {
	GetAncestorStats(ctx context.Context, nodeID int64) (*LevelStats, error)
	GetDescendantsAtLevel(ctx context.Context, nodeID int64, level int) ([]NodeSummary, error)
	GetAncestors(ctx context.Context, nodeID int64) ([]NodeSummary, error)
	GetProfile(ctx context.Context, nodeID int64) (*Profile, error)
	GetRank(ctx context.Context, nodeID int64) (int64, error)
	GetTopN(ctx context.Context, n int64) ([]ranking.RankedNode, error)
	RebuildRanking(ctx context.Context) (int, error)
}

type statsService struct {
	nodes repos.NodeRepo
	rank  *ranking.Ranking
	cache *ranking.Cache
	log   *logger.Logger
}

func NewStatsService(nodes repos.NodeRepo, rank *ranking.Ranking, cache *ranking.Cache, baseLog *logger.Logger) StatsService {
	return &statsService{
		nodes: nodes,
		rank:  rank,
		cache: cache,
		log:   baseLog.With("service", "StatsService"),
	}
}

func (s *statsService) GetAncestorStats(ctx context.Context, nodeID int64) (*LevelStats, error) {
	var cached LevelStats
	if hit, err := s.cache.GetStats(ctx, nodeID, &cached); err == nil && hit {
		return &cached, nil
	} else if err != nil {
		s.log.Warn("Stats cache read failed", "node_id", nodeID, "error", err)
	}

	counts, err := s.nodes.CountDescendantsByDepth(ctx, nil, nodeID, repos.MaxRewardLevels)
	if err != nil {
		return nil, err
	}
	stats := &LevelStats{NodeID: nodeID, Levels: make(map[int]int64, repos.MaxRewardLevels)}
	for level := 1; level <= repos.MaxRewardLevels; level++ {
		stats.Levels[level] = counts[level]
		stats.Total += counts[level]
	}
	if err := s.cache.SetStats(ctx, nodeID, stats); err != nil {
		s.log.Warn("Stats cache write failed", "node_id", nodeID, "error", err)
	}
	return stats, nil
}

func (s *statsService) GetDescendantsAtLevel(ctx context.Context, nodeID int64, level int) ([]NodeSummary, error) {
	nodes, err := s.nodes.GetDescendantsAtLevel(ctx, nil, nodeID, level)
	if err != nil {
		return nil, err
	}
	return summarize(nodes), nil
}

func (s *statsService) GetAncestors(ctx context.Context, nodeID int64) ([]NodeSummary, error) {
	nodes, _, err := s.nodes.GetAncestors(ctx, nil, nodeID, repos.MaxRewardLevels)
	if err != nil {
		return nil, err
	}
	return summarize(nodes), nil
}

func (s *statsService) GetProfile(ctx context.Context, nodeID int64) (*Profile, error) {
	var cached Profile
	if hit, err := s.cache.GetProfile(ctx, nodeID, &cached); err == nil && hit {
		return &cached, nil
	} else if err != nil {
		s.log.Warn("Profile cache read failed", "node_id", nodeID, "error", err)
	}

	node, err := s.nodes.GetByID(ctx, nil, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}
	profile := &Profile{Node: node}
	if rank, rErr := s.rank.GetRank(ctx, nodeID); rErr == nil {
		profile.Rank = rank
	} else if rErr != ranking.ErrNotRanked {
		s.log.Warn("Rank lookup failed", "node_id", nodeID, "error", rErr)
	}
	if err := s.cache.SetProfile(ctx, nodeID, profile); err != nil {
		s.log.Warn("Profile cache write failed", "node_id", nodeID, "error", err)
	}
	return profile, nil
}

func (s *statsService) GetRank(ctx context.Context, nodeID int64) (int64, error) {
	return s.rank.GetRank(ctx, nodeID)
}

func (s *statsService) GetTopN(ctx context.Context, n int64) ([]ranking.RankedNode, error) {
	return s.rank.GetTopN(ctx, n)
}

func (s *statsService) RebuildRanking(ctx context.Context) (int, error) {
	nodes, err := s.nodes.ListAll(ctx, nil)
	if err != nil {
		return 0, err
	}
	if err := s.rank.Rebuild(ctx, nodes); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func summarize(nodes []*types.Node) []NodeSummary {
	out := make([]NodeSummary, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeSummary{
			ID:              n.ID,
			ParentID:        n.ParentID,
			Depth:           n.Depth,
			Tier:            n.Tier,
			Score:           n.Score,
			DescendantCount: n.DescendantCount,
			CreatedAt:       n.CreatedAt,
		})
	}
	return out
}
