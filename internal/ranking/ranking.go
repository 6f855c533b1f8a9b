package ranking

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/types"
)

const rankKey = "upline:rank:xp"

// ErrNotRanked is returned when a node has no entry in the score index yet.
var ErrNotRanked = fmt.Errorf("node not ranked")

type RankedNode struct {
	NodeID int64 `json:"node_id"`
	Score  int64 `json:"score"`
	Rank   int64 `json:"rank"`
}

// Ranking maintains the ordered-by-XP index in a redis sorted set so top-N and
// rank-of-node queries stay O(log n). The set is a projection of the hierarchy
// store and can be rebuilt from it at any time.
type Ranking struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewRanking(rdb *goredis.Client, baseLog *logger.Logger) *Ranking {
	return &Ranking{rdb: rdb, log: baseLog.With("service", "Ranking")}
}

func member(nodeID int64) string { return strconv.FormatInt(nodeID, 10) }

func (r *Ranking) OnScoreChanged(ctx context.Context, nodeID int64, score int64) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.ZAdd(ctx, rankKey, goredis.Z{
		Score:  float64(score),
		Member: member(nodeID),
	}).Err()
}

// GetRank is 1-based: the highest scorer has rank 1.
func (r *Ranking) GetRank(ctx context.Context, nodeID int64) (int64, error) {
	if r == nil || r.rdb == nil {
		return 0, ErrNotRanked
	}
	rank, err := r.rdb.ZRevRank(ctx, rankKey, member(nodeID)).Result()
	if err == goredis.Nil {
		return 0, ErrNotRanked
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

func (r *Ranking) GetTopN(ctx context.Context, n int64) ([]RankedNode, error) {
	if r == nil || r.rdb == nil {
		return nil, nil
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.rdb.ZRevRangeWithScores(ctx, rankKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]RankedNode, 0, len(rows))
	for i, z := range rows {
		id, pErr := strconv.ParseInt(fmt.Sprint(z.Member), 10, 64)
		if pErr != nil {
			r.log.Warn("Skipping malformed ranking member", "member", z.Member)
			continue
		}
		out = append(out, RankedNode{
			NodeID: id,
			Score:  int64(z.Score),
			Rank:   int64(i) + 1,
		})
	}
	return out, nil
}

// Rebuild replaces the whole index from the store's nodes.
func (r *Ranking) Rebuild(ctx context.Context, nodes []*types.Node) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	if err := r.rdb.Del(ctx, rankKey).Err(); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	zs := make([]goredis.Z, 0, len(nodes))
	for _, n := range nodes {
		zs = append(zs, goredis.Z{Score: float64(n.Score), Member: member(n.ID)})
	}
	return r.rdb.ZAdd(ctx, rankKey, zs...).Err()
}
