package repos

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/types"
)

// ErrInvalidParent marks a join that references a missing parent or one that
// would close a cycle. Fatal for that join; the node is not created.
var ErrInvalidParent = errors.New("invalid parent")

// MaxRewardLevels caps how far up the ancestor chain rewards and descendant
// counting reach. Business rule, not a storage limit.
const MaxRewardLevels = 9

type NodeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, id int64, parentID *int64, tier string) (*types.Node, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Node, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Node, error)
	// GetAncestors returns the lineage of nodeID ordered direct parent first,
	// truncated to maxLevels. The second return reports a broken chain: an
	// ancestor referenced by path/parent_id that no longer exists.
	GetAncestors(ctx context.Context, tx *gorm.DB, nodeID int64, maxLevels int) ([]*types.Node, bool, error)
	IncrementDescendantCount(ctx context.Context, tx *gorm.DB, nodeID int64, delta int64) error
	IncrementScore(ctx context.Context, tx *gorm.DB, nodeID int64, deltaXP int64) error
	IncrementBalance(ctx context.Context, tx *gorm.DB, nodeID int64, amount decimal.Decimal) error
	SetUpgraded(ctx context.Context, tx *gorm.DB, nodeID int64, at time.Time) (bool, error)
	GetDescendantsAtLevel(ctx context.Context, tx *gorm.DB, nodeID int64, level int) ([]*types.Node, error)
	CountDescendantsByDepth(ctx context.Context, tx *gorm.DB, nodeID int64, maxLevels int) (map[int]int64, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Node, error)
	UpdateStructure(ctx context.Context, tx *gorm.DB, nodeID int64, path *string, depth int) error
	SetDescendantCount(ctx context.Context, tx *gorm.DB, nodeID int64, count int64) error
}

type nodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger) NodeRepo {
	return &nodeRepo{db: db, log: baseLog.With("repo", "NodeRepo")}
}

func (r *nodeRepo) Create(ctx context.Context, tx *gorm.DB, id int64, parentID *int64, tier string) (*types.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if tier == "" {
		tier = types.TierStandard
	}
	node := &types.Node{ID: id, ParentID: parentID, Tier: tier}
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if parentID != nil {
			if *parentID == id {
				return ErrInvalidParent
			}
			var parent types.Node
			pErr := txx.First(&parent, "id = ?", *parentID).Error
			if errors.Is(pErr, gorm.ErrRecordNotFound) {
				return ErrInvalidParent
			}
			if pErr != nil {
				return pErr
			}
			idSeg := strconv.FormatInt(id, 10)
			for _, seg := range parent.PathSegments() {
				if seg == idSeg {
					return ErrInvalidParent
				}
			}
			// path and depth are written in the same transaction as the
			// parent assignment; they are never allowed to lag the insert.
			p := parent.SubtreePathPrefix()
			node.Path = &p
			node.Depth = parent.Depth + 1
		}
		return txx.Create(node).Error
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (r *nodeRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var node types.Node
	err := transaction.WithContext(ctx).First(&node, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *nodeRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Node
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) GetAncestors(ctx context.Context, tx *gorm.DB, nodeID int64, maxLevels int) ([]*types.Node, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if maxLevels <= 0 || maxLevels > MaxRewardLevels {
		maxLevels = MaxRewardLevels
	}
	node, err := r.GetByID(ctx, transaction, nodeID)
	if err != nil {
		return nil, false, err
	}
	if node == nil {
		return nil, false, gorm.ErrRecordNotFound
	}
	if node.ParentID == nil {
		return nil, false, nil
	}

	segs := node.PathSegments()
	if len(segs) > 0 && segs[len(segs)-1] == strconv.FormatInt(*node.ParentID, 10) {
		return r.ancestorsFromPath(ctx, transaction, segs, maxLevels)
	}
	// path missing or stale relative to parent_id (e.g. a parent write not yet
	// reconciled): fall back to walking parent pointers so the direct parent is
	// never dropped from the lineage.
	return r.ancestorsFromParentChain(ctx, transaction, *node.ParentID, maxLevels)
}

func (r *nodeRepo) ancestorsFromPath(ctx context.Context, tx *gorm.DB, segs []string, maxLevels int) ([]*types.Node, bool, error) {
	ids := make([]int64, 0, maxLevels)
	for i := len(segs) - 1; i >= 0 && len(ids) < maxLevels; i-- {
		id, err := strconv.ParseInt(segs[i], 10, 64)
		if err != nil {
			r.log.Warn("Malformed path segment, truncating lineage", "segment", segs[i])
			out, _, rErr := r.resolveOrdered(ctx, tx, ids)
			if rErr != nil {
				return nil, false, rErr
			}
			return out, true, nil
		}
		ids = append(ids, id)
	}
	return r.resolveOrdered(ctx, tx, ids)
}

func (r *nodeRepo) resolveOrdered(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Node, bool, error) {
	if len(ids) == 0 {
		return nil, false, nil
	}
	rows, err := r.GetByIDs(ctx, tx, ids)
	if err != nil {
		return nil, false, err
	}
	byID := make(map[int64]*types.Node, len(rows))
	for _, n := range rows {
		byID[n.ID] = n
	}
	out := make([]*types.Node, 0, len(ids))
	for _, id := range ids {
		n, ok := byID[id]
		if !ok {
			return out, true, nil
		}
		out = append(out, n)
	}
	return out, false, nil
}

func (r *nodeRepo) ancestorsFromParentChain(ctx context.Context, tx *gorm.DB, parentID int64, maxLevels int) ([]*types.Node, bool, error) {
	out := make([]*types.Node, 0, maxLevels)
	seen := map[int64]bool{}
	cur := parentID
	for hop := 0; hop < maxLevels; hop++ {
		if seen[cur] {
			r.log.Warn("Cycle detected while walking parent chain, truncating lineage", "node_id", cur)
			return out, true, nil
		}
		seen[cur] = true
		node, err := r.GetByID(ctx, tx, cur)
		if err != nil {
			return nil, false, err
		}
		if node == nil {
			return out, true, nil
		}
		out = append(out, node)
		if node.ParentID == nil {
			return out, false, nil
		}
		cur = *node.ParentID
	}
	return out, false, nil
}

func (r *nodeRepo) IncrementDescendantCount(ctx context.Context, tx *gorm.DB, nodeID int64, delta int64) error {
	return r.increment(ctx, tx, nodeID, map[string]interface{}{
		"descendant_count": gorm.Expr("descendant_count + ?", delta),
	})
}

func (r *nodeRepo) IncrementScore(ctx context.Context, tx *gorm.DB, nodeID int64, deltaXP int64) error {
	return r.increment(ctx, tx, nodeID, map[string]interface{}{
		"score": gorm.Expr("score + ?", deltaXP),
	})
}

func (r *nodeRepo) IncrementBalance(ctx context.Context, tx *gorm.DB, nodeID int64, amount decimal.Decimal) error {
	return r.increment(ctx, tx, nodeID, map[string]interface{}{
		"balance": gorm.Expr("balance + ?", amount),
	})
}

// increment applies a single-row numeric update. Counters are never
// read-modified at the application level.
func (r *nodeRepo) increment(ctx context.Context, tx *gorm.DB, nodeID int64, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates["updated_at"] = time.Now()
	return transaction.WithContext(ctx).
		Model(&types.Node{}).
		Where("id = ?", nodeID).
		Updates(updates).Error
}

func (r *nodeRepo) SetUpgraded(ctx context.Context, tx *gorm.DB, nodeID int64, at time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Node{}).
		Where("id = ? AND tier <> ?", nodeID, types.TierPremium).
		Updates(map[string]interface{}{
			"tier":        types.TierPremium,
			"upgraded_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *nodeRepo) GetDescendantsAtLevel(ctx context.Context, tx *gorm.DB, nodeID int64, level int) ([]*types.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if level < 1 || level > MaxRewardLevels {
		return nil, nil
	}
	node, err := r.GetByID(ctx, transaction, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, gorm.ErrRecordNotFound
	}
	prefix := node.SubtreePathPrefix()
	var out []*types.Node
	if err := transaction.WithContext(ctx).
		Where("depth = ? AND (path = ? OR path LIKE ?)", node.Depth+level, prefix, prefix+".%").
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) CountDescendantsByDepth(ctx context.Context, tx *gorm.DB, nodeID int64, maxLevels int) (map[int]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if maxLevels <= 0 || maxLevels > MaxRewardLevels {
		maxLevels = MaxRewardLevels
	}
	node, err := r.GetByID(ctx, transaction, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, gorm.ErrRecordNotFound
	}
	prefix := node.SubtreePathPrefix()
	var rows []struct {
		Depth int
		Total int64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.Node{}).
		Select("depth, COUNT(*) AS total").
		Where("depth BETWEEN ? AND ? AND (path = ? OR path LIKE ?)",
			node.Depth+1, node.Depth+maxLevels, prefix, prefix+".%").
		Group("depth").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int]int64, len(rows))
	for _, row := range rows {
		out[row.Depth-node.Depth] = row.Total
	}
	return out, nil
}

func (r *nodeRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Node
	if err := transaction.WithContext(ctx).
		Select("id", "parent_id", "path", "depth", "descendant_count", "score").
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) UpdateStructure(ctx context.Context, tx *gorm.DB, nodeID int64, path *string, depth int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Node{}).
		Where("id = ?", nodeID).
		Updates(map[string]interface{}{
			"path":       path,
			"depth":      depth,
			"updated_at": time.Now(),
		}).Error
}

func (r *nodeRepo) SetDescendantCount(ctx context.Context, tx *gorm.DB, nodeID int64, count int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Node{}).
		Where("id = ?", nodeID).
		Updates(map[string]interface{}{
			"descendant_count": count,
			"updated_at":       time.Now(),
		}).Error
}
