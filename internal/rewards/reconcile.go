package rewards

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/types"
)

// Reconciler rebuilds path, depth and descendant_count for every node straight
// from the parent edges. Structural repair only: it never reads the ledger and
// never touches score or balance, so it is safe to run alongside live traffic.
type Reconciler struct {
	nodes     repos.NodeRepo
	log       *logger.Logger
	batchSize int
}

type ReconcileReport struct {
	Nodes       int `json:"nodes"`
	FixedPaths  int `json:"fixed_paths"`
	FixedCounts int `json:"fixed_counts"`
	Cycles      int `json:"cycles,omitempty"`
	Orphans     int `json:"orphans,omitempty"`
}

func NewReconciler(nodes repos.NodeRepo, baseLog *logger.Logger, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Reconciler{
		nodes:     nodes,
		log:       baseLog.With("component", "Reconciler"),
		batchSize: batchSize,
	}
}

type structFix struct {
	id    int64
	path  *string
	depth int
}

type countFix struct {
	id    int64
	count int64
}

func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	nodes, err := r.nodes.ListAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	report := &ReconcileReport{Nodes: len(nodes)}

	byID := make(map[int64]*types.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	computed := r.computeStructure(byID, report)

	counts := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		// Each node contributes +1 to each of its nearest ancestors, capped at
		// the nine-level business rule. Deeper ancestors do not count it.
		segs := computed[n.ID].segments
		for i := len(segs) - 1; i >= 0 && len(segs)-i <= repos.MaxRewardLevels; i-- {
			counts[segs[i]]++
		}
	}

	var structFixes []structFix
	var countFixes []countFix
	for _, n := range nodes {
		c := computed[n.ID]
		if !samePath(n.Path, c.path) || n.Depth != c.depth {
			structFixes = append(structFixes, structFix{id: n.ID, path: c.path, depth: c.depth})
		}
		if n.DescendantCount != counts[n.ID] {
			countFixes = append(countFixes, countFix{id: n.ID, count: counts[n.ID]})
		}
	}
	report.FixedPaths = len(structFixes)
	report.FixedCounts = len(countFixes)

	if err := r.writeFixes(ctx, structFixes, countFixes); err != nil {
		return nil, err
	}

	r.log.Info("Reconciliation finished",
		"nodes", report.Nodes,
		"fixed_paths", report.FixedPaths,
		"fixed_counts", report.FixedCounts,
		"cycles", report.Cycles,
		"orphans", report.Orphans)
	return report, nil
}

type computedStruct struct {
	path     *string
	depth    int
	segments []int64 // ancestor ids root first
}

// computeStructure derives path/depth for every node by walking parent
// pointers, memoized. Cycles and dangling parents are cut by treating the
// offending node as a root; the anomaly is counted and logged.
func (r *Reconciler) computeStructure(byID map[int64]*types.Node, report *ReconcileReport) map[int64]computedStruct {
	memo := make(map[int64]computedStruct, len(byID))
	var visit func(id int64, visiting map[int64]bool) computedStruct
	visit = func(id int64, visiting map[int64]bool) computedStruct {
		if c, ok := memo[id]; ok {
			return c
		}
		node := byID[id]
		root := computedStruct{}
		if node == nil || node.ParentID == nil {
			memo[id] = root
			return root
		}
		parentID := *node.ParentID
		if visiting[id] || parentID == id {
			report.Cycles++
			r.log.Warn("Cycle in parent edges, treating node as root", "node_id", id)
			memo[id] = root
			return root
		}
		if _, ok := byID[parentID]; !ok {
			report.Orphans++
			r.log.Warn("Parent missing from edge list, treating node as root", "node_id", id, "parent_id", parentID)
			memo[id] = root
			return root
		}
		visiting[id] = true
		parent := visit(parentID, visiting)
		delete(visiting, id)
		if c, ok := memo[id]; ok {
			// The recursion looped back through this node and re-rooted it;
			// the root designation wins over the path through the cycle.
			return c
		}

		segments := make([]int64, 0, len(parent.segments)+1)
		segments = append(segments, parent.segments...)
		segments = append(segments, parentID)
		p := joinPath(segments)
		c := computedStruct{path: &p, depth: len(segments), segments: segments}
		memo[id] = c
		return c
	}
	// Visit in id order so cycle cutting picks the same member on every run.
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		visit(id, map[int64]bool{})
	}
	return memo
}

// writeFixes applies only the rows whose stored values differ, in batches.
func (r *Reconciler) writeFixes(ctx context.Context, structFixes []structFix, countFixes []countFix) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(structFixes); start += r.batchSize {
		batch := structFixes[start:min(start+r.batchSize, len(structFixes))]
		g.Go(func() error {
			for _, fix := range batch {
				if err := r.nodes.UpdateStructure(gctx, nil, fix.id, fix.path, fix.depth); err != nil {
					return fmt.Errorf("update structure for node %d: %w", fix.id, err)
				}
			}
			return nil
		})
	}
	for start := 0; start < len(countFixes); start += r.batchSize {
		batch := countFixes[start:min(start+r.batchSize, len(countFixes))]
		g.Go(func() error {
			for _, fix := range batch {
				if err := r.nodes.SetDescendantCount(gctx, nil, fix.id, fix.count); err != nil {
					return fmt.Errorf("update descendant count for node %d: %w", fix.id, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func joinPath(segments []int64) string {
	parts := make([]string, len(segments))
	for i, id := range segments {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ".")
}

func samePath(a, b *string) bool {
	if a == nil || *a == "" {
		return b == nil || *b == ""
	}
	if b == nil {
		return false
	}
	return *a == *b
}
