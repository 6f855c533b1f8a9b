package rewards

import (
	"context"
	"strconv"
	"testing"

	"github.com/uplinehq/upline-backend/internal/types"
)

func newTestReconciler(t *testing.T, nodes *fakeNodes) *Reconciler {
	t.Helper()
	return NewReconciler(nodes, testLogger(t), 2)
}

func TestReconcileRebuildsCorruptedStructure(t *testing.T) {
	nodes := newFakeNodes()
	root := int64(1)
	two := int64(2)
	four := int64(4)
	nodes.add(1, nil, types.TierStandard)
	nodes.add(2, &root, types.TierStandard)
	nodes.add(3, &root, types.TierStandard)
	nodes.add(4, &two, types.TierStandard)
	nodes.add(5, &four, types.TierStandard)

	// Corrupt what the engine normally maintains.
	wrong := "9.9"
	nodes.nodes[4].Path = &wrong
	nodes.nodes[4].Depth = 7
	nodes.nodes[5].Path = nil
	nodes.nodes[5].Depth = 0

	report, err := newTestReconciler(t, nodes).Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Nodes != 5 {
		t.Fatalf("report nodes = %d, want 5", report.Nodes)
	}
	if report.FixedPaths != 2 {
		t.Fatalf("fixed paths = %d, want 2", report.FixedPaths)
	}
	if report.Cycles != 0 || report.Orphans != 0 {
		t.Fatalf("unexpected anomalies: cycles=%d orphans=%d", report.Cycles, report.Orphans)
	}

	if got := nodes.nodes[4].Path; got == nil || *got != "1.2" {
		t.Fatalf("node 4 path = %v, want 1.2", got)
	}
	if got := nodes.nodes[4].Depth; got != 2 {
		t.Fatalf("node 4 depth = %d, want 2", got)
	}
	if got := nodes.nodes[5].Path; got == nil || *got != "1.2.4" {
		t.Fatalf("node 5 path = %v, want 1.2.4", got)
	}
	if got := nodes.nodes[5].Depth; got != 3 {
		t.Fatalf("node 5 depth = %d, want 3", got)
	}
}

func TestReconcileRebuildsDescendantCounts(t *testing.T) {
	nodes := newFakeNodes()
	root := int64(1)
	two := int64(2)
	four := int64(4)
	nodes.add(1, nil, types.TierStandard)
	nodes.add(2, &root, types.TierStandard)
	nodes.add(3, &root, types.TierStandard)
	nodes.add(4, &two, types.TierStandard)
	nodes.add(5, &four, types.TierStandard)
	nodes.nodes[3].DescendantCount = 42

	report, err := newTestReconciler(t, nodes).Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	want := map[int64]int64{1: 4, 2: 2, 3: 0, 4: 1, 5: 0}
	for id, count := range want {
		if got := nodes.nodes[id].DescendantCount; got != count {
			t.Fatalf("node %d descendant_count = %d, want %d", id, got, count)
		}
	}
	if report.FixedCounts == 0 {
		t.Fatalf("expected count fixes to be reported")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	nodes := newFakeNodes()
	buildChain(nodes, 6)
	nodes.nodes[5].Depth = 99
	nodes.nodes[3].DescendantCount = 7

	if _, err := newTestReconciler(t, nodes).Run(context.Background()); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	report, err := newTestReconciler(t, nodes).Run(context.Background())
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if report.FixedPaths != 0 || report.FixedCounts != 0 {
		t.Fatalf("second run still fixing: paths=%d counts=%d", report.FixedPaths, report.FixedCounts)
	}
}

func TestReconcileCapsCountingAtNineLevels(t *testing.T) {
	nodes := newFakeNodes()
	buildChain(nodes, 12)

	if _, err := newTestReconciler(t, nodes).Run(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// 11 descendants below the root, only the nearest 9 levels count.
	if got := nodes.nodes[1].DescendantCount; got != 9 {
		t.Fatalf("root descendant_count = %d, want 9", got)
	}
	if got := nodes.nodes[3].DescendantCount; got != 9 {
		t.Fatalf("node 3 descendant_count = %d, want 9", got)
	}
	if got := nodes.nodes[12].DescendantCount; got != 0 {
		t.Fatalf("leaf descendant_count = %d, want 0", got)
	}
}

func TestReconcileCutsCycles(t *testing.T) {
	nodes := newFakeNodes()
	one := int64(1)
	two := int64(2)
	three := int64(3)
	nodes.add(1, nil, types.TierStandard)
	nodes.add(2, &one, types.TierStandard)
	nodes.nodes[1].ParentID = &two
	nodes.add(3, nil, types.TierStandard)
	nodes.add(4, &three, types.TierStandard)

	report, err := newTestReconciler(t, nodes).Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Cycles == 0 {
		t.Fatalf("expected cycle to be reported")
	}
	if got := nodes.nodes[4].Path; got == nil || *got != "3" {
		t.Fatalf("healthy subtree disturbed: node 4 path = %v, want 3", got)
	}
	if got := nodes.nodes[4].Depth; got != 1 {
		t.Fatalf("healthy subtree disturbed: node 4 depth = %d, want 1", got)
	}

	for id, n := range nodes.nodes {
		for _, seg := range n.PathSegments() {
			if seg == strconv.FormatInt(id, 10) {
				t.Fatalf("node %d repaired with itself in its path %q", id, *n.Path)
			}
		}
	}
	wantCounts := map[int64]int64{1: 1, 2: 0, 3: 1, 4: 0}
	for id, want := range wantCounts {
		if got := nodes.nodes[id].DescendantCount; got != want {
			t.Fatalf("node %d descendant_count = %d, want %d", id, got, want)
		}
	}

	// The cut must land on the same cycle member every run, or repeated runs
	// rewrite the same rows forever.
	second, err := newTestReconciler(t, nodes).Run(context.Background())
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if second.FixedPaths != 0 || second.FixedCounts != 0 {
		t.Fatalf("second run still writing: paths=%d counts=%d", second.FixedPaths, second.FixedCounts)
	}
}

func TestReconcileTreatsOrphansAsRoots(t *testing.T) {
	nodes := newFakeNodes()
	missing := int64(99)
	nodes.add(1, nil, types.TierStandard)
	nodes.add(2, &missing, types.TierStandard)

	report, err := newTestReconciler(t, nodes).Run(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Orphans != 1 {
		t.Fatalf("orphans = %d, want 1", report.Orphans)
	}
	if got := nodes.nodes[2].Depth; got != 0 {
		t.Fatalf("orphan depth = %d, want 0", got)
	}
	if nodes.nodes[2].Path != nil {
		t.Fatalf("orphan path = %q, want nil", *nodes.nodes[2].Path)
	}
}
