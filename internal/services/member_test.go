package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

type fakeNodes struct {
	nodes map[int64]*types.Node
}

func newFakeNodes() *fakeNodes {
	return &fakeNodes{nodes: map[int64]*types.Node{}}
}

func (f *fakeNodes) add(id int64, parentID *int64, tier string) *types.Node {
	n := &types.Node{ID: id, ParentID: parentID, Tier: tier}
	if parentID != nil {
		if parent, ok := f.nodes[*parentID]; ok {
			p := parent.SubtreePathPrefix()
			n.Path = &p
			n.Depth = len(n.PathSegments())
		}
	}
	f.nodes[id] = n
	return n
}

func (f *fakeNodes) Create(ctx context.Context, tx *gorm.DB, id int64, parentID *int64, tier string) (*types.Node, error) {
	if parentID != nil {
		if _, ok := f.nodes[*parentID]; !ok {
			return nil, repos.ErrInvalidParent
		}
	}
	if _, ok := f.nodes[id]; ok {
		return nil, fmt.Errorf("node %d already exists", id)
	}
	return f.add(id, parentID, tier), nil
}

func (f *fakeNodes) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Node, error) {
	return f.nodes[id], nil
}

func (f *fakeNodes) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Node, error) {
	out := make([]*types.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := f.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNodes) GetAncestors(ctx context.Context, tx *gorm.DB, nodeID int64, maxLevels int) ([]*types.Node, bool, error) {
	n, ok := f.nodes[nodeID]
	if !ok {
		return nil, false, nil
	}
	var out []*types.Node
	cur := n
	for len(out) < maxLevels && cur.ParentID != nil {
		parent, ok := f.nodes[*cur.ParentID]
		if !ok {
			return out, true, nil
		}
		out = append(out, parent)
		cur = parent
	}
	return out, false, nil
}

func (f *fakeNodes) IncrementDescendantCount(ctx context.Context, tx *gorm.DB, nodeID int64, delta int64) error {
	f.nodes[nodeID].DescendantCount += delta
	return nil
}

func (f *fakeNodes) IncrementScore(ctx context.Context, tx *gorm.DB, nodeID int64, deltaXP int64) error {
	f.nodes[nodeID].Score += deltaXP
	return nil
}

func (f *fakeNodes) IncrementBalance(ctx context.Context, tx *gorm.DB, nodeID int64, amount decimal.Decimal) error {
	n := f.nodes[nodeID]
	n.Balance = n.Balance.Add(amount)
	return nil
}

func (f *fakeNodes) SetUpgraded(ctx context.Context, tx *gorm.DB, nodeID int64, at time.Time) (bool, error) {
	n, ok := f.nodes[nodeID]
	if !ok || n.Tier == types.TierPremium {
		return false, nil
	}
	n.Tier = types.TierPremium
	upgradedAt := at
	n.UpgradedAt = &upgradedAt
	return true, nil
}

func (f *fakeNodes) GetDescendantsAtLevel(ctx context.Context, tx *gorm.DB, nodeID int64, level int) ([]*types.Node, error) {
	var out []*types.Node
	for _, n := range f.nodes {
		cur := n
		for i := 0; i < level && cur != nil; i++ {
			if cur.ParentID == nil {
				cur = nil
				break
			}
			cur = f.nodes[*cur.ParentID]
		}
		if cur != nil && cur.ID == nodeID && n.ID != nodeID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNodes) CountDescendantsByDepth(ctx context.Context, tx *gorm.DB, nodeID int64, maxLevels int) (map[int]int64, error) {
	counts := map[int]int64{}
	for _, n := range f.nodes {
		cur := n
		for level := 1; level <= maxLevels; level++ {
			if cur.ParentID == nil {
				break
			}
			parent, ok := f.nodes[*cur.ParentID]
			if !ok {
				break
			}
			if parent.ID == nodeID {
				counts[level]++
				break
			}
			cur = parent
		}
	}
	return counts, nil
}

func (f *fakeNodes) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Node, error) {
	out := make([]*types.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNodes) UpdateStructure(ctx context.Context, tx *gorm.DB, nodeID int64, path *string, depth int) error {
	n := f.nodes[nodeID]
	n.Path = path
	n.Depth = depth
	return nil
}

func (f *fakeNodes) SetDescendantCount(ctx context.Context, tx *gorm.DB, nodeID int64, count int64) error {
	f.nodes[nodeID].DescendantCount = count
	return nil
}

type fakeEvents struct {
	enqueued []*types.RewardEvent
}

func (f *fakeEvents) Enqueue(ctx context.Context, tx *gorm.DB, event *types.RewardEvent) (*types.RewardEvent, error) {
	if event.EventType == types.RewardEventUpgrade {
		// One live upgrade event per subject, as the partial unique index
		// enforces in the real store.
		for _, e := range f.enqueued {
			if e.EventType == types.RewardEventUpgrade &&
				e.SubjectNodeID == event.SubjectNodeID &&
				e.Status != types.RewardEventStatusFailed {
				return nil, gorm.ErrDuplicatedKey
			}
		}
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Status = types.RewardEventStatusQueued
	f.enqueued = append(f.enqueued, event)
	return event, nil
}

func (f *fakeEvents) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RewardEvent, error) {
	for _, e := range f.enqueued {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeEvents) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, policy repos.RunnablePolicy) (*types.RewardEvent, error) {
	return nil, nil
}

func (f *fakeEvents) MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, result []byte) error {
	return nil
}

func (f *fakeEvents) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) error {
	return nil
}

func (f *fakeEvents) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

func (f *fakeEvents) CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error) {
	return 0, nil
}

func TestJoinCreatesNodeAndEnqueuesEvent(t *testing.T) {
	nodes := newFakeNodes()
	events := &fakeEvents{}
	svc := NewMemberService(nil, nodes, events, testLogger(t))

	parent := int64(1)
	if _, _, err := svc.Join(context.Background(), 1, nil, types.TierStandard); err != nil {
		t.Fatalf("root join: %v", err)
	}
	node, event, err := svc.Join(context.Background(), 2, &parent, types.TierStandard)
	if err != nil {
		t.Fatalf("child join: %v", err)
	}
	if node.Path == nil || *node.Path != "1" {
		t.Fatalf("child path = %v, want 1", node.Path)
	}
	if event == nil || event.EventType != types.RewardEventJoin || event.SubjectNodeID != 2 {
		t.Fatalf("unexpected join event: %+v", event)
	}
	if len(events.enqueued) != 1 {
		t.Fatalf("enqueued %d events, want 1", len(events.enqueued))
	}
}

func TestJoinRootEnqueuesNothing(t *testing.T) {
	nodes := newFakeNodes()
	events := &fakeEvents{}
	svc := NewMemberService(nil, nodes, events, testLogger(t))

	node, event, err := svc.Join(context.Background(), 1, nil, types.TierStandard)
	if err != nil {
		t.Fatalf("root join: %v", err)
	}
	if node == nil || node.Depth != 0 {
		t.Fatalf("unexpected root node: %+v", node)
	}
	if event != nil {
		t.Fatalf("root join enqueued an event")
	}
	if len(events.enqueued) != 0 {
		t.Fatalf("enqueued %d events, want 0", len(events.enqueued))
	}
}

func TestJoinRejectsMissingParent(t *testing.T) {
	svc := NewMemberService(nil, newFakeNodes(), &fakeEvents{}, testLogger(t))

	missing := int64(42)
	if _, _, err := svc.Join(context.Background(), 1, &missing, types.TierStandard); err == nil {
		t.Fatalf("expected error for missing parent")
	}
}

func TestConfirmUpgradeEnqueuesEvent(t *testing.T) {
	nodes := newFakeNodes()
	events := &fakeEvents{}
	nodes.add(1, nil, types.TierStandard)
	svc := NewMemberService(nil, nodes, events, testLogger(t))

	amount := decimal.RequireFromString("100")
	event, err := svc.ConfirmUpgrade(context.Background(), 1, amount)
	if err != nil {
		t.Fatalf("confirm upgrade: %v", err)
	}
	if event.EventType != types.RewardEventUpgrade || !event.Amount.Equal(amount) {
		t.Fatalf("unexpected upgrade event: %+v", event)
	}

	got, err := svc.GetEvent(context.Background(), event.ID)
	if err != nil || got == nil || got.ID != event.ID {
		t.Fatalf("GetEvent = %+v, %v", got, err)
	}
}

func TestConfirmUpgradeRejectsDuplicatePending(t *testing.T) {
	nodes := newFakeNodes()
	events := &fakeEvents{}
	nodes.add(1, nil, types.TierStandard)
	svc := NewMemberService(nil, nodes, events, testLogger(t))

	amount := decimal.RequireFromString("100")
	if _, err := svc.ConfirmUpgrade(context.Background(), 1, amount); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	// The tier has not flipped yet, so the already-premium check passes; the
	// enqueue itself must reject the second confirm.
	if _, err := svc.ConfirmUpgrade(context.Background(), 1, amount); err != ErrUpgradePending {
		t.Fatalf("second confirm: got %v, want ErrUpgradePending", err)
	}
	if len(events.enqueued) != 1 {
		t.Fatalf("enqueued %d upgrade events, want 1", len(events.enqueued))
	}
}

func TestConfirmUpgradeValidation(t *testing.T) {
	nodes := newFakeNodes()
	nodes.add(1, nil, types.TierPremium)
	svc := NewMemberService(nil, nodes, &fakeEvents{}, testLogger(t))

	if _, err := svc.ConfirmUpgrade(context.Background(), 1, decimal.Zero); err != ErrInvalidAmount {
		t.Fatalf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.ConfirmUpgrade(context.Background(), 99, decimal.RequireFromString("10")); err != ErrNodeNotFound {
		t.Fatalf("missing node: got %v, want ErrNodeNotFound", err)
	}
	if _, err := svc.ConfirmUpgrade(context.Background(), 1, decimal.RequireFromString("10")); err != ErrAlreadyUpgraded {
		t.Fatalf("premium node: got %v, want ErrAlreadyUpgraded", err)
	}
}
