package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/types"
)

var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrAlreadyUpgraded = errors.New("node already upgraded")
	ErrUpgradePending  = errors.New("upgrade already pending for node")
	ErrInvalidAmount   = errors.New("upgrade amount must be positive")
)

// MemberService is the enqueue boundary: the request layer calls Join and
// ConfirmUpgrade exactly once per member lifecycle moment, and the queue takes
// it from there.
type MemberService interface {
	// Join creates the node and enqueues its join event in one transaction.
	Join(ctx context.Context, id int64, parentID *int64, tier string) (*types.Node, *types.RewardEvent, error)
	// ConfirmUpgrade consumes the payment collaborator's verified
	// (node_id, amount) pair and enqueues the upgrade event.
	ConfirmUpgrade(ctx context.Context, nodeID int64, amount decimal.Decimal) (*types.RewardEvent, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*types.RewardEvent, error)
}

type memberService struct {
	db     *gorm.DB
	nodes  repos.NodeRepo
	events repos.RewardEventRepo
	log    *logger.Logger
}

func NewMemberService(db *gorm.DB, nodes repos.NodeRepo, events repos.RewardEventRepo, baseLog *logger.Logger) MemberService {
	return &memberService{
		db:     db,
		nodes:  nodes,
		events: events,
		log:    baseLog.With("service", "MemberService"),
	}
}

func (s *memberService) Join(ctx context.Context, id int64, parentID *int64, tier string) (*types.Node, *types.RewardEvent, error) {
	var node *types.Node
	var event *types.RewardEvent
	err := s.transact(ctx, func(tx *gorm.DB) error {
		var cErr error
		node, cErr = s.nodes.Create(ctx, tx, id, parentID, tier)
		if cErr != nil {
			return cErr
		}
		if parentID == nil {
			// Roots have nobody to reward.
			return nil
		}
		var eErr error
		event, eErr = s.events.Enqueue(ctx, tx, &types.RewardEvent{
			EventType:     types.RewardEventJoin,
			SubjectNodeID: id,
		})
		return eErr
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("Member joined", "node_id", id, "has_parent", parentID != nil)
	return node, event, nil
}

func (s *memberService) ConfirmUpgrade(ctx context.Context, nodeID int64, amount decimal.Decimal) (*types.RewardEvent, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	node, err := s.nodes.GetByID(ctx, nil, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}
	if node.Tier == types.TierPremium {
		return nil, ErrAlreadyUpgraded
	}
	event, err := s.events.Enqueue(ctx, nil, &types.RewardEvent{
		EventType:     types.RewardEventUpgrade,
		SubjectNodeID: nodeID,
		Amount:        amount,
	})
	// The tier check above races a concurrent confirm until the worker flips
	// the tier; the partial unique index on live upgrade events closes it here.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrUpgradePending
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue upgrade: %w", err)
	}
	s.log.Info("Upgrade confirmed, event enqueued", "node_id", nodeID, "event_id", event.ID)
	return event, nil
}

func (s *memberService) GetEvent(ctx context.Context, id uuid.UUID) (*types.RewardEvent, error) {
	return s.events.GetByID(ctx, nil, id)
}

func (s *memberService) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}
