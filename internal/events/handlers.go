package events

import (
	"context"

	"github.com/uplinehq/upline-backend/internal/rewards"
	"github.com/uplinehq/upline-backend/internal/types"
)

// joinHandler and upgradeHandler are thin adapters from the queue's handler
// contract onto the propagation engine.
type joinHandler struct {
	engine *rewards.Engine
}

func NewJoinHandler(engine *rewards.Engine) Handler {
	return &joinHandler{engine: engine}
}

func (h *joinHandler) Type() string { return types.RewardEventJoin }

func (h *joinHandler) Run(ctx context.Context, event *types.RewardEvent) (any, error) {
	return h.engine.Propagate(ctx, event)
}

type upgradeHandler struct {
	engine *rewards.Engine
}

func NewUpgradeHandler(engine *rewards.Engine) Handler {
	return &upgradeHandler{engine: engine}
}

func (h *upgradeHandler) Type() string { return types.RewardEventUpgrade }

func (h *upgradeHandler) Run(ctx context.Context, event *types.RewardEvent) (any, error) {
	return h.engine.Propagate(ctx, event)
}
