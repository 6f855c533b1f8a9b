package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/types"
)

// Credit is one paid reward, reported to the ranking syncer and the
// notification collaborator after an event is processed.
type Credit struct {
	NodeID int64           `json:"node_id"`
	Level  int             `json:"level"`
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// Outcome summarizes one Propagate call. Stored as the queue row result.
type Outcome struct {
	Credits       []Credit `json:"credits"`
	SkippedLevels []int    `json:"skipped_levels,omitempty"`
	BrokenLineage bool     `json:"broken_lineage,omitempty"`
}

// Syncer keeps the external score index and read caches in step with the
// store. Best-effort: the engine logs sync failures and never rolls a reward
// back because of one.
type Syncer interface {
	OnScoreChanged(ctx context.Context, nodeID int64, score int64) error
	Invalidate(ctx context.Context, nodeID int64) error
}

// Notifier receives the credited tuples per processed event. Message
// formatting and delivery are someone else's problem.
type Notifier interface {
	EventProcessed(ctx context.Context, event *types.RewardEvent, credits []Credit)
}

type EngineOptions struct {
	// LevelTimeout bounds each level's credit write.
	LevelTimeout time.Duration
	// LevelRetries is how many times a failed level credit is retried before
	// the level is skipped.
	LevelRetries int
}

type Engine struct {
	db     *gorm.DB
	nodes  repos.NodeRepo
	ledger repos.LedgerRepo
	sync   Syncer
	notify Notifier
	tables Tables
	log    *logger.Logger
	opts   EngineOptions
}

func NewEngine(db *gorm.DB, nodes repos.NodeRepo, ledger repos.LedgerRepo, sync Syncer, notify Notifier, tables Tables, baseLog *logger.Logger, opts EngineOptions) (*Engine, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("reward tables: %w", err)
	}
	if opts.LevelTimeout <= 0 {
		opts.LevelTimeout = 5 * time.Second
	}
	if opts.LevelRetries < 0 {
		opts.LevelRetries = 0
	}
	return &Engine{
		db:     db,
		nodes:  nodes,
		ledger: ledger,
		sync:   sync,
		notify: notify,
		tables: tables,
		log:    baseLog.With("component", "RewardEngine"),
		opts:   opts,
	}, nil
}

// Propagate applies one reward event to the subject's ancestor chain. The
// caller (queue worker) retries the whole call on error; every level credit is
// idempotent via the ledger, so replays only pay what is still unpaid.
func (e *Engine) Propagate(ctx context.Context, event *types.RewardEvent) (*Outcome, error) {
	if event == nil {
		return nil, fmt.Errorf("nil event")
	}
	switch event.EventType {
	case types.RewardEventJoin:
		return e.propagateJoin(ctx, event)
	case types.RewardEventUpgrade:
		return e.propagateUpgrade(ctx, event)
	default:
		return nil, fmt.Errorf("unknown event_type %q", event.EventType)
	}
}

func (e *Engine) propagateJoin(ctx context.Context, event *types.RewardEvent) (*Outcome, error) {
	ancestors, broken, err := e.nodes.GetAncestors(ctx, nil, event.SubjectNodeID, repos.MaxRewardLevels)
	if err != nil {
		return nil, fmt.Errorf("resolve lineage: %w", err)
	}
	out := &Outcome{BrokenLineage: broken}
	if broken {
		e.log.Warn("Lineage truncated, continuing with resolvable ancestors",
			"event_id", event.ID, "subject_node_id", event.SubjectNodeID,
			"resolved_levels", len(ancestors), "error", ErrBrokenLineage)
	}

	for i, ancestor := range ancestors {
		level := i + 1
		xp := e.tables.JoinXP(level, ancestor.Tier)
		entry := &types.LedgerEntry{
			EventID: event.ID,
			NodeID:  ancestor.ID,
			Level:   level,
			Kind:    types.LedgerKindXP,
			Amount:  decimal.NewFromInt(xp),
		}
		credited, lvlErr := e.creditJoinLevel(ctx, entry, xp)
		if lvlErr != nil {
			// The walk always advances: a dead level must never wedge the
			// engine against the same ancestor or starve the levels behind it.
			e.log.Error("Level credit failed after retries, skipping level",
				"event_id", event.ID, "node_id", ancestor.ID, "level", level,
				"error", &TransientStoreError{Level: level, Err: lvlErr})
			out.SkippedLevels = append(out.SkippedLevels, level)
			continue
		}
		if credited {
			out.Credits = append(out.Credits, Credit{
				NodeID: ancestor.ID, Level: level,
				Kind: types.LedgerKindXP, Amount: entry.Amount,
			})
		}
	}

	e.finish(ctx, event, out, true)
	return out, nil
}

// creditJoinLevel writes one level's XP credit in its own small transaction:
// ledger row, score increment, descendant count increment. Returns false when
// the ledger slot was already paid (replay).
func (e *Engine) creditJoinLevel(ctx context.Context, entry *types.LedgerEntry, xp int64) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.LevelRetries; attempt++ {
		credited := false
		lctx, cancel := context.WithTimeout(ctx, e.opts.LevelTimeout)
		err := e.transact(lctx, func(tx *gorm.DB) error {
			inserted, iErr := e.ledger.Insert(lctx, tx, entry)
			if iErr != nil {
				return iErr
			}
			if !inserted {
				return nil
			}
			if sErr := e.nodes.IncrementScore(lctx, tx, entry.NodeID, xp); sErr != nil {
				return sErr
			}
			if dErr := e.nodes.IncrementDescendantCount(lctx, tx, entry.NodeID, 1); dErr != nil {
				return dErr
			}
			credited = true
			return nil
		})
		cancel()
		if err == nil {
			return credited, nil
		}
		lastErr = err
	}
	return false, lastErr
}

// propagateUpgrade credits commissions and flips the subject's tier in one
// transaction. Crediting ancestors without persisting the upgrade, or the
// reverse, is not an acceptable partial state; the flip goes last so a failed
// credit aborts before the subject is ever marked premium.
func (e *Engine) propagateUpgrade(ctx context.Context, event *types.RewardEvent) (*Outcome, error) {
	ancestors, broken, err := e.nodes.GetAncestors(ctx, nil, event.SubjectNodeID, repos.MaxRewardLevels)
	if err != nil {
		return nil, fmt.Errorf("resolve lineage: %w", err)
	}
	out := &Outcome{BrokenLineage: broken}
	if broken {
		e.log.Warn("Lineage truncated, continuing with resolvable ancestors",
			"event_id", event.ID, "subject_node_id", event.SubjectNodeID,
			"resolved_levels", len(ancestors), "error", ErrBrokenLineage)
	}

	txErr := e.transact(ctx, func(tx *gorm.DB) error {
		for i, ancestor := range ancestors {
			level := i + 1
			amount := e.tables.Commission(level, event.Amount)
			entry := &types.LedgerEntry{
				EventID: event.ID,
				NodeID:  ancestor.ID,
				Level:   level,
				Kind:    types.LedgerKindCommission,
				Amount:  amount,
			}
			inserted, iErr := e.ledger.Insert(ctx, tx, entry)
			if iErr != nil {
				return iErr
			}
			if !inserted {
				out.SkippedLevels = append(out.SkippedLevels, level)
				continue
			}
			if bErr := e.nodes.IncrementBalance(ctx, tx, ancestor.ID, amount); bErr != nil {
				return bErr
			}
			out.Credits = append(out.Credits, Credit{
				NodeID: ancestor.ID, Level: level,
				Kind: types.LedgerKindCommission, Amount: amount,
			})
		}
		if _, uErr := e.nodes.SetUpgraded(ctx, tx, event.SubjectNodeID, time.Now()); uErr != nil {
			return uErr
		}
		return nil
	})
	if txErr != nil {
		// Rolled back in full; the queue redelivers the whole event.
		return nil, fmt.Errorf("upgrade transaction: %w", txErr)
	}

	e.finish(ctx, event, out, false)
	return out, nil
}

// finish pushes ranking/cache signals and the reward notification for every
// ancestor actually credited. All of it is best-effort: a stuck cache or
// broker never blocks or reverses the credit.
func (e *Engine) finish(ctx context.Context, event *types.RewardEvent, out *Outcome, scoresChanged bool) {
	if len(out.Credits) == 0 {
		return
	}
	if e.sync != nil {
		ids := make([]int64, 0, len(out.Credits))
		for _, c := range out.Credits {
			ids = append(ids, c.NodeID)
		}
		if scoresChanged {
			nodes, err := e.nodes.GetByIDs(ctx, nil, ids)
			if err != nil {
				e.log.Warn("Score refresh for ranking sync failed", "event_id", event.ID, "error", err)
			} else {
				for _, n := range nodes {
					if sErr := e.sync.OnScoreChanged(ctx, n.ID, n.Score); sErr != nil {
						e.log.Warn("Ranking sync failed", "node_id", n.ID, "error", sErr)
					}
				}
			}
		}
		for _, id := range ids {
			if iErr := e.sync.Invalidate(ctx, id); iErr != nil {
				e.log.Warn("Cache invalidation failed", "node_id", id, "error", iErr)
			}
		}
	}
	if e.notify != nil {
		e.notify.EventProcessed(ctx, event, out.Credits)
	}
}

func (e *Engine) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if e.db == nil {
		return fn(nil)
	}
	return e.db.WithContext(ctx).Transaction(fn)
}
