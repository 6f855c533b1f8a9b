package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/types"
)

type RunnablePolicy struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

type RewardEventRepo interface {
	Enqueue(ctx context.Context, tx *gorm.DB, event *types.RewardEvent) (*types.RewardEvent, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RewardEvent, error)
	// ClaimNextRunnable picks one deliverable event and marks it running.
	// Deliverable: freshly queued, failed with attempts left past the retry
	// delay, or running with a stale heartbeat (abandoned by a dead worker).
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, policy RunnablePolicy) (*types.RewardEvent, error)
	MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, result []byte) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error)
}

type rewardEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRewardEventRepo(db *gorm.DB, baseLog *logger.Logger) RewardEventRepo {
	return &rewardEventRepo{db: db, log: baseLog.With("repo", "RewardEventRepo")}
}

func (r *rewardEventRepo) Enqueue(ctx context.Context, tx *gorm.DB, event *types.RewardEvent) (*types.RewardEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if event == nil {
		return nil, nil
	}
	if event.Status == "" {
		event.Status = types.RewardEventStatusQueued
	}
	if err := transaction.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *rewardEventRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RewardEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var event types.RewardEvent
	err := transaction.WithContext(ctx).First(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *rewardEventRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, policy RunnablePolicy) (*types.RewardEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-policy.RetryDelay)
	staleCutoff := now.Add(-policy.StaleRunning)
	var claimed *types.RewardEvent
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var event types.RewardEvent
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				(
					status = ?
					OR (
						status = ?
						AND attempts < ?
						AND (last_error_at IS NULL OR last_error_at < ?)
					)
					OR (
						status = ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, types.RewardEventStatusQueued,
				types.RewardEventStatusFailed, policy.MaxAttempts, retryCutoff,
				types.RewardEventStatusRunning, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&event).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.RewardEvent{}).
			Where("id = ?", event.ID).
			Updates(map[string]interface{}{
				"status":       types.RewardEventStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *rewardEventRepo) MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, result []byte) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.RewardEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     types.RewardEventStatusSucceeded,
			"result":     result,
			"error":      "",
			"locked_at":  nil,
			"updated_at": now,
		}).Error
}

func (r *rewardEventRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.RewardEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        types.RewardEventStatusFailed,
			"error":         errMsg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		}).Error
}

func (r *rewardEventRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.RewardEvent{}).
		Where("id = ? AND status = ?", id, types.RewardEventStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *rewardEventRepo) CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.RewardEvent{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
