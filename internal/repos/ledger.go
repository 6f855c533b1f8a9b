package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/types"
)

// LedgerRepo is append-only. There are no update or delete operations: every
// credit ever paid stays on record, and the unique (event_id, node_id, level)
// index makes replayed credits no-ops.
type LedgerRepo interface {
	// Insert writes one credit. Returns false when the (event_id, node_id,
	// level) slot was already paid; the caller must then skip the credit.
	Insert(ctx context.Context, tx *gorm.DB, entry *types.LedgerEntry) (bool, error)
	Exists(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, nodeID int64, level int) (bool, error)
	ListByEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) ([]*types.LedgerEntry, error)
	SumAmountByEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (decimal.Decimal, error)
}

type ledgerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLedgerRepo(db *gorm.DB, baseLog *logger.Logger) LedgerRepo {
	return &ledgerRepo{db: db, log: baseLog.With("repo", "LedgerRepo")}
}

func (r *ledgerRepo) Insert(ctx context.Context, tx *gorm.DB, entry *types.LedgerEntry) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil {
		return false, nil
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "node_id"}, {Name: "level"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ledgerRepo) Exists(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, nodeID int64, level int) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.LedgerEntry{}).
		Where("event_id = ? AND node_id = ? AND level = ?", eventID, nodeID, level).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ledgerRepo) ListByEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) ([]*types.LedgerEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.LedgerEntry
	if err := transaction.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("level ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ledgerRepo) SumAmountByEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (decimal.Decimal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var raw *string
	if err := transaction.WithContext(ctx).
		Model(&types.LedgerEntry{}).
		Select("SUM(amount)").
		Where("event_id = ?", eventID).
		Scan(&raw).Error; err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}
