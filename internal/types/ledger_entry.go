package types

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LedgerKindXP         = "xp"
	LedgerKindCommission = "commission"
)

// LedgerEntry records a single reward credit. Rows are append-only: they are
// written exactly once by the propagation engine and never updated or deleted.
// The unique (event_id, node_id, level) index doubles as the idempotency guard
// for replayed events.
type LedgerEntry struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_ledger_event_node_level,priority:1" json:"event_id"`
	NodeID    int64           `gorm:"not null;uniqueIndex:ux_ledger_event_node_level,priority:2;index" json:"node_id"`
	Level     int             `gorm:"not null;uniqueIndex:ux_ledger_event_node_level,priority:3" json:"level"`
	Kind      string          `gorm:"not null" json:"kind"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	CreatedAt time.Time       `gorm:"not null;default:now()" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entry" }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }
