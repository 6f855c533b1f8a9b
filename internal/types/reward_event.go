package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	RewardEventJoin    = "join"
	RewardEventUpgrade = "upgrade"
)

const (
	RewardEventStatusQueued    = "queued"
	RewardEventStatusRunning   = "running"
	RewardEventStatusSucceeded = "succeeded"
	RewardEventStatusFailed    = "failed"
)

// RewardEvent is a durable queue row: one join or upgrade occurrence whose
// rewards must be propagated to the subject's ancestors. Delivery is
// at-least-once; per-level idempotency lives in the ledger, not here.
type RewardEvent struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventType     string          `gorm:"not null;index" json:"event_type"`
	SubjectNodeID int64           `gorm:"not null;index" json:"subject_node_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"amount"`
	Status        string          `gorm:"not null;default:queued;index" json:"status"`
	Attempts      int             `gorm:"not null;default:0" json:"attempts"`
	Payload       datatypes.JSON  `gorm:"type:jsonb" json:"payload,omitempty"`
	Result        datatypes.JSON  `gorm:"type:jsonb" json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	LockedAt      *time.Time      `json:"locked_at,omitempty"`
	HeartbeatAt   *time.Time      `json:"heartbeat_at,omitempty"`
	LastErrorAt   *time.Time      `json:"last_error_at,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;default:now()" json:"updated_at"`
}

func (RewardEvent) TableName() string { return "reward_event" }
