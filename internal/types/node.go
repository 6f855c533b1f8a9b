package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Node is one member of the referral hierarchy. Structural fields (path, depth,
// descendant_count) are derived from parent_id and owned by the propagation
// engine and the reconciler; request handlers never read-modify-write them.
type Node struct {
	ID              int64           `gorm:"primaryKey" json:"id"`
	ParentID        *int64          `gorm:"index" json:"parent_id,omitempty"`
	Parent          *Node           `gorm:"constraint:OnDelete:RESTRICT;foreignKey:ParentID;references:ID" json:"parent,omitempty"`
	Path            *string         `gorm:"index" json:"path,omitempty"`
	Depth           int             `gorm:"not null;default:0" json:"depth"`
	DescendantCount int64           `gorm:"not null;default:0" json:"descendant_count"`
	Score           int64           `gorm:"not null;default:0;index" json:"score"`
	Balance         decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"balance"`
	Tier            string          `gorm:"not null;default:standard;index" json:"tier"`
	UpgradedAt      *time.Time      `json:"upgraded_at,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;default:now()" json:"updated_at"`
}

func (Node) TableName() string { return "node" }

// PathSegments splits the materialized path into ancestor ids, root first.
// The last segment is always the direct parent id.
func (n *Node) PathSegments() []string {
	if n.Path == nil {
		return nil
	}
	p := strings.TrimSpace(*n.Path)
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// SubtreePathPrefix is the path every descendant's path starts with:
// the node's own path extended by its own id.
func (n *Node) SubtreePathPrefix() string {
	if segs := n.PathSegments(); len(segs) > 0 {
		return strings.Join(segs, ".") + "." + formatID(n.ID)
	}
	return formatID(n.ID)
}
