package rewards

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/types"
)

// Tables holds the per-level reward schedule as plain data. Both propagation
// code paths read the same instance; there is exactly one authoritative copy.
type Tables struct {
	// XP credited per level for a join, before tier scaling.
	XP map[int]int64
	// CommissionPct is the fraction of the upgrade base amount credited per
	// level. Commission is never tier-scaled.
	CommissionPct map[int]decimal.Decimal
	// Multipliers scales join XP by the receiving ancestor's tier.
	Multipliers map[string]int64
}

func DefaultTables() Tables {
	xp := map[int]int64{1: 35, 2: 10}
	pct := map[int]decimal.Decimal{
		1: decimal.NewFromFloat(0.30),
		2: decimal.NewFromFloat(0.05),
		3: decimal.NewFromFloat(0.03),
	}
	for level := 3; level <= repos.MaxRewardLevels; level++ {
		xp[level] = 1
	}
	for level := 4; level <= repos.MaxRewardLevels; level++ {
		pct[level] = decimal.NewFromFloat(0.01)
	}
	return Tables{
		XP:            xp,
		CommissionPct: pct,
		Multipliers: map[string]int64{
			types.TierStandard: 1,
			types.TierPremium:  5,
		},
	}
}

// Validate rejects schedules that do not cover every level 1..9 or carry
// negative values. Engines refuse to start on an invalid schedule.
func (t Tables) Validate() error {
	for level := 1; level <= repos.MaxRewardLevels; level++ {
		xp, ok := t.XP[level]
		if !ok {
			return fmt.Errorf("xp table missing level %d", level)
		}
		if xp < 0 {
			return fmt.Errorf("xp table negative at level %d", level)
		}
		pct, ok := t.CommissionPct[level]
		if !ok {
			return fmt.Errorf("commission table missing level %d", level)
		}
		if pct.IsNegative() {
			return fmt.Errorf("commission table negative at level %d", level)
		}
	}
	if len(t.Multipliers) == 0 {
		return fmt.Errorf("multiplier table empty")
	}
	for tier, m := range t.Multipliers {
		if m < 1 {
			return fmt.Errorf("multiplier for tier %q below 1", tier)
		}
	}
	return nil
}

// JoinXP is the XP credited to an ancestor at the given level, scaled by the
// ancestor's tier. Unknown tiers get no scaling.
func (t Tables) JoinXP(level int, tier string) int64 {
	base := t.XP[level]
	mult, ok := t.Multipliers[tier]
	if !ok {
		mult = 1
	}
	return base * mult
}

// Commission is the amount credited to an ancestor at the given level for an
// upgrade with the given base amount.
func (t Tables) Commission(level int, base decimal.Decimal) decimal.Decimal {
	return base.Mul(t.CommissionPct[level])
}
