package app

import (
	"gorm.io/gorm"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/repos"
)

type Repos struct {
	Node        repos.NodeRepo
	Ledger      repos.LedgerRepo
	RewardEvent repos.RewardEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Node:        repos.NewNodeRepo(db, log),
		Ledger:      repos.NewLedgerRepo(db, log),
		RewardEvent: repos.NewRewardEventRepo(db, log),
	}
}
