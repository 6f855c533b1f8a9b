package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/uplinehq/upline-backend/internal/events"
	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/ranking"
	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/rewards"
	"github.com/uplinehq/upline-backend/internal/services"
)

type Services struct {
	Member     services.MemberService
	Stats      services.StatsService
	Engine     *rewards.Engine
	Reconciler *rewards.Reconciler
	Worker     *events.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	var (
		rank  *ranking.Ranking
		cache *ranking.Cache
	)
	if clients.Redis != nil {
		rank = ranking.NewRanking(clients.Redis, log)
		cache = ranking.NewCache(clients.Redis, cfg.CacheTTL, log)
	}
	syncer := &ranking.Sync{Ranking: rank, Cache: cache}

	var notifier rewards.Notifier
	if clients.Redis != nil {
		notifier = services.NewRewardNotifier(clients.Redis, log)
	} else {
		notifier = services.NewLogNotifier(log)
	}

	engine, err := rewards.NewEngine(db, reposet.Node, reposet.Ledger, syncer, notifier, rewards.DefaultTables(), log, rewards.EngineOptions{
		LevelTimeout: cfg.LevelTimeout,
		LevelRetries: cfg.LevelRetries,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init reward engine: %w", err)
	}

	registry := events.NewRegistry()
	if err := registry.Register(events.NewJoinHandler(engine)); err != nil {
		return Services{}, fmt.Errorf("register join handler: %w", err)
	}
	if err := registry.Register(events.NewUpgradeHandler(engine)); err != nil {
		return Services{}, fmt.Errorf("register upgrade handler: %w", err)
	}

	worker := events.NewWorker(log, reposet.RewardEvent, registry, events.WorkerConfig{
		PoolSize:      cfg.WorkerPoolSize,
		ClaimInterval: cfg.ClaimInterval,
		Policy: repos.RunnablePolicy{
			MaxAttempts:  cfg.MaxAttempts,
			RetryDelay:   cfg.RetryDelay,
			StaleRunning: cfg.StaleRunning,
		},
	})

	return Services{
		Member:     services.NewMemberService(db, reposet.Node, reposet.RewardEvent, log),
		Stats:      services.NewStatsService(reposet.Node, rank, cache, log),
		Engine:     engine,
		Reconciler: rewards.NewReconciler(reposet.Node, log, cfg.ReconcileBatchSize),
		Worker:     worker,
	}, nil
}
