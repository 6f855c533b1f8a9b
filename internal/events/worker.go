package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/types"
)

type WorkerConfig struct {
	PoolSize      int
	ClaimInterval time.Duration
	Policy        repos.RunnablePolicy
}

// Worker is the propagation worker pool: independent goroutines pulling reward
// events off the shared queue. No global lock serializes them; correctness
// under concurrency is the ledger's and the atomic counters' job.
type Worker struct {
	log      *logger.Logger
	repo     repos.RewardEventRepo
	registry *Registry
	cfg      WorkerConfig
}

func NewWorker(baseLog *logger.Logger, repo repos.RewardEventRepo, registry *Registry, cfg WorkerConfig) *Worker {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 1 * time.Second
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = 5
	}
	if cfg.Policy.RetryDelay <= 0 {
		cfg.Policy.RetryDelay = 30 * time.Second
	}
	if cfg.Policy.StaleRunning <= 0 {
		cfg.Policy.StaleRunning = 2 * time.Minute
	}
	return &Worker{
		log:      baseLog.With("component", "RewardWorker"),
		repo:     repo,
		registry: registry,
		cfg:      cfg,
	}
}

func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.PoolSize; i++ {
		go w.loop(ctx, i)
	}
}

func (w *Worker) loop(ctx context.Context, slot int) {
	log := w.log.With("worker_slot", slot)
	ticker := time.NewTicker(w.cfg.ClaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			event, err := w.repo.ClaimNextRunnable(ctx, nil, w.cfg.Policy)
			if err != nil {
				log.Warn("ClaimNextRunnable failed", "error", err)
				continue
			}
			if event == nil {
				continue
			}
			w.process(ctx, log, event)
		}
	}
}

func (w *Worker) process(ctx context.Context, log *logger.Logger, event *types.RewardEvent) {
	h, ok := w.registry.Get(event.EventType)
	if !ok {
		log.Warn("No handler registered for event_type", "event_type", event.EventType, "event_id", event.ID)
		w.fail(ctx, log, event, fmt.Errorf("no handler registered for event_type=%s", event.EventType))
		return
	}
	// A panicking handler must not take the worker slot down with it.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Event handler panic", "event_id", event.ID, "event_type", event.EventType, "panic", r)
			w.fail(ctx, log, event, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := h.Run(ctx, event)
	if err != nil {
		log.Warn("Event processing failed", "event_id", event.ID, "event_type", event.EventType, "error", err)
		w.fail(ctx, log, event, err)
		return
	}
	var raw []byte
	if result != nil {
		raw, _ = json.Marshal(result)
	}
	if mErr := w.repo.MarkSucceeded(ctx, nil, event.ID, raw); mErr != nil {
		log.Warn("MarkSucceeded failed", "event_id", event.ID, "error", mErr)
	}
}

func (w *Worker) fail(ctx context.Context, log *logger.Logger, event *types.RewardEvent, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if mErr := w.repo.MarkFailed(ctx, nil, event.ID, msg); mErr != nil {
		log.Warn("MarkFailed failed", "event_id", event.ID, "error", mErr)
	}
}
