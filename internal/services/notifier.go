package services

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/rewards"
	"github.com/uplinehq/upline-backend/internal/types"
)

// RewardNotification is the boundary payload for the messaging collaborator:
// one entry per ancestor credited by a processed event. This core knows
// nothing about message formatting or delivery channels.
type RewardNotification struct {
	EventID       string           `json:"event_id"`
	EventType     string           `json:"event_type"`
	SubjectNodeID int64            `json:"subject_node_id"`
	Credits       []rewards.Credit `json:"credits"`
	ProcessedAt   time.Time        `json:"processed_at"`
}

type rewardNotifier struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRewardNotifier publishes reward notifications on a redis channel.
func NewRewardNotifier(rdb *goredis.Client, log *logger.Logger) rewards.Notifier {
	ch := strings.TrimSpace(os.Getenv("REWARD_CHANNEL"))
	if ch == "" {
		ch = "upline:rewards"
	}
	return &rewardNotifier{
		log:     log.With("service", "RewardNotifier"),
		rdb:     rdb,
		channel: ch,
	}
}

func (n *rewardNotifier) EventProcessed(ctx context.Context, event *types.RewardEvent, credits []rewards.Credit) {
	if n == nil || n.rdb == nil || event == nil || len(credits) == 0 {
		return
	}
	raw, err := json.Marshal(RewardNotification{
		EventID:       event.ID.String(),
		EventType:     event.EventType,
		SubjectNodeID: event.SubjectNodeID,
		Credits:       credits,
		ProcessedAt:   time.Now().UTC(),
	})
	if err != nil {
		n.log.Warn("Reward notification marshal failed", "event_id", event.ID, "error", err)
		return
	}
	// Notification delivery never blocks or fails the reward itself.
	if pErr := n.rdb.Publish(ctx, n.channel, raw).Err(); pErr != nil {
		n.log.Warn("Reward notification publish failed", "event_id", event.ID, "error", pErr)
	}
}

type logNotifier struct {
	log *logger.Logger
}

// NewLogNotifier is the fallback when redis is unavailable: credited tuples
// are only logged.
func NewLogNotifier(log *logger.Logger) rewards.Notifier {
	return &logNotifier{log: log.With("service", "LogNotifier")}
}

func (n *logNotifier) EventProcessed(ctx context.Context, event *types.RewardEvent, credits []rewards.Credit) {
	if event == nil {
		return
	}
	n.log.Info("Event processed",
		"event_id", event.ID,
		"event_type", event.EventType,
		"subject_node_id", event.SubjectNodeID,
		"credits", len(credits))
}
