package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/uplinehq/upline-backend/internal/logger"
)

// Cache is the short-lived read-through cache for profile and tree-statistics
// views. A stale entry for a few seconds is tolerated; the store stays
// authoritative and Invalidate drops the entry after every mutation.
type Cache struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewCache(rdb *goredis.Client, ttl time.Duration, baseLog *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl, log: baseLog.With("service", "Cache")}
}

func profileKey(nodeID int64) string { return fmt.Sprintf("upline:cache:profile:%d", nodeID) }
func statsKey(nodeID int64) string   { return fmt.Sprintf("upline:cache:stats:%d", nodeID) }

// Get unmarshals the cached view into out. The bool reports a hit.
func (c *Cache) get(ctx context.Context, key string, out any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, val any) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

func (c *Cache) GetProfile(ctx context.Context, nodeID int64, out any) (bool, error) {
	return c.get(ctx, profileKey(nodeID), out)
}

func (c *Cache) SetProfile(ctx context.Context, nodeID int64, val any) error {
	return c.set(ctx, profileKey(nodeID), val)
}

func (c *Cache) GetStats(ctx context.Context, nodeID int64, out any) (bool, error) {
	return c.get(ctx, statsKey(nodeID), out)
}

func (c *Cache) SetStats(ctx context.Context, nodeID int64, val any) error {
	return c.set(ctx, statsKey(nodeID), val)
}

func (c *Cache) Invalidate(ctx context.Context, nodeID int64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, profileKey(nodeID), statsKey(nodeID)).Err()
}
