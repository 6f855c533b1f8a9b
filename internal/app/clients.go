package app

import (
	"fmt"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/uplinehq/upline-backend/internal/clients/redis"
	"github.com/uplinehq/upline-backend/internal/logger"
)

type Clients struct {
	Redis *goredis.Client
}

// wireClients connects external clients. Redis is optional: without
// REDIS_ADDR the service runs with ranking and cache disabled.
func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	var rdb *goredis.Client
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		c, err := redis.NewClient(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis client: %w", err)
		}
		rdb = c
	} else {
		log.Warn("REDIS_ADDR not set, rankings and caching disabled")
	}

	return Clients{Redis: rdb}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
