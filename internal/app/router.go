package app

import (
	"github.com/gin-gonic/gin"

	"github.com/uplinehq/upline-backend/internal/server"
)

func wireRouter(cfg Config, handlers Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:   cfg.ServiceName,
		MemberHandler: handlers.Member,
		StatsHandler:  handlers.Stats,
		AdminHandler:  handlers.Admin,
	})
}
