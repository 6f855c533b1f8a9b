package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/uplinehq/upline-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName   string
	MemberHandler *handlers.MemberHandler
	StatsHandler  *handlers.StatsHandler
	AdminHandler  *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/members", cfg.MemberHandler.CreateMember)
		api.POST("/members/:id/upgrade", cfg.MemberHandler.ConfirmUpgrade)

		api.GET("/members/:id", cfg.StatsHandler.GetProfile)
		api.GET("/members/:id/ancestors", cfg.StatsHandler.GetAncestors)
		api.GET("/members/:id/stats", cfg.StatsHandler.GetAncestorStats)
		api.GET("/members/:id/descendants", cfg.StatsHandler.GetDescendants)
		api.GET("/members/:id/rank", cfg.StatsHandler.GetRank)
		api.GET("/rankings", cfg.StatsHandler.GetTopN)

		api.GET("/events/:id", cfg.MemberHandler.GetEvent)

		admin := api.Group("/admin")
		{
			admin.POST("/reconcile", cfg.AdminHandler.Reconcile)
			admin.POST("/rankings/rebuild", cfg.AdminHandler.RebuildRanking)
		}
	}

	return router
}
