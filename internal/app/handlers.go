package app

import (
	"github.com/uplinehq/upline-backend/internal/handlers"
	"github.com/uplinehq/upline-backend/internal/logger"
)

type Handlers struct {
	Member *handlers.MemberHandler
	Stats  *handlers.StatsHandler
	Admin  *handlers.AdminHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Member: handlers.NewMemberHandler(services.Member),
		Stats:  handlers.NewStatsHandler(services.Stats),
		Admin:  handlers.NewAdminHandler(services.Reconciler, services.Stats),
	}
}
