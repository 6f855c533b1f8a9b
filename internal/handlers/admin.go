package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uplinehq/upline-backend/internal/rewards"
	"github.com/uplinehq/upline-backend/internal/services"
)

type AdminHandler struct {
	reconciler *rewards.Reconciler
	stats      services.StatsService
}

func NewAdminHandler(reconciler *rewards.Reconciler, stats services.StatsService) *AdminHandler {
	return &AdminHandler{reconciler: reconciler, stats: stats}
}

// POST /api/admin/reconcile
//
// Recomputes path/depth/descendant_count for the whole tree from the parent
// edges. Safe to run while traffic is live.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "reconcile_failed", err)
		return
	}
	RespondOK(c, report)
}

// POST /api/admin/rankings/rebuild
func (h *AdminHandler) RebuildRanking(c *gin.Context) {
	n, err := h.stats.RebuildRanking(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "rebuild_failed", err)
		return
	}
	RespondOK(c, gin.H{"indexed": n})
}
