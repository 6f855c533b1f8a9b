package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uplinehq/upline-backend/internal/ranking"
	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/services"
)

type StatsHandler struct {
	stats services.StatsService
}

func NewStatsHandler(stats services.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func memberID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_member_id", err)
		return 0, false
	}
	return id, true
}

// GET /api/members/:id
func (h *StatsHandler) GetProfile(c *gin.Context) {
	id, ok := memberID(c)
	if !ok {
		return
	}
	profile, err := h.stats.GetProfile(c.Request.Context(), id)
	if errors.Is(err, services.ErrNodeNotFound) {
		RespondError(c, http.StatusNotFound, "member_not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "profile_failed", err)
		return
	}
	RespondOK(c, profile)
}

// GET /api/members/:id/ancestors
func (h *StatsHandler) GetAncestors(c *gin.Context) {
	id, ok := memberID(c)
	if !ok {
		return
	}
	ancestors, err := h.stats.GetAncestors(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "ancestors_failed", err)
		return
	}
	RespondOK(c, gin.H{"ancestors": ancestors})
}

// GET /api/members/:id/stats
func (h *StatsHandler) GetAncestorStats(c *gin.Context) {
	id, ok := memberID(c)
	if !ok {
		return
	}
	stats, err := h.stats.GetAncestorStats(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, stats)
}

// GET /api/members/:id/descendants?level=N
func (h *StatsHandler) GetDescendants(c *gin.Context) {
	id, ok := memberID(c)
	if !ok {
		return
	}
	level, err := strconv.Atoi(c.DefaultQuery("level", "1"))
	if err != nil || level < 1 || level > repos.MaxRewardLevels {
		RespondError(c, http.StatusBadRequest, "invalid_level", errors.New("level must be 1..9"))
		return
	}
	descendants, err := h.stats.GetDescendantsAtLevel(c.Request.Context(), id, level)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "descendants_failed", err)
		return
	}
	RespondOK(c, gin.H{"level": level, "descendants": descendants})
}

// GET /api/members/:id/rank
func (h *StatsHandler) GetRank(c *gin.Context) {
	id, ok := memberID(c)
	if !ok {
		return
	}
	rank, err := h.stats.GetRank(c.Request.Context(), id)
	if errors.Is(err, ranking.ErrNotRanked) {
		RespondError(c, http.StatusNotFound, "not_ranked", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "rank_failed", err)
		return
	}
	RespondOK(c, gin.H{"node_id": id, "rank": rank})
}

// GET /api/rankings?limit=N
func (h *StatsHandler) GetTopN(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)
	if err != nil || limit < 1 || limit > 1000 {
		RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be 1..1000"))
		return
	}
	top, err := h.stats.GetTopN(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "rankings_failed", err)
		return
	}
	RespondOK(c, gin.H{"rankings": top})
}
