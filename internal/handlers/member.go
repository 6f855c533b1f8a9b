package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uplinehq/upline-backend/internal/repos"
	"github.com/uplinehq/upline-backend/internal/services"
)

type MemberHandler struct {
	members services.MemberService
}

func NewMemberHandler(members services.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

type createMemberRequest struct {
	ID       int64  `json:"id" binding:"required"`
	ParentID *int64 `json:"parent_id"`
	Tier     string `json:"tier"`
}

// POST /api/members
func (h *MemberHandler) CreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	node, event, err := h.members.Join(c.Request.Context(), req.ID, req.ParentID, req.Tier)
	if errors.Is(err, repos.ErrInvalidParent) {
		RespondError(c, http.StatusBadRequest, "invalid_parent", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "join_failed", err)
		return
	}
	resp := gin.H{"node": node}
	if event != nil {
		resp["event_id"] = event.ID
	}
	c.JSON(http.StatusCreated, resp)
}

type upgradeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// POST /api/members/:id/upgrade
func (h *MemberHandler) ConfirmUpgrade(c *gin.Context) {
	nodeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_member_id", err)
		return
	}
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	event, err := h.members.ConfirmUpgrade(c.Request.Context(), nodeID, req.Amount)
	switch {
	case errors.Is(err, services.ErrNodeNotFound):
		RespondError(c, http.StatusNotFound, "member_not_found", err)
		return
	case errors.Is(err, services.ErrAlreadyUpgraded):
		RespondError(c, http.StatusConflict, "already_upgraded", err)
		return
	case errors.Is(err, services.ErrUpgradePending):
		RespondError(c, http.StatusConflict, "upgrade_pending", err)
		return
	case errors.Is(err, services.ErrInvalidAmount):
		RespondError(c, http.StatusBadRequest, "invalid_amount", err)
		return
	case err != nil:
		RespondError(c, http.StatusInternalServerError, "upgrade_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event_id": event.ID})
}

// GET /api/events/:id
func (h *MemberHandler) GetEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_event_id", err)
		return
	}
	event, err := h.members.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "event_lookup_failed", err)
		return
	}
	if event == nil {
		RespondError(c, http.StatusNotFound, "event_not_found", errors.New("event not found"))
		return
	}
	RespondOK(c, gin.H{"event": event})
}
