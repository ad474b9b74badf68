package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bravohq/dispatch/internal/common"
)

type newConversationReq struct {
	Title string `json:"title"`
}

// NewConversation allocates a fresh session and returns the token that
// scopes upload retrieval to it.
func (h *Handler) NewConversation(c *gin.Context) {
	var req newConversationReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sessionID := uuid.NewString()
	conv, err := h.Convs.Create(c.Request.Context(), sessionID, req.Title)
	if err != nil {
		h.Logger.Error("create conversation failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create conversation")
		return
	}

	token, err := h.signSessionToken(sessionID)
	if err != nil {
		h.Logger.Error("sign session token failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to sign session token")
		return
	}

	common.OK(c, gin.H{
		"session_id":    conv.SessionID,
		"title":         conv.Title,
		"created_at":    conv.CreatedAt,
		"session_token": token,
	})
}

// GetConversation returns conversation metadata plus a paginated slice
// of its history, newest first.
func (h *Handler) GetConversation(c *gin.Context) {
	sessionID := c.Param("session_id")

	conv, err := h.Convs.GetBySessionID(c.Request.Context(), sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.Convs.ListMessages(c.Request.Context(), conv.ID, limit, beforeID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"conversation": gin.H{
			"session_id": conv.SessionID,
			"title":      conv.Title,
			"created_at": conv.CreatedAt,
		},
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}
