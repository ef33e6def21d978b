package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/brandpulse/internal/chat"
	"github.com/suPer8Hu/brandpulse/internal/common"
	"gorm.io/gorm"
)

type createSessionReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.Chat.CreateSession(c.Request.Context(), cl.ID, req.Title)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}
	common.OK(c, sess)
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	sessions, err := h.Chat.ListSessions(c.Request.Context(), cl.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	msgs, err := h.Chat.ListMessages(c.Request.Context(), cl.ID, c.Param("session_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
}

// SendChatMessage answers 200 for soft outcomes too (no data, provider failure); the body's
// no_context / failed flags tell them apart.
func (h *Handler) SendChatMessage(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	sessionID := c.Param("session_id")

	res, err := h.Chat.SendMessage(c.Request.Context(), cl.ID, sessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
		case errors.Is(err, chat.ErrSessionClosed):
			common.Fail(c, http.StatusConflict, 40902, "session is closed")
		default:
			h.Log.Error("send chat message failed", "client_id", cl.ID, "session_id", sessionID, "err", err)
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to send message")
		}
		return
	}
	common.OK(c, gin.H{
		"session_id": sessionID,
		"result":     res,
	})
}

func (h *Handler) CloseChatSession(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	sess, err := h.Chat.CloseSession(c.Request.Context(), cl.ID, c.Param("session_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, sess)
}
