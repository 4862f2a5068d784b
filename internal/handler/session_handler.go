package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mirefly/ragdex/internal/pkg/response"
	"github.com/mirefly/ragdex/internal/service"
)

type SessionHandler struct {
	chat *service.ChatService
}

func NewSessionHandler(chat *service.ChatService) *SessionHandler {
	return &SessionHandler{chat: chat}
}

func (h *SessionHandler) List(c *gin.Context) {
	limit, offset := parsePager(c)
	sessions, err := h.chat.ListSessions(c.Request.Context(), getOwner(c), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"sessions": sessions})
}

func (h *SessionHandler) Messages(c *gin.Context) {
	limit, offset := parsePager(c)
	messages, err := h.chat.ListMessages(c.Request.Context(), getOwner(c), c.Param("id"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"messages": messages})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.chat.DeleteSession(c.Request.Context(), getOwner(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
