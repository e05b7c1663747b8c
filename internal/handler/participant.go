package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"go.uber.org/zap"
)

type ParticipantHandler struct {
	conversations *ConversationHandler
	svc           service.ParticipantServicer
	log           *zap.Logger
}

func NewParticipantHandler(conversations *ConversationHandler, svc service.ParticipantServicer, log *zap.Logger) *ParticipantHandler {
	return &ParticipantHandler{conversations: conversations, svc: svc, log: log}
}

func (h *ParticipantHandler) List(c *gin.Context) {
	conv, ok := h.conversations.visible(c)
	if !ok {
		return
	}
	items, err := h.svc.ListParticipants(c.Request.Context(), conv.ID)
	c.JSON(http.StatusOK, gin.H{"participants": orEmpty(c, h.log, "list participants", items, err)})
}

// Join добавляет вызывающего актора в разговор.
func (h *ParticipantHandler) Join(c *gin.Context) {
	conv, ok := h.conversations.visible(c)
	if !ok {
		return
	}
	p, err := h.svc.Join(c.Request.Context(), conv.ID, mustActor(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type presenceRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// SetPresence меняет флаг онлайн самого вызывающего актора.
func (h *ParticipantHandler) SetPresence(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, ok := h.conversations.visible(c)
	if !ok {
		return
	}
	p, err := h.svc.SetPresence(c.Request.Context(), conv.ID, mustActor(c).ID, *req.Online)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Leave убирает вызывающего актора из участников разговора.
func (h *ParticipantHandler) Leave(c *gin.Context) {
	conv, ok := h.conversations.visible(c)
	if !ok {
		return
	}
	if err := h.svc.Leave(c.Request.Context(), conv.ID, mustActor(c).ID); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
