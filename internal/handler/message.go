package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type MessageHandler struct {
	conversations *ConversationHandler
	svc           service.MessageServicer
	log           *zap.Logger
}

func NewMessageHandler(conversations *ConversationHandler, svc service.MessageServicer, log *zap.Logger) *MessageHandler {
	return &MessageHandler{conversations: conversations, svc: svc, log: log}
}

func (h *MessageHandler) List(c *gin.Context) {
	conv, ok := h.conversations.visible(c)
	if !ok {
		return
	}
	items, err := h.svc.ListMessages(c.Request.Context(), conv.ID)
	c.JSON(http.StatusOK, gin.H{"messages": orEmpty(c, h.log, "list messages", items, err)})
}

type sendMessageRequest struct {
	Text        string         `json:"text" binding:"required"`
	MessageType string         `json:"message_type"`
	Attachments datatypes.JSON `json:"attachments"`
}

// Send пишет от имени вызывающего актора. При ошибке текст возвращается,
// чтобы клиент восстановил поле ввода.
func (h *MessageHandler) Send(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, ok := h.conversations.visible(c)
	if !ok {
		return
	}
	actor := mustActor(c)
	msg := &model.Message{
		ConversationID: conv.ID,
		SenderType:     actor.Role.SenderType(),
		SenderID:       actor.ID,
		SenderName:     actor.Name,
		Text:           req.Text,
		MessageType:    model.MessageType(req.MessageType),
		Attachments:    req.Attachments,
	}
	if msg.MessageType != "" && !msg.MessageType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message_type", "text": req.Text})
		return
	}
	if err := h.svc.SendMessage(c.Request.Context(), msg); err != nil {
		writeError(c, h.log, &realtime.SendError{Text: req.Text, Err: err})
		return
	}
	c.JSON(http.StatusCreated, msg)
}
