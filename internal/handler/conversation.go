package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"go.uber.org/zap"
)

type ConversationHandler struct {
	svc service.ConversationServicer
	log *zap.Logger
}

func NewConversationHandler(svc service.ConversationServicer, log *zap.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, log: log}
}

// visible загружает разговор :id и проверяет, что актор его видит. Ответ с
// ошибкой пишет сам.
func (h *ConversationHandler) visible(c *gin.Context) (*model.Conversation, bool) {
	conv, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return nil, false
	}
	if !mustActor(c).CanSee(conv) {
		writeError(c, h.log, errs.ErrForbidden)
		return nil, false
	}
	return conv, true
}

func (h *ConversationHandler) List(c *gin.Context) {
	actor := mustActor(c)
	filter := model.ConversationFilter{
		Kind:            model.ConversationKind(c.Query("kind")),
		Status:          model.ConversationStatus(c.Query("status")),
		RestaurantID:    c.Query("restaurant_id"),
		AssignedAgentID: c.Query("assigned_agent_id"),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(c, h.log, errs.ErrInvalidKind)
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(c, h.log, errs.ErrInvalidStatus)
		return
	}
	if actor.Scoped() {
		filter.RestaurantID = actor.RestaurantID
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}
	items, total, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		total = 0
	}
	items = orEmpty(c, h.log, "list conversations", items, err)
	c.JSON(http.StatusOK, gin.H{
		"conversations": items,
		"total":         total,
	})
}

type createConversationRequest struct {
	Kind         string `json:"kind" binding:"required"`
	RestaurantID string `json:"restaurant_id"`
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Priority     string `json:"priority"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	actor := mustActor(c)
	conv := &model.Conversation{
		Kind:         model.ConversationKind(req.Kind),
		RestaurantID: req.RestaurantID,
		CreatedBy:    actor.ID,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Priority:     model.Priority(req.Priority),
	}
	if actor.Scoped() {
		conv.RestaurantID = actor.RestaurantID
	}
	if err := h.svc.CreateConversation(c.Request.Context(), conv); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conv, ok := h.visible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, conv)
}

type updateStatusRequest struct {
	Status            string `json:"status" binding:"required"`
	AssignedAgentName string `json:"assigned_agent_name"`
	AssignedAgentID   string `json:"assigned_agent_id"`
}

func (h *ConversationHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if _, ok := h.visible(c); !ok {
		return
	}
	var assignee *model.Assignee
	if req.AssignedAgentID != "" {
		if mustActor(c).Scoped() {
			writeError(c, h.log, errs.ErrForbidden)
			return
		}
		assignee = &model.Assignee{Name: req.AssignedAgentName, ID: req.AssignedAgentID}
	}
	conv, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), model.ConversationStatus(req.Status), assignee)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type assignRequest struct {
	AgentName string `json:"agent_name"`
	AgentID   string `json:"agent_id"`
}

// Assign назначает агента. Без тела назначается сам вызывающий.
func (h *ConversationHandler) Assign(c *gin.Context) {
	var req assignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	actor := mustActor(c)
	if actor.Scoped() {
		writeError(c, h.log, errs.ErrForbidden)
		return
	}
	if req.AgentID == "" {
		req.AgentID, req.AgentName = actor.ID, actor.Name
	}
	conv, err := h.svc.Assign(c.Request.Context(), c.Param("id"), req.AgentName, req.AgentID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}
