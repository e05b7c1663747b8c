package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"go.uber.org/zap"
)

type AuthHandler struct {
	agents   service.AgentServicer
	sessions Sessions
	log      *zap.Logger
}

func NewAuthHandler(agents service.AgentServicer, sessions Sessions, log *zap.Logger) *AuthHandler {
	return &AuthHandler{agents: agents, sessions: sessions, log: log}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	agent, err := h.agents.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	sess, err := h.sessions.Issue(c.Request.Context(), agent.Actor())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Info("auth: login", zap.String("agent_id", agent.ID), zap.String("role", string(agent.Role)))
	c.JSON(http.StatusOK, sess)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Get(tokenKey)
	if s, ok := token.(string); ok {
		if err := h.sessions.Clear(c.Request.Context(), s); err != nil {
			writeError(c, h.log, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, mustActor(c))
}
