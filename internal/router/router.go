package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/support-chat-service/api"
	"github.com/psds-microservice/support-chat-service/internal/handler"
	"github.com/psds-microservice/support-chat-service/internal/model"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Handlers все обработчики, которые подключает роутер.
type Handlers struct {
	Health        *handler.HealthHandler
	Auth          *handler.AuthHandler
	Conversations *handler.ConversationHandler
	Messages      *handler.MessageHandler
	Participants  *handler.ParticipantHandler
	Stats         *handler.StatsHandler
	Billing       *handler.BillingHandler
	Websocket     *handler.WebsocketHandler
}

func New(h Handlers, sessions handler.Sessions, log *zap.Logger) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(log))
	r.GET(paths.PathHealth, h.Health.Health)
	r.GET(paths.PathReady, h.Health.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", h.Auth.Login)

	authed := v1.Group("", handler.RequireSession(sessions, log))
	{
		authed.POST("/auth/logout", h.Auth.Logout)
		authed.GET("/auth/me", h.Auth.Me)

		authed.GET("/conversations", h.Conversations.List)
		authed.POST("/conversations", h.Conversations.Create)
		authed.GET("/conversations/:id", h.Conversations.Get)
		authed.PUT("/conversations/:id/status", h.Conversations.UpdateStatus)
		authed.POST("/conversations/:id/assign", h.Conversations.Assign)

		authed.GET("/conversations/:id/messages", h.Messages.List)
		authed.POST("/conversations/:id/messages", h.Messages.Send)

		authed.GET("/conversations/:id/participants", h.Participants.List)
		authed.POST("/conversations/:id/participants", h.Participants.Join)
		authed.DELETE("/conversations/:id/participants", h.Participants.Leave)
		authed.PUT("/conversations/:id/participants/presence", h.Participants.SetPresence)

		authed.GET("/stats/status-counts", h.Stats.StatusCounts)
		authed.GET("/admin/stats", handler.RequireRole(log, model.RoleSuperAdmin), h.Stats.System)

		authed.POST("/billing/:restaurant_id/confirm", h.Billing.Confirm)

		authed.GET("/ws", h.Websocket.Serve)
	}

	return r
}
