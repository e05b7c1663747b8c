package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-chat-service/internal/agentsession"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"go.uber.org/zap"
)

const (
	actorKey = "actor"
	tokenKey = "token"
)

// Sessions часть agentsession.Manager, нужная HTTP-слою.
type Sessions interface {
	Issue(ctx context.Context, actor model.Actor) (agentsession.Session, error)
	Restore(ctx context.Context, token string) (model.Actor, error)
	Clear(ctx context.Context, token string) error
}

// RequestLogger пишет одну строку лога на запрос.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if a, ok := actorFrom(c); ok {
			fields = append(fields, zap.String("actor", a.ID))
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("http: request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("http: request", fields...)
		default:
			log.Debug("http: request", fields...)
		}
	}
}

// RequireSession восстанавливает актора из "Authorization: Bearer <token>", а
// для websocket из параметра token. Истёкшая сессия очищается
// до ответа 401.
func RequireSession(sessions Sessions, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			writeError(c, log, errs.ErrUnauthorized)
			c.Abort()
			return
		}
		actor, err := sessions.Restore(c.Request.Context(), token)
		if err != nil {
			if clearErr := sessions.Clear(c.Request.Context(), token); clearErr != nil {
				log.Debug("http: clear session", zap.Error(clearErr))
			}
			writeError(c, log, err)
			c.Abort()
			return
		}
		c.Set(actorKey, actor)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// RequireRole отвечает 403, если у актора нет ни одной из ролей.
func RequireRole(log *zap.Logger, roles ...model.ActorRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			writeError(c, log, errs.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		writeError(c, log, errs.ErrForbidden)
		c.Abort()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		return ""
	}
	return c.Query("token")
}

func actorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}, false
	}
	a, ok := v.(model.Actor)
	return a, ok
}

// mustActor только для обработчиков за RequireSession.
func mustActor(c *gin.Context) model.Actor {
	a, _ := actorFrom(c)
	return a
}
