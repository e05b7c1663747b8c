package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"go.uber.org/zap"
)

type StatsHandler struct {
	svc service.StatsServicer
	log *zap.Logger
}

func NewStatsHandler(svc service.StatsServicer, log *zap.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, log: log}
}

func (h *StatsHandler) StatusCounts(c *gin.Context) {
	kind := model.ConversationKind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		writeError(c, h.log, errs.ErrInvalidKind)
		return
	}
	rows, err := h.svc.CountsByStatus(c.Request.Context(), mustActor(c), kind)
	c.JSON(http.StatusOK, gin.H{"kind": kind, "counts": orEmpty(c, h.log, "status counts", rows, err)})
}

func (h *StatsHandler) System(c *gin.Context) {
	st, err := h.svc.SystemStats(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
