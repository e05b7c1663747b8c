package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-chat-service/internal/billing"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"go.uber.org/zap"
)

// Confirmer ждёт, пока подписка ресторана станет активной.
type Confirmer interface {
	Confirm(ctx context.Context, restaurantID string) (*billing.SubscriptionUpdated, error)
}

type BillingHandler struct {
	confirmer Confirmer
	timeout   time.Duration
	log       *zap.Logger
}

func NewBillingHandler(confirmer Confirmer, timeout time.Duration, log *zap.Logger) *BillingHandler {
	return &BillingHandler{confirmer: confirmer, timeout: timeout, log: log}
}

// Confirm ждёт активной подписки, пока не исчерпаны повторы.
func (h *BillingHandler) Confirm(c *gin.Context) {
	restaurantID := c.Param("restaurant_id")
	actor := mustActor(c)
	if actor.Scoped() && actor.RestaurantID != restaurantID {
		writeError(c, h.log, errs.ErrForbidden)
		return
	}
	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	ev, err := h.confirmer.Confirm(ctx, restaurantID)
	if err != nil {
		if ctx.Err() != nil && c.Request.Context().Err() == nil {
			writeError(c, h.log, errs.ErrNotConfirmed)
			return
		}
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}
