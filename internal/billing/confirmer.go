// Package billing подтверждает, что оплата подписки ресторана прошла.
// Вебхук оплаты пишет restaurant_subscriptions, а дашборд ждёт здесь,
// пока строка не станет активной.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/metrics"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubscriptionUpdated публикуется в шину после подтверждения подписки.
type SubscriptionUpdated struct {
	RestaurantID string                   `json:"restaurant_id"`
	Plan         string                   `json:"plan"`
	Status       model.SubscriptionStatus `json:"status"`
	ConfirmedAt  time.Time                `json:"confirmed_at"`
}

// StatusChecker читает текущую строку подписки.
type StatusChecker interface {
	Subscription(ctx context.Context, restaurantID string) (*model.RestaurantSubscription, error)
}

// Policy ограничивает опрос.
type Policy struct {
	MaxAttempts uint64
	Interval    time.Duration
	Exponential bool
}

func (p Policy) backoff() retry.Backoff {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	var b retry.Backoff
	if p.Exponential {
		b = retry.NewExponential(interval)
		b = retry.WithCappedDuration(30*time.Second, b)
	} else {
		b = retry.NewConstant(interval)
	}
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	// WithMaxRetries считает повторы после первой попытки.
	return retry.WithMaxRetries(attempts-1, b)
}

type Confirmer struct {
	checker StatusChecker
	policy  Policy
	bus     *realtime.Bus[SubscriptionUpdated]
	log     *zap.Logger
	now     func() time.Time
}

func NewConfirmer(checker StatusChecker, policy Policy, bus *realtime.Bus[SubscriptionUpdated], log *zap.Logger) *Confirmer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Confirmer{checker: checker, policy: policy, bus: bus, log: log, now: time.Now}
}

// Confirm опрашивает статус, пока подписка не станет активной, не кончатся
// попытки или не завершится ctx. Возвращает errs.ErrNotConfirmed, если подписка
// так и не активировалась, и ctx.Err() при отмене. Ошибки чтения повторяются.
func (c *Confirmer) Confirm(ctx context.Context, restaurantID string) (*SubscriptionUpdated, error) {
	if restaurantID == "" {
		return nil, errs.Field("restaurant_id")
	}
	var confirmed *model.RestaurantSubscription
	attempt := 0
	err := retry.Do(ctx, c.policy.backoff(), func(ctx context.Context) error {
		attempt++
		sub, err := c.checker.Subscription(ctx, restaurantID)
		if err != nil {
			c.log.Warn("billing: read subscription", zap.String("restaurant_id", restaurantID), zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(errs.ErrNotConfirmed)
		}
		switch sub.Status {
		case model.SubscriptionActive:
			confirmed = sub
			return nil
		case model.SubscriptionCanceled:
			return fmt.Errorf("%w: subscription canceled", errs.ErrNotConfirmed)
		}
		return retry.RetryableError(errs.ErrNotConfirmed)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, errs.ErrNotConfirmed) {
			metrics.BillingConfirmations.WithLabelValues("canceled").Inc()
			return nil, ctxErr
		}
		metrics.BillingConfirmations.WithLabelValues("not_confirmed").Inc()
		c.log.Info("billing: subscription not confirmed", zap.String("restaurant_id", restaurantID), zap.Int("attempts", attempt))
		if errors.Is(err, errs.ErrNotConfirmed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrNotConfirmed, err)
	}

	ev := SubscriptionUpdated{
		RestaurantID: confirmed.RestaurantID,
		Plan:         confirmed.Plan,
		Status:       confirmed.Status,
		ConfirmedAt:  c.now().UTC(),
	}
	metrics.BillingConfirmations.WithLabelValues("confirmed").Inc()
	if c.bus != nil {
		c.bus.Publish(ev)
	}
	return &ev, nil
}

// GormStatusChecker читает restaurant_subscriptions. Нет строки, значит pending.
type GormStatusChecker struct {
	db *gorm.DB
}

func NewGormStatusChecker(db *gorm.DB) *GormStatusChecker {
	return &GormStatusChecker{db: db}
}

func (g *GormStatusChecker) Subscription(ctx context.Context, restaurantID string) (*model.RestaurantSubscription, error) {
	var sub model.RestaurantSubscription
	err := g.db.WithContext(ctx).First(&sub, "restaurant_id = ?", restaurantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.RestaurantSubscription{RestaurantID: restaurantID, Status: model.SubscriptionPending}, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
