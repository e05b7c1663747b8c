package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChecker returns statuses in order, repeating the last one.
type scriptedChecker struct {
	mu       sync.Mutex
	statuses []model.SubscriptionStatus
	errs     []error
	calls    int
}

func (s *scriptedChecker) Subscription(_ context.Context, restaurantID string) (*model.RestaurantSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return &model.RestaurantSubscription{RestaurantID: restaurantID, Plan: "pro", Status: s.statuses[i]}, nil
}

func fastPolicy(attempts uint64) Policy {
	return Policy{MaxAttempts: attempts, Interval: time.Millisecond}
}

func TestConfirmPublishesWhenActive(t *testing.T) {
	checker := &scriptedChecker{statuses: []model.SubscriptionStatus{
		model.SubscriptionPending, model.SubscriptionPending, model.SubscriptionActive,
	}}
	bus := realtime.NewBus[SubscriptionUpdated]()
	var got []SubscriptionUpdated
	bus.Subscribe(func(ev SubscriptionUpdated) { got = append(got, ev) })

	ev, err := NewConfirmer(checker, fastPolicy(5), bus, nil).Confirm(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", ev.RestaurantID)
	assert.Equal(t, 3, checker.calls)
	require.Len(t, got, 1)
	assert.Equal(t, model.SubscriptionActive, got[0].Status)
	assert.Equal(t, "pro", got[0].Plan)
}

func TestConfirmGivesUpAfterMaxAttempts(t *testing.T) {
	checker := &scriptedChecker{statuses: []model.SubscriptionStatus{model.SubscriptionPending}}
	bus := realtime.NewBus[SubscriptionUpdated]()
	published := 0
	bus.Subscribe(func(SubscriptionUpdated) { published++ })

	_, err := NewConfirmer(checker, fastPolicy(4), bus, nil).Confirm(context.Background(), "r1")
	assert.ErrorIs(t, err, errs.ErrNotConfirmed)
	assert.Equal(t, 4, checker.calls)
	assert.Zero(t, published)
}

func TestConfirmStopsOnCanceledSubscription(t *testing.T) {
	checker := &scriptedChecker{statuses: []model.SubscriptionStatus{model.SubscriptionCanceled}}
	_, err := NewConfirmer(checker, fastPolicy(10), nil, nil).Confirm(context.Background(), "r1")
	assert.ErrorIs(t, err, errs.ErrNotConfirmed)
	assert.Equal(t, 1, checker.calls)
}

func TestConfirmRetriesReadErrors(t *testing.T) {
	checker := &scriptedChecker{
		statuses: []model.SubscriptionStatus{model.SubscriptionActive},
		errs:     []error{errors.New("connection reset")},
	}
	_, err := NewConfirmer(checker, fastPolicy(3), nil, nil).Confirm(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, checker.calls)
}

func TestConfirmHonoursCancellation(t *testing.T) {
	checker := &scriptedChecker{statuses: []model.SubscriptionStatus{model.SubscriptionPending}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewConfirmer(checker, Policy{MaxAttempts: 100, Interval: time.Hour}, nil, nil).Confirm(ctx, "r1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfirmRequiresRestaurant(t *testing.T) {
	_, err := NewConfirmer(&scriptedChecker{}, fastPolicy(1), nil, nil).Confirm(context.Background(), "")
	assert.ErrorIs(t, err, errs.ErrMissingField)
}

func TestPolicyExponentialBackoff(t *testing.T) {
	b := Policy{MaxAttempts: 3, Interval: 10 * time.Millisecond, Exponential: true}.backoff()
	d1, stop := b.Next()
	require.False(t, stop)
	d2, stop := b.Next()
	require.False(t, stop)
	assert.Greater(t, d2, d1)
	_, stop = b.Next()
	assert.True(t, stop)
}
