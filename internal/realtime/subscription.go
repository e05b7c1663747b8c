package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/psds-microservice/support-chat-service/internal/metrics"
	"go.uber.org/zap"
)

// State of a subscription handle: Unsubscribed -> Connecting -> Active -> (Error | Unsubscribed).
type State int

const (
	StateUnsubscribed State = iota
	StateConnecting
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Filter отсеивает события до обработчика. nil пропускает всё.
type Filter func(Envelope) bool

// RestaurantFilter пропускает события одного ресторана.
func RestaurantFilter(restaurantID string) Filter {
	return func(env Envelope) bool {
		return env.RestaurantID == restaurantID
	}
}

// Handle одна подписка, которой владеет SubscriptionManager.
type Handle struct {
	topic Topic

	mu     sync.Mutex
	state  State
	ch     Channel
	err    error
	queued []Envelope
}

func (h *Handle) Topic() Topic { return h.topic }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err ошибка, из-за которой handle перешёл в StateError.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// SubscriptionManager держит ровно одну живую подписку на ключ топика. События
// доставляются хотя бы раз и без порядка, потребители убирают дубли и сортируют.
type SubscriptionManager struct {
	feed Feed
	log  *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

func NewSubscriptionManager(feed Feed, log *zap.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		feed:    feed,
		log:     log,
		handles: make(map[string]*Handle),
	}
}

// Subscribe открывает подписку на topic, сначала освобождая handle с тем же
// ключом. При ошибке возвращённый handle находится в StateError.
func (m *SubscriptionManager) Subscribe(ctx context.Context, topic Topic, filter Filter, onEvent func(Envelope)) (*Handle, error) {
	h := &Handle{topic: topic, state: StateConnecting}

	m.mu.Lock()
	prev := m.handles[topic.Key()]
	m.handles[topic.Key()] = h
	m.mu.Unlock()
	if prev != nil {
		m.release(prev)
	}

	dispatch := func(env Envelope) {
		if filter != nil && !filter(env) {
			return
		}
		metrics.FeedEvents.WithLabelValues(env.Table, string(env.Type)).Inc()
		onEvent(env)
	}
	// Транспорт может доставить событие до возврата из Subscribe: такие
	// события копятся на handle и отдаются после перехода в Active.
	deliver := func(env Envelope) {
		h.mu.Lock()
		switch h.state {
		case StateConnecting:
			h.queued = append(h.queued, env)
			h.mu.Unlock()
			return
		case StateActive:
			h.mu.Unlock()
			dispatch(env)
		default:
			h.mu.Unlock()
		}
	}
	fail := func(err error) {
		m.fail(h, err)
	}

	ch, err := m.feed.Subscribe(ctx, topic, deliver, fail)
	if err != nil {
		h.mu.Lock()
		if h.state == StateConnecting {
			h.state = StateError
			h.err = err
		}
		h.queued = nil
		h.mu.Unlock()
		metrics.SubscriptionErrors.WithLabelValues(string(topic.Kind)).Inc()
		m.log.Warn("realtime: subscribe failed", zap.String("topic", topic.Key()), zap.Error(err))
		return h, err
	}

	for {
		h.mu.Lock()
		if h.state != StateConnecting {
			// Released while connecting.
			h.queued = nil
			h.mu.Unlock()
			m.closeChannel(topic, ch)
			return h, nil
		}
		pending := h.queued
		h.queued = nil
		if len(pending) == 0 {
			h.state = StateActive
			h.ch = ch
			h.mu.Unlock()
			break
		}
		h.mu.Unlock()
		for _, env := range pending {
			dispatch(env)
		}
	}
	metrics.ActiveSubscriptions.Inc()
	m.log.Debug("realtime: subscribed", zap.String("topic", topic.Key()))
	return h, nil
}

// Unsubscribe освобождает handle. Ошибки транспорта только логируются.
func (m *SubscriptionManager) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	if cur, ok := m.handles[h.topic.Key()]; ok && cur == h {
		delete(m.handles, h.topic.Key())
	}
	m.mu.Unlock()
	m.release(h)
}

// UnsubscribeTopic освобождает handle, открытый на topic.
func (m *SubscriptionManager) UnsubscribeTopic(topic Topic) {
	m.mu.Lock()
	h := m.handles[topic.Key()]
	delete(m.handles, topic.Key())
	m.mu.Unlock()
	if h != nil {
		m.release(h)
	}
}

// CloseScoped освобождает подписки фокуса, глобальные остаются.
func (m *SubscriptionManager) CloseScoped() {
	m.closeWhere(func(t Topic) bool { return !t.Global() })
}

// CloseAll освобождает все подписки.
func (m *SubscriptionManager) CloseAll() {
	m.closeWhere(func(Topic) bool { return true })
}

func (m *SubscriptionManager) closeWhere(match func(Topic) bool) {
	var victims []*Handle
	m.mu.Lock()
	for key, h := range m.handles {
		if match(h.topic) {
			victims = append(victims, h)
			delete(m.handles, key)
		}
	}
	m.mu.Unlock()
	for _, h := range victims {
		m.release(h)
	}
}

// Lookup возвращает текущий handle для topic.
func (m *SubscriptionManager) Lookup(topic Topic) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[topic.Key()]
	return h, ok
}

// Active считает handle в StateActive.
func (m *SubscriptionManager) Active() int {
	m.mu.Lock()
	hs := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		hs = append(hs, h)
	}
	m.mu.Unlock()
	n := 0
	for _, h := range hs {
		if h.State() == StateActive {
			n++
		}
	}
	return n
}

func (m *SubscriptionManager) release(h *Handle) {
	h.mu.Lock()
	prev := h.state
	ch := h.ch
	h.state = StateUnsubscribed
	h.ch = nil
	h.queued = nil
	h.mu.Unlock()

	if prev == StateActive {
		metrics.ActiveSubscriptions.Dec()
	}
	if ch != nil {
		m.closeChannel(h.topic, ch)
	}
}

func (m *SubscriptionManager) fail(h *Handle, err error) {
	h.mu.Lock()
	prev := h.state
	if prev != StateActive {
		h.mu.Unlock()
		return
	}
	h.state = StateError
	h.err = err
	h.mu.Unlock()

	metrics.ActiveSubscriptions.Dec()
	metrics.SubscriptionErrors.WithLabelValues(string(h.topic.Kind)).Inc()
	m.log.Warn("realtime: subscription broken", zap.String("topic", h.topic.Key()), zap.Error(err))
}

func (m *SubscriptionManager) closeChannel(topic Topic, ch Channel) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("realtime: channel close panicked", zap.String("topic", topic.Key()), zap.Any("panic", r))
		}
	}()
	if err := ch.Close(); err != nil {
		m.log.Warn("realtime: channel close failed", zap.String("topic", topic.Key()), zap.Error(err))
	}
}
