package realtime

import (
	"context"
	"errors"
	"sync"
)

var ErrBrokerClosed = errors.New("realtime: broker closed")

// Broker лента изменений внутри процесса для одного узла и тестов.
// Publish синхронно доставляет событие во все открытые каналы топика.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*brokerChannel]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[*brokerChannel]struct{})}
}

type brokerChannel struct {
	b       *Broker
	key     string
	deliver func(Envelope)
	fail    func(error)
	once    sync.Once
}

func (c *brokerChannel) Close() error {
	c.once.Do(func() {
		c.b.mu.Lock()
		defer c.b.mu.Unlock()
		if set, ok := c.b.topics[c.key]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(c.b.topics, c.key)
			}
		}
	})
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic Topic, deliver func(Envelope), fail func(error)) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	ch := &brokerChannel{b: b, key: topic.Key(), deliver: deliver, fail: fail}
	set, ok := b.topics[ch.key]
	if !ok {
		set = make(map[*brokerChannel]struct{})
		b.topics[ch.key] = set
	}
	set[ch] = struct{}{}
	return ch, nil
}

func (b *Broker) Publish(ctx context.Context, topic Topic, env Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	targets := make([]*brokerChannel, 0, len(b.topics[topic.Key()]))
	for ch := range b.topics[topic.Key()] {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		ch.deliver(env)
	}
	return nil
}

// Channels возвращает число открытых каналов топика.
func (b *Broker) Channels(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic.Key()])
}

// Close обрывает все открытые каналы, дальше брокер не принимает вызовы.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var broken []*brokerChannel
	for _, set := range b.topics {
		for ch := range set {
			broken = append(broken, ch)
		}
	}
	b.topics = make(map[string]map[*brokerChannel]struct{})
	b.mu.Unlock()

	for _, ch := range broken {
		if ch.fail != nil {
			ch.fail(ErrBrokerClosed)
		}
	}
	return nil
}
