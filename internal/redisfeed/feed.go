// Package redisfeed передаёт события ленты изменений через Redis pub/sub,
// чтобы рабочие пространства на всех узлах видели записи с любого узла.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"go.uber.org/zap"
)

const channelPrefix = "support-chat:feed:"

var ErrStreamClosed = errors.New("redisfeed: stream closed")

// ChannelName возвращает канал Redis для топика.
func ChannelName(topic realtime.Topic) string {
	return channelPrefix + topic.Key()
}

// NewClient разбирает URL redis:// и пингует сервер.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisfeed: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisfeed: ping: %w", err)
	}
	return rdb, nil
}

// Feed реализует realtime.Feed и realtime.Publisher.
type Feed struct {
	rdb *redis.Client
	log *zap.Logger
}

var (
	_ realtime.Feed      = (*Feed)(nil)
	_ realtime.Publisher = (*Feed)(nil)
)

func New(rdb *redis.Client, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{rdb: rdb, log: log}
}

func (f *Feed) Publish(ctx context.Context, topic realtime.Topic, env realtime.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redisfeed: encode: %w", err)
	}
	return f.rdb.Publish(ctx, ChannelName(topic), body).Err()
}

// Subscribe возвращается только после подтверждения подписки от Redis.
// События доставляются из отдельной горутины в порядке прихода.
func (f *Feed) Subscribe(ctx context.Context, topic realtime.Topic, deliver func(realtime.Envelope), fail func(error)) (realtime.Channel, error) {
	name := ChannelName(topic)
	ps := f.rdb.Subscribe(ctx, name)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisfeed: subscribe %s: %w", name, err)
	}
	ch := &channel{ps: ps, done: make(chan struct{})}
	go ch.run(f.log.With(zap.String("channel", name)), deliver, fail)
	return ch, nil
}

type channel struct {
	ps     *redis.PubSub
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func (c *channel) run(log *zap.Logger, deliver func(realtime.Envelope), fail func(error)) {
	defer close(c.done)
	for msg := range c.ps.Channel() {
		env, err := decode(msg.Payload)
		if err != nil {
			log.Warn("redisfeed: drop malformed event", zap.Error(err))
			continue
		}
		deliver(env)
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed && fail != nil {
		fail(ErrStreamClosed)
	}
}

func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.ps.Close()
}

func decode(payload string) (realtime.Envelope, error) {
	var env realtime.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return env, err
	}
	if env.Table == "" || env.Type == "" {
		return env, errors.New("envelope without table or type")
	}
	return env, nil
}
