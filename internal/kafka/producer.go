package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventProducer отправляет события разговоров в Kafka. Сервисы зависят от интерфейса, тесты его подменяют.
type EventProducer interface {
	ProduceEvent(ctx context.Context, event, key string, payload map[string]interface{})
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer пишет события в один топик без гарантий и не блокирует API при ошибках.
type Producer struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

// NewProducer создаёт продюсер. Без брокеров или топика вызовы ничего не делают.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		topic: topic,
		log:   log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// ProduceEvent пишет {"event": event, ...payload}. key это id разговора, чтобы
// события одного разговора шли по порядку в одну партицию.
func (p *Producer) ProduceEvent(ctx context.Context, event, key string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	body, err := encodeEvent(event, payload)
	if err != nil {
		p.log.Error("kafka: marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: []kafka.Header{{Key: "event", Value: []byte(event)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("kafka: write event", zap.String("event", event), zap.String("key", key), zap.Error(err))
	}
}

func encodeEvent(event string, payload map[string]interface{}) ([]byte, error) {
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	return json.Marshal(msg)
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers разбивает "host1:9092,host2:9092" в слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
