package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableParticipants  = "participants"
)

// Envelope уведомление об изменении строки в том виде, как его несёт лента.
type Envelope struct {
	Table        string          `json:"table"`
	Type         EventType       `json:"eventType"`
	RestaurantID string          `json:"restaurant_id,omitempty"`
	New          json.RawMessage `json:"new,omitempty"`
	Old          json.RawMessage `json:"old,omitempty"`
	At           time.Time       `json:"commit_timestamp"`
}

// NewEnvelope кодирует изменение строки. Любая из строк может быть nil.
func NewEnvelope(table string, typ EventType, restaurantID string, newRow, oldRow any) (Envelope, error) {
	env := Envelope{Table: table, Type: typ, RestaurantID: restaurantID, At: time.Now().UTC()}
	var err error
	if newRow != nil {
		if env.New, err = json.Marshal(newRow); err != nil {
			return Envelope{}, fmt.Errorf("encode new row: %w", err)
		}
	}
	if oldRow != nil {
		if env.Old, err = json.Marshal(oldRow); err != nil {
			return Envelope{}, fmt.Errorf("encode old row: %w", err)
		}
	}
	return env, nil
}

// Change событие, раскодированное в значения строк.
type Change[T any] struct {
	Type EventType
	New  *T
	Old  *T
}

// DecodeChange раскодирует строки из env в T.
func DecodeChange[T any](env Envelope) (Change[T], error) {
	ch := Change[T]{Type: env.Type}
	if len(env.New) > 0 && string(env.New) != "null" {
		ch.New = new(T)
		if err := json.Unmarshal(env.New, ch.New); err != nil {
			return ch, fmt.Errorf("decode new row: %w", err)
		}
	}
	if len(env.Old) > 0 && string(env.Old) != "null" {
		ch.Old = new(T)
		if err := json.Unmarshal(env.Old, ch.Old); err != nil {
			return ch, fmt.Errorf("decode old row: %w", err)
		}
	}
	return ch, nil
}

// Row возвращает New для вставок и обновлений, а для удалений ту строку, что есть.
func (c Change[T]) Row() *T {
	if c.New != nil {
		return c.New
	}
	return c.Old
}
