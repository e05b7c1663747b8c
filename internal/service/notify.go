package service

import (
	"context"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/kafka"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"github.com/psds-microservice/support-chat-service/internal/searchindex"
	"go.uber.org/zap"
)

// notifier рассылает зафиксированные изменения в ленту для живых рабочих
// пространств, в Kafka для внешних потребителей и в поисковый индекс.
type notifier struct {
	feed   realtime.Publisher
	events kafka.EventProducer
	search *searchindex.Client
	log    *zap.Logger
}

func (n *notifier) publish(ctx context.Context, topic realtime.Topic, table string, typ realtime.EventType, restaurantID string, newRow, oldRow any) {
	if n.feed == nil {
		return
	}
	env, err := realtime.NewEnvelope(table, typ, restaurantID, newRow, oldRow)
	if err != nil {
		n.log.Error("service: encode change", zap.String("table", table), zap.Error(err))
		return
	}
	if err := n.feed.Publish(ctx, topic, env); err != nil {
		n.log.Warn("service: publish change", zap.String("topic", topic.Key()), zap.Error(err))
	}
}

func (n *notifier) conversation(ctx context.Context, typ realtime.EventType, c, old *model.Conversation) {
	var oldRow any
	if old != nil {
		oldRow = old
	}
	n.publish(ctx, realtime.ConversationsTopic(c.Kind), realtime.TableConversations, typ, c.RestaurantID, c, oldRow)

	event := "conversation.updated"
	if typ == realtime.EventInsert {
		event = "conversation.created"
	}
	n.produce(event, c.ID, ConversationEventPayload(c))
	if n.search != nil {
		n.search.IndexConversationAsync(c)
	}
}

// message публикует сообщение в ленту открытого разговора и в общую ленту,
// а затем сам разговор: у него сдвинулись last_message_at и updated_at,
// и списки сессий должны пересортироваться без перезагрузки.
func (n *notifier) message(ctx context.Context, conv *model.Conversation, m *model.Message) {
	n.publish(ctx, realtime.MessagesFor(conv.Kind, conv.ID), realtime.TableMessages, realtime.EventInsert, conv.RestaurantID, m, nil)
	n.publish(ctx, realtime.AllMessages(), realtime.TableMessages, realtime.EventInsert, conv.RestaurantID, m, nil)
	n.publish(ctx, realtime.ConversationsTopic(conv.Kind), realtime.TableConversations, realtime.EventUpdate, conv.RestaurantID, conv, nil)
	n.produce("message.sent", conv.ID, map[string]interface{}{
		"message_id":      m.ID,
		"conversation_id": m.ConversationID,
		"restaurant_id":   conv.RestaurantID,
		"sender_type":     string(m.SenderType),
		"sender_id":       m.SenderID,
		"message_type":    string(m.MessageType),
	})
}

func (n *notifier) participant(ctx context.Context, typ realtime.EventType, p *model.Participant) {
	if typ == realtime.EventDelete {
		n.publish(ctx, realtime.ParticipantsFor(p.ConversationID), realtime.TableParticipants, typ, "", nil, p)
		return
	}
	n.publish(ctx, realtime.ParticipantsFor(p.ConversationID), realtime.TableParticipants, typ, "", p, nil)
}

// produce не ждёт брокера: событие уходит даже после отмены запроса,
// со своим таймаутом.
func (n *notifier) produce(event, key string, payload map[string]interface{}) {
	if n.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.events.ProduceEvent(ctx, event, key, payload)
	}()
}

// ConversationEventPayload собирает тело события conversation.* для Kafka.
// Используется и сервисом, и командой reindex-search.
func ConversationEventPayload(c *model.Conversation) map[string]interface{} {
	return map[string]interface{}{
		"conversation_id":   c.ID,
		"kind":              string(c.Kind),
		"restaurant_id":     c.RestaurantID,
		"title":             c.Title,
		"category":          c.Category,
		"priority":          string(c.Priority),
		"status":            string(c.Status),
		"assigned_agent_id": c.AssignedAgentID,
	}
}
