package realtime

import (
	"context"

	"github.com/psds-microservice/support-chat-service/internal/model"
	"go.uber.org/zap"
)

// ConversationBackend хранилище строк разговоров.
type ConversationBackend interface {
	ListConversations(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, error)
	CreateConversation(ctx context.Context, c *model.Conversation) error
	UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, assignee *model.Assignee) (*model.Conversation, error)
	Assign(ctx context.Context, id, agentName, agentID string) (*model.Conversation, error)
}

type MessageBackend interface {
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, m *model.Message) error
}

type ParticipantBackend interface {
	ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error)
}

// Backend всё, что читает и пишет Workspace.
type Backend interface {
	ConversationBackend
	MessageBackend
	ParticipantBackend
}

// orEmpty единая политика ошибок чтения: пишем в лог и считаем результат пустым.
func orEmpty[T any](log *zap.Logger, op string, items []T, err error) []T {
	if err != nil {
		log.Warn("realtime: "+op+" failed", zap.Error(err))
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}
