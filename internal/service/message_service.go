package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/metrics"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"gorm.io/gorm"
)

type MessageServicer interface {
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, m *model.Message) error
}

type MessageService struct {
	db     *gorm.DB
	notify *notifier
}

// ListMessages возвращает сообщения разговора, старые первыми.
func (s *MessageService) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var items []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, seq ASC").
		Find(&items).Error
	return items, err
}

// SendMessage сохраняет m и в той же транзакции сдвигает последнюю активность
// разговора. В m проставляются id, seq и время из базы.
func (s *MessageService) SendMessage(ctx context.Context, m *model.Message) error {
	m.Text = strings.TrimSpace(m.Text)
	if m.Text == "" {
		return errs.ErrEmptyMessage
	}
	if m.ConversationID == "" {
		return errs.Field("conversation_id")
	}
	if m.SenderID == "" {
		return errs.Field("sender_id")
	}
	if !m.SenderType.Valid() {
		return errs.Field("sender_type")
	}
	if m.MessageType == "" {
		m.MessageType = model.MessageText
	}
	m.HasAttachments = len(m.Attachments) > 0 && string(m.Attachments) != "null"

	var conv model.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&conv, "id = ?", m.ConversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrConversationNotFound
			}
			return err
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		at := m.CreatedAt
		conv.LastMessageAt = &at
		conv.UpdatedAt = at
		return tx.Model(&model.Conversation{}).Where("id = ?", conv.ID).
			Updates(map[string]interface{}{"last_message_at": at, "updated_at": at}).Error
	})
	if err != nil {
		return err
	}
	metrics.MessagesSent.WithLabelValues(string(m.SenderType)).Inc()
	s.notify.message(ctx, &conv, m)
	return nil
}
