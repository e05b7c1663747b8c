package service

import (
	"context"
	"errors"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"gorm.io/gorm"
)

type ParticipantServicer interface {
	ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error)
	Join(ctx context.Context, conversationID string, actor model.Actor) (*model.Participant, error)
	SetPresence(ctx context.Context, conversationID, userID string, online bool) (*model.Participant, error)
	Leave(ctx context.Context, conversationID, userID string) error
}

type ParticipantService struct {
	db     *gorm.DB
	notify *notifier
}

func (s *ParticipantService) ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	var items []model.Participant
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC").
		Find(&items).Error
	return items, err
}

// Join добавляет актора в разговор и отмечает его онлайн. Повторный Join
// обновляет существующую строку.
func (s *ParticipantService) Join(ctx context.Context, conversationID string, actor model.Actor) (*model.Participant, error) {
	if actor.ID == "" {
		return nil, errs.Field("user_id")
	}
	var conv model.Conversation
	if err := s.db.WithContext(ctx).Select("id").First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrConversationNotFound
		}
		return nil, err
	}
	now := time.Now().UTC()
	p := &model.Participant{
		ConversationID: conversationID,
		UserID:         actor.ID,
		UserType:       actor.Role,
		UserName:       actor.Name,
		IsOnline:       true,
		LastSeenAt:     now,
		JoinedAt:       now,
	}
	err := s.db.WithContext(ctx).Create(p).Error
	if err == nil {
		s.notify.participant(ctx, realtime.EventInsert, p)
		return p, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}
	return s.SetPresence(ctx, conversationID, actor.ID, true)
}

// SetPresence меняет флаг онлайн и проставляет last_seen_at.
func (s *ParticipantService) SetPresence(ctx context.Context, conversationID, userID string, online bool) (*model.Participant, error) {
	var p model.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, "conversation_id = ? AND user_id = ?", conversationID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrParticipantNotFound
			}
			return err
		}
		p.IsOnline = online
		p.LastSeenAt = time.Now().UTC()
		return tx.Model(&p).Updates(map[string]interface{}{"is_online": online, "last_seen_at": p.LastSeenAt}).Error
	})
	if err != nil {
		return nil, err
	}
	s.notify.participant(ctx, realtime.EventUpdate, &p)
	return &p, nil
}

// Leave удаляет строку участника. В ленту уходит DELETE со старой строкой.
func (s *ParticipantService) Leave(ctx context.Context, conversationID, userID string) error {
	var p model.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, "conversation_id = ? AND user_id = ?", conversationID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrParticipantNotFound
			}
			return err
		}
		return tx.Delete(&p).Error
	})
	if err != nil {
		return err
	}
	s.notify.participant(ctx, realtime.EventDelete, &p)
	return nil
}
