package service

import (
	"context"
	"errors"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"gorm.io/gorm"
)

// ConversationServicer то, что нужно HTTP-обработчикам от разговоров.
type ConversationServicer interface {
	List(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, int64, error)
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, c *model.Conversation) error
	UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, assignee *model.Assignee) (*model.Conversation, error)
	Assign(ctx context.Context, id, agentName, agentID string) (*model.Conversation, error)
}

type ConversationService struct {
	db     *gorm.DB
	notify *notifier
	strict bool
}

func (s *ConversationService) List(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, int64, error) {
	var items []model.Conversation
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Conversation{})
	if filter.Kind != "" {
		tx = tx.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.RestaurantID != "" {
		tx = tx.Where("restaurant_id = ?", filter.RestaurantID)
	}
	if filter.AssignedAgentID != "" {
		tx = tx.Where("assigned_agent_id = ?", filter.AssignedAgentID)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	// Sessions by last activity, tickets by creation.
	order := "CASE WHEN kind = 'session' THEN COALESCE(last_message_at, created_at) ELSE created_at END DESC"
	if err := tx.Order(order).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListConversations выборка без страниц для рабочих пространств.
func (s *ConversationService) ListConversations(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, error) {
	items, _, err := s.List(ctx, filter)
	return items, err
}

func (s *ConversationService) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *ConversationService) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if err := realtime.ValidateNew(c); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return err
	}
	s.notify.conversation(ctx, realtime.EventInsert, c, nil)
	return nil
}

// UpdateStatus записывает новый статус и, если передан, агента. Принимается
// любой допустимый статус, если не включены строгие переходы.
func (s *ConversationService) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, assignee *model.Assignee) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, errs.ErrInvalidStatus
	}
	return s.update(ctx, id, func(cur *model.Conversation) (map[string]interface{}, error) {
		if err := model.CheckTransition(cur.Status, status, s.strict); err != nil {
			return nil, err
		}
		changes := map[string]interface{}{"status": status}
		if assignee != nil {
			changes["assigned_agent_name"] = assignee.Name
			changes["assigned_agent_id"] = assignee.ID
		}
		return changes, nil
	})
}

// Assign назначает агента поверх прежнего и переводит разговор
// в рабочий статус.
func (s *ConversationService) Assign(ctx context.Context, id, agentName, agentID string) (*model.Conversation, error) {
	if agentID == "" {
		return nil, errs.Field("agent_id")
	}
	return s.update(ctx, id, func(cur *model.Conversation) (map[string]interface{}, error) {
		engaged := cur.Kind.EngagedStatus()
		if err := model.CheckTransition(cur.Status, engaged, s.strict); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"assigned_agent_name": agentName,
			"assigned_agent_id":   agentID,
			"status":              engaged,
		}, nil
	})
}

// update читает строку, берёт у change колонки для записи, применяет их
// и возвращает результат.
func (s *ConversationService) update(ctx context.Context, id string, change func(*model.Conversation) (map[string]interface{}, error)) (*model.Conversation, error) {
	var before, after model.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrConversationNotFound
			}
			return err
		}
		changes, err := change(&before)
		if err != nil {
			return err
		}
		if err := tx.Model(&model.Conversation{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return err
		}
		return tx.First(&after, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	s.notify.conversation(ctx, realtime.EventUpdate, &after, &before)
	return &after, nil
}
