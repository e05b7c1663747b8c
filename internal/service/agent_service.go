package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AgentServicer interface {
	Authenticate(ctx context.Context, email, password string) (*model.Agent, error)
}

type AgentService struct {
	db *gorm.DB
}

func NewAgentService(db *gorm.DB) *AgentService {
	return &AgentService{db: db}
}

// Authenticate сверяет пароль с bcrypt-хешем. Неизвестный email и неверный
// пароль одинаково дают ErrUnauthorized.
func (s *AgentService) Authenticate(ctx context.Context, email, password string) (*model.Agent, error) {
	var a model.Agent
	if err := s.db.WithContext(ctx).First(&a, "email = ?", normalizeEmail(email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, errs.ErrUnauthorized
	}
	if !a.IsActive {
		return nil, errs.ErrInactiveAgent
	}
	return &a, nil
}

// CheckActive сверяет флаг is_active по id. Удалённый агент даёт
// ErrUnauthorized, отключённый ErrInactiveAgent.
func (s *AgentService) CheckActive(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrUnauthorized
	}
	var a model.Agent
	if err := s.db.WithContext(ctx).Select("id", "is_active").First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrUnauthorized
		}
		return err
	}
	if !a.IsActive {
		return errs.ErrInactiveAgent
	}
	return nil
}

// Create сохраняет нового агента с bcrypt-хешем пароля.
func (s *AgentService) Create(ctx context.Context, a *model.Agent, password string) error {
	a.Email = normalizeEmail(a.Email)
	if a.Email == "" {
		return errs.Field("email")
	}
	if a.Name == "" {
		return errs.Field("name")
	}
	if password == "" {
		return errs.Field("password")
	}
	if !a.Role.Valid() {
		return errs.Field("role")
	}
	if a.Role == model.RoleRestaurantManager && a.RestaurantID == "" {
		return errs.Field("restaurant_id")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	a.IsActive = true
	return s.db.WithContext(ctx).Create(a).Error
}

// SetAccessContext привязывает агента к текущей транзакции, чтобы его видели
// RLS-политики и SQL-функции.
func SetAccessContext(tx *gorm.DB, actor model.Actor) error {
	return tx.Exec("SELECT set_agent_context(?, ?, ?)", actor.ID, string(actor.Role), actor.RestaurantID).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
