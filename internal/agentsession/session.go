// Package agentsession выдаёт и восстанавливает сессии дашборда. Сессия это
// токен HS256 и серверная запись по id токена. Удаление записи
// отзывает токен раньше срока.
package agentsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
)

// DefaultTTL фиксированное время жизни сессии от входа.
const DefaultTTL = 24 * time.Hour

// Store хранит серверные записи сессий.
type Store interface {
	Save(ctx context.Context, id string, actor model.Actor, ttl time.Duration) error
	Load(ctx context.Context, id string) (model.Actor, error)
	Delete(ctx context.Context, id string) error
}

// Claims carried by a session token.
type Claims struct {
	Role         model.ActorRole `json:"role"`
	Name         string          `json:"name"`
	RestaurantID string          `json:"restaurant_id,omitempty"`
	jwt.RegisteredClaims
}

// Accounts проверяет, что агент за сессией всё ещё может работать.
// CheckActive возвращает errs.ErrInactiveAgent для отключённых агентов и
// errs.ErrUnauthorized для удалённых.
type Accounts interface {
	CheckActive(ctx context.Context, agentID string) error
}

// Session то, что Issue отдаёт клиенту.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Actor     model.Actor `json:"actor"`
}

type Manager struct {
	secret   []byte
	ttl      time.Duration
	store    Store
	accounts Accounts
	now      func() time.Time
}

func NewManager(secret string, ttl time.Duration, store Store) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: []byte(secret), ttl: ttl, store: store, now: time.Now}
}

// WithAccounts включает проверку активности агента при каждом Restore.
func (m *Manager) WithAccounts(accounts Accounts) *Manager {
	m.accounts = accounts
	return m
}

// Issue открывает сессию для actor. Срок фиксирован, продления нет.
func (m *Manager) Issue(ctx context.Context, actor model.Actor) (Session, error) {
	if actor.ID == "" || !actor.Role.Valid() {
		return Session{}, errs.ErrUnauthorized
	}
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		Role:         actor.Role,
		Name:         actor.Name,
		RestaurantID: actor.RestaurantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Session{}, fmt.Errorf("agentsession: sign: %w", err)
	}
	if err := m.store.Save(ctx, claims.ID, actor, m.ttl); err != nil {
		return Session{}, fmt.Errorf("agentsession: save: %w", err)
	}
	return Session{Token: token, ExpiresAt: exp, Actor: actor}, nil
}

// Restore проверяет token и возвращает актора, которому он выдан. Истёкшие,
// очищенные и неизвестные сессии дают errs.ErrSessionExpired, битые
// токены дают errs.ErrUnauthorized. Сессия отключённого после входа агента
// удаляется, и Restore возвращает errs.ErrInactiveAgent.
func (m *Manager) Restore(ctx context.Context, token string) (model.Actor, error) {
	claims, err := m.parse(token)
	if err != nil {
		return model.Actor{}, err
	}
	actor, err := m.store.Load(ctx, claims.ID)
	if err != nil {
		return model.Actor{}, err
	}
	if actor.ID != claims.Subject {
		return model.Actor{}, errs.ErrUnauthorized
	}
	if m.accounts != nil {
		if err := m.accounts.CheckActive(ctx, actor.ID); err != nil {
			if errors.Is(err, errs.ErrInactiveAgent) || errors.Is(err, errs.ErrUnauthorized) {
				_ = m.store.Delete(ctx, claims.ID)
			}
			return model.Actor{}, err
		}
	}
	return actor, nil
}

// Clear отзывает сессию токена. Очистка истёкшей или неизвестной
// сессии не ошибка.
func (m *Manager) Clear(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		if errors.Is(err, errs.ErrSessionExpired) {
			return nil
		}
		return err
	}
	return m.store.Delete(ctx, claims.ID)
}

func (m *Manager) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, errs.ErrUnauthorized
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errs.ErrUnauthorized
	}
	return claims, nil
}
