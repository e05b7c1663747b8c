package realtime

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"go.uber.org/zap"
)

// SessionStore хранит разговоры, видимые одному актору, свежие первыми.
type SessionStore struct {
	backend ConversationBackend
	actor   model.Actor
	log     *zap.Logger

	mu      sync.RWMutex
	items   []model.Conversation
	pending reloadLog[model.Conversation]
}

func NewSessionStore(backend ConversationBackend, actor model.Actor, log *zap.Logger) *SessionStore {
	return &SessionStore{backend: backend, actor: actor, log: log}
}

// ListAll перечитывает видимые разговоры. Ошибка бэкенда даёт пустой список.
// События, пришедшие во время выборки, не теряются: см. finishReload.
func (s *SessionStore) ListAll(ctx context.Context) []model.Conversation {
	s.beginReload()
	return s.finishReload(ctx)
}

// beginReload начинает запись событий ленты. Вызывается до подписки, чтобы
// события между подпиской и выборкой тоже попали в журнал.
func (s *SessionStore) beginReload() {
	s.mu.Lock()
	s.pending.begin()
	s.mu.Unlock()
}

func (s *SessionStore) finishReload(ctx context.Context) []model.Conversation {
	filter := model.ConversationFilter{}
	if s.actor.Scoped() {
		filter.RestaurantID = s.actor.RestaurantID
	}
	items, err := s.backend.ListConversations(ctx, filter)
	items = orEmpty(s.log, "list conversations", items, err)

	s.mu.Lock()
	items = s.pending.merge(items, func(c *model.Conversation) string { return c.ID })
	s.pending.end()
	sortConversations(items)
	s.items = items
	s.mu.Unlock()
	return s.Snapshot()
}

// Create проверяет и записывает новый разговор. В список строка попадает
// через ленту изменений, а не через этот вызов.
func (s *SessionStore) Create(ctx context.Context, c model.Conversation) (model.Conversation, error) {
	if s.actor.Scoped() {
		c.RestaurantID = s.actor.RestaurantID
	}
	if c.CreatedBy == "" {
		c.CreatedBy = s.actor.ID
	}
	if err := ValidateNew(&c); err != nil {
		return model.Conversation{}, err
	}
	if err := s.backend.CreateConversation(ctx, &c); err != nil {
		return model.Conversation{}, err
	}
	return c, nil
}

// ValidateNew заполняет значения по умолчанию и проверяет обязательные поля
// нового разговора.
func ValidateNew(c *model.Conversation) error {
	c.Title = strings.TrimSpace(c.Title)
	switch {
	case c.RestaurantID == "":
		return errs.Field("restaurant_id")
	case c.CreatedBy == "":
		return errs.Field("created_by")
	case c.Title == "":
		return errs.Field("title")
	}
	if c.Kind == "" {
		c.Kind = model.KindTicket
	}
	if !c.Kind.Valid() {
		return errs.ErrInvalidKind
	}
	if c.Priority == "" {
		c.Priority = model.PriorityMedium
	}
	if !c.Priority.Valid() {
		return errs.ErrInvalidPriority
	}
	if c.Status == "" {
		c.Status = model.StatusOpen
	}
	if !c.Status.Valid() {
		return errs.ErrInvalidStatus
	}
	c.AssignedAgentID = ""
	c.AssignedAgentName = ""
	return nil
}

func (s *SessionStore) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, assignee *model.Assignee) error {
	_, err := s.backend.UpdateStatus(ctx, id, status, assignee)
	return err
}

// Assign перезаписывает прежнее назначение и переводит разговор в рабочий статус.
func (s *SessionStore) Assign(ctx context.Context, id, agentName, agentID string) error {
	_, err := s.backend.Assign(ctx, id, agentName, agentID)
	return err
}

// ApplyRemoteEvent применяет одно событие ленты. Вставки дедуплицируются по id
// и пересортировывают список, обновления заменяют строку на месте без
// пересортировки. Возвращает true, если список изменился.
func (s *SessionStore) ApplyRemoteEvent(env Envelope) bool {
	ch, err := DecodeChange[model.Conversation](env)
	if err != nil {
		s.log.Warn("realtime: bad conversation event", zap.Error(err))
		return false
	}
	row := ch.Row()
	if row == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.record(row.ID, *row, ch.Type == EventDelete || !s.actor.CanSee(row))
	idx := s.indexLocked(row.ID)
	switch ch.Type {
	case EventInsert:
		if idx >= 0 || !s.actor.CanSee(row) {
			return false
		}
		s.items = append(s.items, *row)
		sortConversations(s.items)
		return true
	case EventUpdate:
		if idx < 0 {
			return false
		}
		if !s.actor.CanSee(row) {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return true
		}
		s.items[idx] = *row
		return true
	case EventDelete:
		if idx < 0 {
			return false
		}
		s.items = append(s.items[:idx], s.items[idx+1:]...)
		return true
	}
	return false
}

func (s *SessionStore) Get(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.items[idx], true
	}
	return model.Conversation{}, false
}

func (s *SessionStore) Snapshot() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Conversation, len(s.items))
	copy(out, s.items)
	return out
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *SessionStore) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func sortConversations(items []model.Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortTime().After(items[j].SortTime())
	})
}
