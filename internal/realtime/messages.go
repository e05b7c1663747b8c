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

// SendError возвращается, если сообщение не удалось записать. Text
// содержит неотправленный ввод, чтобы его можно было вернуть.
type SendError struct {
	Text string
	Err  error
}

func (e *SendError) Error() string { return "send message: " + e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }

// MessageStore хранит упорядоченные сообщения открытого разговора без дублей.
type MessageStore struct {
	backend MessageBackend
	log     *zap.Logger

	mu    sync.RWMutex
	focus string
	items []model.Message
	ids   map[string]struct{}
}

func NewMessageStore(backend MessageBackend, log *zap.Logger) *MessageStore {
	return &MessageStore{backend: backend, log: log, ids: make(map[string]struct{})}
}

// Reset переключает хранилище на conversationID и сбрасывает содержимое.
func (s *MessageStore) Reset(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focus = conversationID
	s.items = nil
	s.ids = make(map[string]struct{})
}

// Clear снимает фокус.
func (s *MessageStore) Clear() { s.Reset("") }

func (s *MessageStore) Focus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focus
}

// Load загружает сообщения разговора и возвращает их по возрастанию.
// При смене разговора хранилище сначала очищается. Сообщения, добавленные
// во время загрузки, сохраняются.
func (s *MessageStore) Load(ctx context.Context, conversationID string) []model.Message {
	s.mu.Lock()
	if s.focus != conversationID {
		s.focus = conversationID
		s.items = nil
		s.ids = make(map[string]struct{})
	}
	s.mu.Unlock()

	fetched, err := s.backend.ListMessages(ctx, conversationID)
	fetched = orEmpty(s.log, "list messages", fetched, err)

	s.mu.Lock()
	if s.focus == conversationID {
		for _, m := range fetched {
			s.insertLocked(m)
		}
		sortMessages(s.items)
	}
	s.mu.Unlock()
	return s.Messages()
}

// Append добавляет m, если сообщения с таким id ещё нет и m относится
// к открытому разговору. Возвращает true, если хранилище изменилось.
func (s *MessageStore) Append(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ConversationID != s.focus {
		return false
	}
	if !s.insertLocked(m) {
		return false
	}
	sortMessages(s.items)
	return true
}

// Send записывает сообщение. Сохранённая копия придёт через ленту.
func (s *MessageStore) Send(ctx context.Context, conversationID string, senderType model.SenderType, senderID, senderName, text string) (model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, &SendError{Text: text, Err: errs.ErrEmptyMessage}
	}
	m := model.Message{
		ConversationID: conversationID,
		SenderType:     senderType,
		SenderID:       senderID,
		SenderName:     senderName,
		Text:           text,
		MessageType:    model.MessageText,
	}
	if err := s.backend.SendMessage(ctx, &m); err != nil {
		return model.Message{}, &SendError{Text: text, Err: err}
	}
	return m, nil
}

// ApplyRemoteEvent применяет событие таблицы сообщений. Сообщения не меняются,
// но обновления и удаления всё равно учитываются.
func (s *MessageStore) ApplyRemoteEvent(env Envelope) bool {
	ch, err := DecodeChange[model.Message](env)
	if err != nil {
		s.log.Warn("realtime: bad message event", zap.Error(err))
		return false
	}
	row := ch.Row()
	if row == nil {
		return false
	}
	switch ch.Type {
	case EventInsert:
		return s.Append(*row)
	case EventUpdate:
		s.mu.Lock()
		defer s.mu.Unlock()
		if i := s.indexLocked(row.ID); i >= 0 {
			s.items[i] = *row
			sortMessages(s.items)
			return true
		}
	case EventDelete:
		s.mu.Lock()
		defer s.mu.Unlock()
		if i := s.indexLocked(row.ID); i >= 0 {
			s.items = append(s.items[:i], s.items[i+1:]...)
			delete(s.ids, row.ID)
			return true
		}
	}
	return false
}

func (s *MessageStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.items))
	copy(out, s.items)
	return out
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MessageStore) insertLocked(m model.Message) bool {
	if _, ok := s.ids[m.ID]; ok {
		return false
	}
	s.ids[m.ID] = struct{}{}
	s.items = append(s.items, m)
	return true
}

func (s *MessageStore) indexLocked(id string) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func sortMessages(items []model.Message) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Before(&items[j])
	})
}
