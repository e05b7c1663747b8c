package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// memStore stands in for the gorm services. It satisfies the handler service
// interfaces and realtime.Backend, and echoes writes through a Broker.
type memStore struct {
	broker *realtime.Broker

	mu      sync.Mutex
	now     time.Time
	seq     int64
	convs   map[string]*model.Conversation
	msgs    []model.Message
	parts   []model.Participant
	sendErr error
	listErr error
}

var (
	_ service.ConversationServicer = (*memStore)(nil)
	_ service.MessageServicer      = (*memStore)(nil)
	_ service.ParticipantServicer  = (*memStore)(nil)
	_ service.AgentServicer        = (*fakeAgents)(nil)
	_ realtime.Backend             = (*memStore)(nil)
)

func newMemStore(b *realtime.Broker) *memStore {
	return &memStore{
		broker: b,
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		convs:  make(map[string]*model.Conversation),
	}
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *memStore) publish(topic realtime.Topic, table string, typ realtime.EventType, restaurantID string, row any) {
	if s.broker == nil {
		return
	}
	env, err := realtime.NewEnvelope(table, typ, restaurantID, row, nil)
	if err != nil {
		panic(err)
	}
	_ = s.broker.Publish(context.Background(), topic, env)
}

func (s *memStore) seed(c model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = s.tick()
	s.convs[c.ID] = &c
}

type fakeAgents struct {
	mu       sync.Mutex
	agents   map[string]model.Agent
	disabled map[string]bool
}

func (f *fakeAgents) disable(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled == nil {
		f.disabled = make(map[string]bool)
	}
	f.disabled[id] = true
}

func (f *fakeAgents) CheckActive(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled[id] {
		return errs.ErrInactiveAgent
	}
	return nil
}

func (f *fakeAgents) add(a model.Agent, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	a.PasswordHash = string(hash)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agents == nil {
		f.agents = make(map[string]model.Agent)
	}
	f.agents[a.Email] = a
}

func (f *fakeAgents) Authenticate(ctx context.Context, email, password string) (*model.Agent, error) {
	f.mu.Lock()
	a, ok := f.agents[email]
	f.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, errs.ErrUnauthorized
	}
	if !a.IsActive {
		return nil, errs.ErrInactiveAgent
	}
	return &a, nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, errs.ErrConversationNotFound
	}
	row := *c
	return &row, nil
}

func (s *memStore) List(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, int64, error) {
	s.mu.Lock()
	listErr := s.listErr
	s.mu.Unlock()
	if listErr != nil {
		return nil, 0, listErr
	}
	items, err := s.ListConversations(ctx, filter)
	return items, int64(len(items)), err
}

func (s *memStore) ListConversations(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Conversation
	for _, c := range s.convs {
		if filter.RestaurantID != "" && c.RestaurantID != filter.RestaurantID {
			continue
		}
		if filter.Kind != "" && c.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if err := realtime.ValidateNew(c); err != nil {
		return err
	}
	s.mu.Lock()
	c.ID = fmt.Sprintf("c%d", len(s.convs)+1)
	c.CreatedAt = s.tick()
	row := *c
	s.convs[c.ID] = &row
	s.mu.Unlock()
	s.publish(realtime.ConversationsTopic(row.Kind), realtime.TableConversations, realtime.EventInsert, row.RestaurantID, row)
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, assignee *model.Assignee) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, errs.ErrInvalidStatus
	}
	return s.update(id, func(c *model.Conversation) {
		c.Status = status
		if assignee != nil {
			c.AssignedAgentName, c.AssignedAgentID = assignee.Name, assignee.ID
		}
	})
}

func (s *memStore) Assign(ctx context.Context, id, agentName, agentID string) (*model.Conversation, error) {
	return s.update(id, func(c *model.Conversation) {
		c.AssignedAgentName, c.AssignedAgentID = agentName, agentID
		c.Status = c.Kind.EngagedStatus()
	})
}

func (s *memStore) update(id string, fn func(*model.Conversation)) (*model.Conversation, error) {
	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return nil, errs.ErrConversationNotFound
	}
	fn(c)
	c.UpdatedAt = s.tick()
	row := *c
	s.mu.Unlock()
	s.publish(realtime.ConversationsTopic(row.Kind), realtime.TableConversations, realtime.EventUpdate, row.RestaurantID, row)
	return &row, nil
}

func (s *memStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) SendMessage(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	if s.sendErr != nil {
		s.mu.Unlock()
		return s.sendErr
	}
	c, ok := s.convs[m.ConversationID]
	if !ok {
		s.mu.Unlock()
		return errs.ErrConversationNotFound
	}
	s.seq++
	m.ID = fmt.Sprintf("m%d", s.seq)
	m.Seq = s.seq
	m.CreatedAt = s.tick()
	s.msgs = append(s.msgs, *m)
	row, conv := *m, *c
	s.mu.Unlock()
	s.publish(realtime.MessagesFor(conv.Kind, conv.ID), realtime.TableMessages, realtime.EventInsert, conv.RestaurantID, row)
	s.publish(realtime.AllMessages(), realtime.TableMessages, realtime.EventInsert, conv.RestaurantID, row)
	return nil
}

func (s *memStore) ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Participant
	for _, p := range s.parts {
		if p.ConversationID == conversationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) Join(ctx context.Context, conversationID string, actor model.Actor) (*model.Participant, error) {
	s.mu.Lock()
	for i, p := range s.parts {
		if p.ConversationID == conversationID && p.UserID == actor.ID {
			s.parts[i].IsOnline = true
			row := s.parts[i]
			s.mu.Unlock()
			return &row, nil
		}
	}
	p := model.Participant{
		ID:             fmt.Sprintf("p%d", len(s.parts)+1),
		ConversationID: conversationID,
		UserID:         actor.ID,
		UserType:       actor.Role,
		UserName:       actor.Name,
		IsOnline:       true,
		JoinedAt:       s.tick(),
	}
	s.parts = append(s.parts, p)
	s.mu.Unlock()
	s.publish(realtime.ParticipantsFor(conversationID), realtime.TableParticipants, realtime.EventInsert, "", p)
	return &p, nil
}

func (s *memStore) SetPresence(ctx context.Context, conversationID, userID string, online bool) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.parts {
		if p.ConversationID == conversationID && p.UserID == userID {
			s.parts[i].IsOnline = online
			row := s.parts[i]
			return &row, nil
		}
	}
	return nil, errs.ErrParticipantNotFound
}

func (s *memStore) Leave(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	for i, p := range s.parts {
		if p.ConversationID == conversationID && p.UserID == userID {
			s.parts = append(s.parts[:i], s.parts[i+1:]...)
			s.mu.Unlock()
			if s.broker != nil {
				env, err := realtime.NewEnvelope(realtime.TableParticipants, realtime.EventDelete, "", nil, p)
				if err != nil {
					panic(err)
				}
				_ = s.broker.Publish(ctx, realtime.ParticipantsFor(conversationID), env)
			}
			return nil
		}
	}
	s.mu.Unlock()
	return errs.ErrParticipantNotFound
}

type fakeStats struct {
	gotActor model.Actor
	gotKind  model.ConversationKind
	err      error
}

func (f *fakeStats) CountsByStatus(ctx context.Context, actor model.Actor, kind model.ConversationKind) ([]service.StatusCount, error) {
	f.gotActor, f.gotKind = actor, kind
	if f.err != nil {
		return nil, f.err
	}
	return []service.StatusCount{{Status: model.StatusOpen, Total: 3}}, nil
}

func (f *fakeStats) SystemStats(ctx context.Context) (*service.SystemStats, error) {
	return &service.SystemStats{Conversations: 7, Open: 3}, nil
}
