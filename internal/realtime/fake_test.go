package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
)

// fakeBackend is an in-memory row store that echoes writes through a Broker
// the way the real services do.
type fakeBackend struct {
	broker *Broker

	mu    sync.Mutex
	now   time.Time
	seq   int64
	convs map[string]*model.Conversation
	msgs  []model.Message
	parts []model.Participant

	listErr  error
	sendErr  error
	writeErr error

	// Run after the rows were read and before they are returned, the window
	// in which a concurrent write makes the fetched rows stale.
	afterListConversations func()
	afterListParticipants  func()
}

func newFakeBackend(b *Broker) *fakeBackend {
	return &fakeBackend{
		broker: b,
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		convs:  make(map[string]*model.Conversation),
	}
}

func (f *fakeBackend) tickLocked() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fakeBackend) publish(topic Topic, table string, typ EventType, restaurantID string, row any) {
	if f.broker == nil {
		return
	}
	env, err := NewEnvelope(table, typ, restaurantID, row, nil)
	if err != nil {
		panic(err)
	}
	_ = f.broker.Publish(context.Background(), topic, env)
}

func (f *fakeBackend) seedConversation(c model.Conversation) model.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = f.tickLocked()
	}
	c.UpdatedAt = c.CreatedAt
	f.convs[c.ID] = &c
	return c
}

func (f *fakeBackend) ListConversations(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, error) {
	f.mu.Lock()
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	var out []model.Conversation
	for _, c := range f.convs {
		if filter.RestaurantID != "" && c.RestaurantID != filter.RestaurantID {
			continue
		}
		out = append(out, *c)
	}
	hook := f.afterListConversations
	f.afterListConversations = nil
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, c *model.Conversation) error {
	f.mu.Lock()
	if f.writeErr != nil {
		f.mu.Unlock()
		return f.writeErr
	}
	if c.ID == "" {
		c.ID = fmt.Sprintf("c%d", len(f.convs)+1)
	}
	c.CreatedAt = f.tickLocked()
	c.UpdatedAt = c.CreatedAt
	row := *c
	f.convs[c.ID] = &row
	f.mu.Unlock()
	f.publish(ConversationsTopic(c.Kind), TableConversations, EventInsert, c.RestaurantID, row)
	return nil
}

func (f *fakeBackend) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, assignee *model.Assignee) (*model.Conversation, error) {
	f.mu.Lock()
	c, ok := f.convs[id]
	if !ok {
		f.mu.Unlock()
		return nil, errs.ErrConversationNotFound
	}
	if f.writeErr != nil {
		f.mu.Unlock()
		return nil, f.writeErr
	}
	c.Status = status
	if assignee != nil {
		c.AssignedAgentName, c.AssignedAgentID = assignee.Name, assignee.ID
	}
	c.UpdatedAt = f.tickLocked()
	row := *c
	f.mu.Unlock()
	f.publish(ConversationsTopic(row.Kind), TableConversations, EventUpdate, row.RestaurantID, row)
	return &row, nil
}

func (f *fakeBackend) Assign(ctx context.Context, id, agentName, agentID string) (*model.Conversation, error) {
	f.mu.Lock()
	c, ok := f.convs[id]
	if !ok {
		f.mu.Unlock()
		return nil, errs.ErrConversationNotFound
	}
	c.AssignedAgentName, c.AssignedAgentID = agentName, agentID
	c.Status = c.Kind.EngagedStatus()
	c.UpdatedAt = f.tickLocked()
	row := *c
	f.mu.Unlock()
	f.publish(ConversationsTopic(row.Kind), TableConversations, EventUpdate, row.RestaurantID, row)
	return &row, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Message
	// Newest first, so callers have to sort.
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].ConversationID == conversationID {
			out = append(out, f.msgs[i])
		}
	}
	return out, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	if f.sendErr != nil {
		f.mu.Unlock()
		return f.sendErr
	}
	c, ok := f.convs[m.ConversationID]
	if !ok {
		f.mu.Unlock()
		return errs.ErrConversationNotFound
	}
	f.seq++
	m.ID = fmt.Sprintf("m%d", f.seq)
	m.Seq = f.seq
	m.CreatedAt = f.tickLocked()
	f.msgs = append(f.msgs, *m)
	at := m.CreatedAt
	c.LastMessageAt = &at
	row, conv := *m, *c
	f.mu.Unlock()

	f.publish(MessagesFor(conv.Kind, conv.ID), TableMessages, EventInsert, conv.RestaurantID, row)
	f.publish(AllMessages(), TableMessages, EventInsert, conv.RestaurantID, row)
	f.publish(ConversationsTopic(conv.Kind), TableConversations, EventUpdate, conv.RestaurantID, conv)
	return nil
}

func (f *fakeBackend) ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	f.mu.Lock()
	var out []model.Participant
	for _, p := range f.parts {
		if p.ConversationID == conversationID {
			out = append(out, p)
		}
	}
	hook := f.afterListParticipants
	f.afterListParticipants = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *fakeBackend) setPresence(id string, online bool) {
	f.mu.Lock()
	var row model.Participant
	for i := range f.parts {
		if f.parts[i].ID == id {
			f.parts[i].IsOnline = online
			row = f.parts[i]
		}
	}
	f.mu.Unlock()
	f.publish(ParticipantsFor(row.ConversationID), TableParticipants, EventUpdate, "", row)
}

func (f *fakeBackend) leave(id string) {
	f.mu.Lock()
	var row model.Participant
	for i := range f.parts {
		if f.parts[i].ID == id {
			row = f.parts[i]
			f.parts = append(f.parts[:i], f.parts[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
	if f.broker == nil {
		return
	}
	env, err := NewEnvelope(TableParticipants, EventDelete, "", nil, row)
	if err != nil {
		panic(err)
	}
	_ = f.broker.Publish(context.Background(), ParticipantsFor(row.ConversationID), env)
}

func (f *fakeBackend) join(p model.Participant) {
	f.mu.Lock()
	f.parts = append(f.parts, p)
	f.mu.Unlock()
	f.publish(ParticipantsFor(p.ConversationID), TableParticipants, EventInsert, "", p)
}

func mustEnvelope(table string, typ EventType, row any) Envelope {
	env, err := NewEnvelope(table, typ, "", row, nil)
	if err != nil {
		panic(err)
	}
	return env
}
