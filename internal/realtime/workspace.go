package realtime

import (
	"context"
	"sync"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/metrics"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"go.uber.org/zap"
)

type UpdateKind string

const (
	UpdateConversations UpdateKind = "conversations"
	UpdateMessages      UpdateKind = "messages"
	UpdateParticipants  UpdateKind = "participants"
	UpdateActivity      UpdateKind = "activity"
)

// Update уходит тому, кто отрисовывает рабочее пространство.
type Update struct {
	Kind           UpdateKind           `json:"kind"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Conversations  []model.Conversation `json:"conversations,omitempty"`
	Messages       []model.Message      `json:"messages,omitempty"`
	Participants   []model.Participant  `json:"participants,omitempty"`
	Message        *model.Message       `json:"message,omitempty"`
}

// Workspace живое представление актора: список разговоров, сообщения и
// участники открытого разговора и подписки, которые их питают.
type Workspace struct {
	actor   model.Actor
	backend Backend
	log     *zap.Logger

	Sessions *SessionStore
	Messages *MessageStore
	Presence *PresenceTracker

	subs    *SubscriptionManager
	updates *Bus[Update]

	mu     sync.Mutex
	focus  *model.Conversation
	opened bool
	closed bool
}

func NewWorkspace(actor model.Actor, backend Backend, feed Feed, log *zap.Logger) *Workspace {
	log = log.With(zap.String("actor", actor.ID), zap.String("role", string(actor.Role)))
	return &Workspace{
		actor:    actor,
		backend:  backend,
		log:      log,
		Sessions: NewSessionStore(backend, actor, log),
		Messages: NewMessageStore(backend, log),
		Presence: NewPresenceTracker(log),
		subs:     NewSubscriptionManager(feed, log),
		updates:  NewBus[Update](),
	}
}

func (w *Workspace) Actor() model.Actor                  { return w.actor }
func (w *Workspace) Updates() *Bus[Update]               { return w.updates }
func (w *Workspace) Subscriptions() *SubscriptionManager { return w.subs }

// Open загружает список разговоров и открывает глобальные подписки актора.
// Ошибки подписки только логируются, восстановление через Refresh
// или смену фокуса.
func (w *Workspace) Open(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errs.ErrSessionExpired
	}
	first := !w.opened
	w.opened = true
	w.mu.Unlock()
	if first {
		metrics.OpenWorkspaces.Inc()
	}

	w.Sessions.beginReload()
	w.subscribeGlobal(ctx)
	w.publish(Update{Kind: UpdateConversations, Conversations: w.Sessions.finishReload(ctx)})
	return nil
}

func (w *Workspace) subscribeGlobal(ctx context.Context) {
	var filter Filter
	if w.actor.Scoped() {
		filter = RestaurantFilter(w.actor.RestaurantID)
	}
	for _, t := range []Topic{AllSessions(), AllTickets()} {
		_, _ = w.subs.Subscribe(ctx, t, filter, w.onConversationEvent)
	}
	if w.actor.Role == model.RoleSuperAdmin {
		_, _ = w.subs.Subscribe(ctx, AllMessages(), nil, w.onActivity)
	}
}

// Focus переключает рабочее пространство на разговор id: подписки фокуса
// пересоздаются, сообщения и участники загружаются заново.
func (w *Workspace) Focus(ctx context.Context, id string) error {
	conv, ok := w.Sessions.Get(id)
	if !ok {
		return errs.ErrConversationNotFound
	}
	if !w.actor.CanSee(&conv) {
		return errs.ErrForbidden
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errs.ErrSessionExpired
	}
	w.focus = &conv
	w.mu.Unlock()

	w.subs.CloseScoped()
	w.Messages.Reset(id)
	w.Presence.beginReload()

	_, _ = w.subs.Subscribe(ctx, MessagesFor(conv.Kind, id), nil, w.onMessageEvent)
	_, _ = w.subs.Subscribe(ctx, ParticipantsFor(id), nil, w.onParticipantEvent)

	msgs := w.Messages.Load(ctx, id)
	parts, err := w.backend.ListParticipants(ctx, id)
	parts = w.Presence.finishReload(orEmpty(w.log, "list participants", parts, err))

	w.publish(Update{Kind: UpdateMessages, ConversationID: id, Messages: msgs})
	w.publish(Update{Kind: UpdateParticipants, ConversationID: id, Participants: parts})
	return nil
}

// Blur снимает фокус и его подписки.
func (w *Workspace) Blur() {
	w.mu.Lock()
	w.focus = nil
	w.mu.Unlock()
	w.subs.CloseScoped()
	w.Messages.Clear()
	w.Presence.Reset(nil)
}

// Focused возвращает id открытого разговора или "".
func (w *Workspace) Focused() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.focus == nil {
		return ""
	}
	return w.focus.ID
}

// Send пишет text в открытый разговор от имени актора. При ошибке
// *SendError возвращает текст обратно.
func (w *Workspace) Send(ctx context.Context, text string) (model.Message, error) {
	id := w.Focused()
	if id == "" {
		return model.Message{}, &SendError{Text: text, Err: errs.ErrConversationNotFound}
	}
	return w.Messages.Send(ctx, id, w.actor.Role.SenderType(), w.actor.ID, w.actor.Name, text)
}

// Assign назначает разговор на актора рабочего пространства.
func (w *Workspace) Assign(ctx context.Context, id string) error {
	if w.actor.Role == model.RoleRestaurantManager {
		return errs.ErrForbidden
	}
	return w.Sessions.Assign(ctx, id, w.actor.Name, w.actor.ID)
}

func (w *Workspace) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, assignee *model.Assignee) error {
	if conv, ok := w.Sessions.Get(id); ok && !w.actor.CanSee(&conv) {
		return errs.ErrForbidden
	}
	return w.Sessions.UpdateStatus(ctx, id, status, assignee)
}

func (w *Workspace) Create(ctx context.Context, c model.Conversation) (model.Conversation, error) {
	return w.Sessions.Create(ctx, c)
}

// Refresh перечитывает список, пересоздаёт глобальные подписки и
// перезагружает открытый разговор.
func (w *Workspace) Refresh(ctx context.Context) error {
	if err := w.Open(ctx); err != nil {
		return err
	}
	if id := w.Focused(); id != "" {
		return w.Focus(ctx, id)
	}
	return nil
}

// Close закрывает все подписки. События, пришедшие во время Close, теряются.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	opened := w.opened
	w.focus = nil
	w.mu.Unlock()

	w.subs.CloseAll()
	if opened {
		metrics.OpenWorkspaces.Dec()
	}
}

func (w *Workspace) live() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed
}

func (w *Workspace) publish(u Update) {
	if !w.live() {
		return
	}
	w.updates.Publish(u)
}

func (w *Workspace) onConversationEvent(env Envelope) {
	if !w.live() {
		return
	}
	if w.Sessions.ApplyRemoteEvent(env) {
		w.publish(Update{Kind: UpdateConversations, Conversations: w.Sessions.Snapshot()})
	}
}

func (w *Workspace) onMessageEvent(env Envelope) {
	if !w.live() {
		return
	}
	if w.Messages.ApplyRemoteEvent(env) {
		w.publish(Update{Kind: UpdateMessages, ConversationID: w.Messages.Focus(), Messages: w.Messages.Messages()})
	}
}

func (w *Workspace) onParticipantEvent(env Envelope) {
	if !w.live() {
		return
	}
	if w.Presence.OnParticipantEvent(env) {
		w.publish(Update{Kind: UpdateParticipants, ConversationID: w.Focused(), Participants: w.Presence.Participants()})
	}
}

func (w *Workspace) onActivity(env Envelope) {
	if !w.live() || env.Type != EventInsert {
		return
	}
	ch, err := DecodeChange[model.Message](env)
	if err != nil || ch.New == nil {
		return
	}
	w.publish(Update{Kind: UpdateActivity, ConversationID: ch.New.ConversationID, Message: ch.New})
}
