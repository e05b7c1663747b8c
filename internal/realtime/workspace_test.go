package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWorkspace(t *testing.T, actor model.Actor) (*Workspace, *fakeBackend, *Broker) {
	t.Helper()
	broker := NewBroker()
	be := newFakeBackend(broker)
	ws := NewWorkspace(actor, be, broker, zap.NewNop())
	t.Cleanup(ws.Close)
	return ws, be, broker
}

func TestWorkspaceAssignAndSendScenario(t *testing.T) {
	ws, be, _ := newTestWorkspace(t, model.Actor{ID: "agentA", Name: "Sarah", Role: model.RoleSupportAgent})
	be.seedConversation(model.Conversation{ID: "S001", Kind: model.KindSession, RestaurantID: "r1", Status: model.StatusOpen})
	ctx := context.Background()

	require.NoError(t, ws.Open(ctx))
	require.NoError(t, ws.Focus(ctx, "S001"))

	require.NoError(t, ws.Assign(ctx, "S001"))
	conv, ok := ws.Sessions.Get("S001")
	require.True(t, ok)
	assert.Equal(t, model.StatusActive, conv.Status)
	assert.Equal(t, "Sarah", conv.AssignedAgentName)

	sent, err := ws.Send(ctx, "Hi, how can I help?")
	require.NoError(t, err)

	msgs := ws.Messages.Messages()
	require.Len(t, msgs, 1)
	last := msgs[len(msgs)-1]
	assert.Equal(t, sent.ID, last.ID)
	assert.Equal(t, "Hi, how can I help?", last.Text)
	assert.Equal(t, "Sarah", last.SenderName)
	assert.Equal(t, model.SenderSupportAgent, last.SenderType)
}

func TestWorkspaceFocusChangeReplacesSubscriptions(t *testing.T) {
	ws, be, broker := newTestWorkspace(t, agent)
	be.seedConversation(model.Conversation{ID: "c1", Kind: model.KindSession})
	be.seedConversation(model.Conversation{ID: "c2", Kind: model.KindTicket})
	ctx := context.Background()
	require.NoError(t, ws.Open(ctx))

	require.NoError(t, ws.Focus(ctx, "c1"))
	require.NoError(t, ws.Focus(ctx, "c1"))
	assert.Equal(t, 1, broker.Channels(MessagesFor(model.KindSession, "c1")))
	assert.Equal(t, 1, broker.Channels(ParticipantsFor("c1")))

	require.NoError(t, ws.Focus(ctx, "c2"))
	assert.Equal(t, 0, broker.Channels(MessagesFor(model.KindSession, "c1")))
	assert.Equal(t, 0, broker.Channels(ParticipantsFor("c1")))
	assert.Equal(t, 1, broker.Channels(MessagesFor(model.KindTicket, "c2")))
	assert.Equal(t, 1, broker.Channels(AllSessions()))
	assert.Equal(t, 1, broker.Channels(AllTickets()))

	// Messages for the old focus no longer land in the store.
	require.NoError(t, be.SendMessage(ctx, &model.Message{ConversationID: "c1", Text: "late"}))
	assert.Equal(t, 0, ws.Messages.Len())

	ws.Blur()
	assert.Equal(t, "", ws.Focused())
	assert.Equal(t, 0, broker.Channels(MessagesFor(model.KindTicket, "c2")))
	assert.Equal(t, 2, ws.Subscriptions().Active())
}

func TestWorkspaceFocusUnknown(t *testing.T) {
	ws, _, _ := newTestWorkspace(t, agent)
	require.NoError(t, ws.Open(context.Background()))
	assert.ErrorIs(t, ws.Focus(context.Background(), "missing"), errs.ErrConversationNotFound)
}

func TestWorkspacePublishesUpdates(t *testing.T) {
	ws, be, _ := newTestWorkspace(t, agent)
	be.seedConversation(model.Conversation{ID: "c1", Kind: model.KindSession})
	var kinds []UpdateKind
	ws.Updates().Subscribe(func(u Update) { kinds = append(kinds, u.Kind) })
	ctx := context.Background()

	require.NoError(t, ws.Open(ctx))
	require.NoError(t, ws.Focus(ctx, "c1"))
	be.join(model.Participant{ID: "p1", ConversationID: "c1", UserID: "u1", IsOnline: true})
	_, err := ws.Send(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, []UpdateKind{
		UpdateConversations,
		UpdateMessages, UpdateParticipants,
		UpdateParticipants,
		UpdateMessages, UpdateConversations,
	}, kinds)
	assert.True(t, ws.Presence.IsOnline("u1"))
}

func TestWorkspaceManagerSeesOnlyOwnRestaurant(t *testing.T) {
	manager := model.Actor{ID: "m1", Name: "Manager", Role: model.RoleRestaurantManager, RestaurantID: "r1"}
	ws, be, _ := newTestWorkspace(t, manager)
	ctx := context.Background()
	require.NoError(t, ws.Open(ctx))

	require.NoError(t, be.CreateConversation(ctx, &model.Conversation{Kind: model.KindTicket, RestaurantID: "r2", Title: "other"}))
	assert.Equal(t, 0, ws.Sessions.Len())

	created, err := ws.Create(ctx, model.Conversation{Kind: model.KindTicket, Title: "mine"})
	require.NoError(t, err)
	assert.Equal(t, 1, ws.Sessions.Len())
	assert.Equal(t, "r1", created.RestaurantID)

	assert.ErrorIs(t, ws.Assign(ctx, created.ID), errs.ErrForbidden)
}

func TestWorkspaceSuperAdminActivity(t *testing.T) {
	admin := model.Actor{ID: "root", Name: "Admin", Role: model.RoleSuperAdmin}
	ws, be, _ := newTestWorkspace(t, admin)
	be.seedConversation(model.Conversation{ID: "c1", Kind: model.KindSession})
	var activity []string
	ws.Updates().Subscribe(func(u Update) {
		if u.Kind == UpdateActivity {
			activity = append(activity, u.Message.Text)
		}
	})
	ctx := context.Background()
	require.NoError(t, ws.Open(ctx))

	require.NoError(t, be.SendMessage(ctx, &model.Message{ConversationID: "c1", Text: "ping"}))
	assert.Equal(t, []string{"ping"}, activity)
}

func TestWorkspaceSendFailureKeepsText(t *testing.T) {
	ws, be, _ := newTestWorkspace(t, agent)
	be.seedConversation(model.Conversation{ID: "c1", Kind: model.KindSession})
	ctx := context.Background()
	require.NoError(t, ws.Open(ctx))
	require.NoError(t, ws.Focus(ctx, "c1"))

	be.sendErr = errors.New("offline")
	_, err := ws.Send(ctx, "draft text")
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "draft text", sendErr.Text)
	assert.Equal(t, 0, ws.Messages.Len())
}

func TestWorkspaceSendWithoutFocus(t *testing.T) {
	ws, _, _ := newTestWorkspace(t, agent)
	_, err := ws.Send(context.Background(), "hello?")
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "hello?", sendErr.Text)
}

func TestWorkspaceCloseDropsEvents(t *testing.T) {
	ws, be, broker := newTestWorkspace(t, agent)
	be.seedConversation(model.Conversation{ID: "c1", Kind: model.KindSession})
	ctx := context.Background()
	require.NoError(t, ws.Open(ctx))
	require.NoError(t, ws.Focus(ctx, "c1"))

	var updates int
	ws.Updates().Subscribe(func(Update) { updates++ })
	ws.Close()
	ws.Close()

	assert.Equal(t, 0, ws.Subscriptions().Active())
	assert.Equal(t, 0, broker.Channels(AllSessions()))
	require.NoError(t, be.CreateConversation(ctx, &model.Conversation{Kind: model.KindSession, Title: "after"}))
	assert.Equal(t, 0, updates)
	assert.ErrorIs(t, ws.Open(ctx), errs.ErrSessionExpired)
}

func TestWorkspaceRefreshRecoversBrokenSubscription(t *testing.T) {
	ws, be, broker := newTestWorkspace(t, agent)
	be.seedConversation(model.Conversation{ID: "c1", Kind: model.KindSession})
	ctx := context.Background()
	require.NoError(t, ws.Open(ctx))

	h, ok := ws.Subscriptions().Lookup(AllSessions())
	require.True(t, ok)
	ws.Subscriptions().fail(h, errors.New("socket reset"))
	assert.Equal(t, StateError, h.State())

	require.NoError(t, ws.Refresh(ctx))
	h2, ok := ws.Subscriptions().Lookup(AllSessions())
	require.True(t, ok)
	assert.Equal(t, StateActive, h2.State())
	assert.Equal(t, StateUnsubscribed, h.State())
	assert.Equal(t, 1, broker.Channels(AllSessions()))
}

func TestWorkspaceOpenKeepsEventsDuringFetch(t *testing.T) {
	ws, be, _ := newTestWorkspace(t, agent)
	be.seedConversation(model.Conversation{ID: "S001", Kind: model.KindSession, RestaurantID: "r1", Status: model.StatusOpen})
	be.seedConversation(model.Conversation{ID: "T001", Kind: model.KindTicket, RestaurantID: "r1", Status: model.StatusOpen})
	ctx := context.Background()

	be.afterListConversations = func() {
		_, err := be.Assign(ctx, "S001", "Sarah", "agent-a")
		require.NoError(t, err)
		require.NoError(t, be.CreateConversation(ctx, &model.Conversation{ID: "S002", Kind: model.KindSession, RestaurantID: "r1", Title: "Table 9"}))
	}
	require.NoError(t, ws.Open(ctx))

	assert.Equal(t, 3, ws.Sessions.Len())
	conv, ok := ws.Sessions.Get("S001")
	require.True(t, ok)
	assert.Equal(t, model.StatusActive, conv.Status)
	assert.Equal(t, "Sarah", conv.AssignedAgentName)
	_, ok = ws.Sessions.Get("S002")
	assert.True(t, ok)
}

func TestWorkspaceFocusKeepsPresenceChangesDuringFetch(t *testing.T) {
	ws, be, _ := newTestWorkspace(t, agent)
	be.seedConversation(model.Conversation{ID: "S001", Kind: model.KindSession})
	be.join(model.Participant{ID: "p1", ConversationID: "S001", UserID: "u1", IsOnline: true})
	be.join(model.Participant{ID: "p2", ConversationID: "S001", UserID: "u2", IsOnline: true})
	ctx := context.Background()
	require.NoError(t, ws.Open(ctx))

	be.afterListParticipants = func() {
		be.setPresence("p1", false)
		be.leave("p2")
		be.join(model.Participant{ID: "p3", ConversationID: "S001", UserID: "u3", IsOnline: true})
	}
	require.NoError(t, ws.Focus(ctx, "S001"))

	assert.False(t, ws.Presence.IsOnline("u1"))
	assert.True(t, ws.Presence.IsOnline("u3"))
	parts := ws.Presence.Participants()
	require.Len(t, parts, 2)
	assert.Equal(t, "p1", parts[0].ID)
	assert.Equal(t, "p3", parts[1].ID)

	// Once the reload is over, events apply directly again.
	be.setPresence("p1", true)
	assert.True(t, ws.Presence.IsOnline("u1"))
}
