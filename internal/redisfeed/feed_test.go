package redisfeed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "support-chat:feed:sessions", ChannelName(realtime.AllSessions()))
	assert.Equal(t, "support-chat:feed:session_participants:c1", ChannelName(realtime.ParticipantsFor("c1")))
}

func TestDecode(t *testing.T) {
	env, err := realtime.NewEnvelope(realtime.TableMessages, realtime.EventInsert, "r1", &model.Message{ID: "m1"}, nil)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	got, err := decode(string(body))
	require.NoError(t, err)
	assert.Equal(t, realtime.TableMessages, got.Table)
	assert.Equal(t, realtime.EventInsert, got.Type)

	_, err = decode("{}")
	assert.Error(t, err)
	_, err = decode("not json")
	assert.Error(t, err)
}

func newTestFeed(t *testing.T) (*Feed, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := NewClient(ctx, "redis://"+srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, nil), srv
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	feed, srv := newTestFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan realtime.Envelope, 2)
	topic := realtime.MessagesFor(model.KindSession, "roundtrip")
	ch, err := feed.Subscribe(ctx, topic, func(env realtime.Envelope) { got <- env }, nil)
	require.NoError(t, err)
	defer ch.Close()
	assert.Equal(t, 1, srv.PubSubNumSub(ChannelName(topic))[ChannelName(topic)])

	// Garbage on the channel is dropped, the stream keeps going.
	srv.Publish(ChannelName(topic), "not json")

	env, err := realtime.NewEnvelope(realtime.TableMessages, realtime.EventInsert, "r1", &model.Message{ID: "m1"}, nil)
	require.NoError(t, err)
	require.NoError(t, feed.Publish(ctx, topic, env))

	select {
	case e := <-got:
		assert.Equal(t, realtime.EventInsert, e.Type)
		assert.Equal(t, "r1", e.RestaurantID)
		change, err := realtime.DecodeChange[model.Message](e)
		require.NoError(t, err)
		assert.Equal(t, "m1", change.New.ID)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestCloseStopsDeliveryWithoutFailing(t *testing.T) {
	feed, srv := newTestFeed(t)
	ctx := context.Background()
	topic := realtime.AllTickets()
	name := ChannelName(topic)

	var mu sync.Mutex
	delivered, failed := 0, 0
	ch, err := feed.Subscribe(ctx, topic,
		func(realtime.Envelope) { mu.Lock(); delivered++; mu.Unlock() },
		func(error) { mu.Lock(); failed++; mu.Unlock() },
	)
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	require.Eventually(t, func() bool { return srv.PubSubNumSub(name)[name] == 0 }, 2*time.Second, 10*time.Millisecond)

	env, err := realtime.NewEnvelope(realtime.TableConversations, realtime.EventInsert, "r1", &model.Conversation{ID: "c1"}, nil)
	require.NoError(t, err)
	require.NoError(t, feed.Publish(ctx, topic, env))
	<-ch.(*channel).done

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, delivered)
	assert.Zero(t, failed)
}

func TestSubscribeFailsWhenServerIsGone(t *testing.T) {
	feed, srv := newTestFeed(t)
	srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := feed.Subscribe(ctx, realtime.AllSessions(), func(realtime.Envelope) {}, nil)
	assert.Error(t, err)
	assert.Error(t, feed.Publish(ctx, realtime.AllSessions(), realtime.Envelope{Table: realtime.TableConversations, Type: realtime.EventInsert}))
}
