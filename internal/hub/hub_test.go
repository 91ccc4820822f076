package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/chatlog-service/internal/config"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
)

func startHub(t *testing.T) (*Hub, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHub(config.WebSocketConfig{SendBuffer: 8})
	go h.Run(ctx)
	return h, ctx
}

func newTestClient(t *testing.T, h *Hub, id string) *Client {
	t.Helper()
	c := NewClient(id, id, h, nil, h.config)
	h.Register(c)
	require.Eventually(t, func() bool { return h.hasClient(id) }, time.Second, 5*time.Millisecond)
	return c
}

func (h *Hub) hasClient(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return nil
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("client %s got unexpected %s", c.ID, msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	h, _ := startHub(t)
	alice := newTestClient(t, h, "alice")
	bob := newTestClient(t, h, "bob")

	h.Subscribe(alice, "room/r1")
	h.Subscribe(bob, "room/r2")
	assert.Equal(t, 1, h.TopicClientCount("room/r1"))

	require.NoError(t, h.BroadcastToTopic("room/r1", map[string]string{"content": "hi"}))

	assert.JSONEq(t, `{"content":"hi"}`, string(receive(t, alice)))
	assertNothing(t, bob)
}

func TestHub_Unsubscribe(t *testing.T) {
	h, _ := startHub(t)
	alice := newTestClient(t, h, "alice")

	h.Subscribe(alice, "public")
	h.Unsubscribe(alice, "public")
	assert.Zero(t, h.TopicClientCount("public"))

	h.BroadcastRaw("public", []byte("x"))
	assertNothing(t, alice)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h, _ := startHub(t)
	alice := newTestClient(t, h, "alice")
	h.Subscribe(alice, "room/r1")

	h.Unregister(alice)

	select {
	case _, ok := <-alice.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Zero(t, h.TopicClientCount("room/r1"))
	assert.Zero(t, h.ClientCount())

	// Queuing to an unregistered client is a no-op.
	assert.NoError(t, alice.SendMessage(map[string]string{"type": "pong"}))
}

func TestHub_SubscribeAfterUnregisterIsIgnored(t *testing.T) {
	h, _ := startHub(t)
	alice := newTestClient(t, h, "alice")
	bob := newTestClient(t, h, "bob")
	h.Subscribe(bob, "room/r1")

	h.Unregister(alice)
	require.Eventually(t, func() bool { return !h.hasClient("alice") }, time.Second, 5*time.Millisecond)

	// A subscribe frame read before the drop must not resurrect the client.
	h.Subscribe(alice, "room/r1")
	assert.Equal(t, 1, h.TopicClientCount("room/r1"))

	h.BroadcastRaw("room/r1", []byte("still running"))
	assert.Equal(t, "still running", string(receive(t, bob)))

	_, ok := <-alice.Send
	assert.False(t, ok)
}

func TestHub_RegisterIsImmediate(t *testing.T) {
	h, _ := startHub(t)
	c := NewClient("carol", "carol", h, nil, h.config)

	h.Register(c)
	h.Subscribe(c, pubsub.ChannelPublic)

	assert.Equal(t, 1, h.TopicClientCount(pubsub.ChannelPublic))
}

func TestHub_RegisterAfterShutdownIsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(config.WebSocketConfig{})
	go h.Run(ctx)
	cancel()
	<-h.done

	h.Register(NewClient("late", "late", h, nil, h.config))
	assert.Zero(t, h.ClientCount())
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(config.WebSocketConfig{})
	go h.Run(ctx)
	alice := newTestClient(t, h, "alice")

	cancel()

	select {
	case _, ok := <-alice.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}

	// Calls after shutdown return instead of blocking.
	h.Unregister(alice)
	h.BroadcastRaw("public", []byte("late"))
}

func TestHub_AttachForwardsBusEvents(t *testing.T) {
	h, ctx := startHub(t)
	bus := pubsub.NewMemoryPubSub(10)
	t.Cleanup(func() { _ = bus.Close() })

	require.NoError(t, h.Attach(ctx, bus))

	alice := newTestClient(t, h, "alice")
	bob := newTestClient(t, h, "bob")
	h.Subscribe(alice, "room/r1")
	h.Subscribe(bob, pubsub.ChannelPublic)

	event, err := pubsub.NewEvent(pubsub.EventChatMessage, "r1", map[string]string{"content": "hello"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "room/r1", event))

	var got pubsub.Event
	require.NoError(t, json.Unmarshal(receive(t, alice), &got))
	assert.Equal(t, "room/r1", got.Channel)
	assert.Equal(t, pubsub.EventChatMessage, got.Type)
	assertNothing(t, bob)

	global, err := pubsub.NewEvent(pubsub.EventGlobalMessage, "", map[string]string{"content": "all"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, pubsub.ChannelPublic, global))

	require.NoError(t, json.Unmarshal(receive(t, bob), &got))
	assert.Equal(t, pubsub.ChannelPublic, got.Channel)
	assertNothing(t, alice)
}
