package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
)

type wsFrame struct {
	Type    string              `json:"type"`
	Code    string              `json:"code"`
	Request string              `json:"request"`
	Channel string              `json:"channel"`
	Message *domain.ChatMessage `json:"message"`
	Payload json.RawMessage     `json:"payload"`
}

func wsURL(srv *httptest.Server, token string, topics ...string) string {
	q := url.Values{}
	if token != "" {
		q.Set("access_token", token)
	}
	for _, topic := range topics {
		q.Add("topic", topic)
	}
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?" + q.Encode()
}

func dial(t *testing.T, env *testEnv, srv *httptest.Server, user string, topics ...string) *websocket.Conn {
	t.Helper()
	clients := env.hub.ClientCount()
	before := make(map[string]int, len(topics))
	for _, topic := range topics {
		before[topic] = env.hub.TopicClientCount(topic)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, env.token(t, user), topics...), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Subscriptions are registered right after the upgrade completes.
	require.Eventually(t, func() bool {
		if env.hub.ClientCount() <= clients {
			return false
		}
		for _, topic := range topics {
			if env.hub.TopicClientCount(topic) <= before[topic] {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWS_RejectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "", "public"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWS_RejectsInvalidTopic(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, env.token(t, "alice"), "room/"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWS_PingPong(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dial(t, env, srv, "alice", "public")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, domain.MsgTypePong, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	f := readFrame(t, conn)
	assert.Equal(t, domain.MsgTypeError, f.Type)
	assert.Equal(t, domain.ErrCodeBadRequest, f.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, domain.MsgTypeError, readFrame(t, conn).Type)
}

func TestWS_SendRoomReachesSubscribers(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	bob := dial(t, env, srv, "bob", "room/alice_bob")
	alice := dial(t, env, srv, "alice")

	require.NoError(t, alice.WriteJSON(domain.ClientFrame{
		Type:     domain.MsgTypeSendRoom,
		RoomID:   "alice_bob",
		Receiver: "bob",
		Content:  "over the wire",
	}))

	ack := readFrame(t, alice)
	assert.Equal(t, domain.MsgTypeAck, ack.Type)
	assert.Equal(t, domain.MsgTypeSendRoom, ack.Request)
	require.NotNil(t, ack.Message)
	assert.Equal(t, "alice", ack.Message.Sender)

	pushed := readFrame(t, bob)
	assert.Equal(t, pubsub.EventChatMessage, pushed.Type)
	assert.Equal(t, "room/alice_bob", pushed.Channel)
	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(pushed.Payload, &msg))
	assert.Equal(t, "over the wire", msg.Content)
	assert.Equal(t, "alice", msg.Sender)

	// Stored before it was pushed.
	w := env.do(t, http.MethodGet, "/api/v1/chat/rooms/alice_bob/messages", env.token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []domain.ChatLog
	decode(t, w, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.Looked, logs[0].IsLooked)
}

func TestWS_SendRoomValidationError(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	alice := dial(t, env, srv, "alice")
	require.NoError(t, alice.WriteJSON(domain.ClientFrame{Type: domain.MsgTypeSendRoom, Content: "no room"}))

	f := readFrame(t, alice)
	assert.Equal(t, domain.MsgTypeError, f.Type)
	assert.Equal(t, domain.ErrCodeBadRequest, f.Code)
}

func TestWS_InviteAndGlobal(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	bob := dial(t, env, srv, "bob", "room/bob", "public")
	alice := dial(t, env, srv, "alice")

	require.NoError(t, alice.WriteJSON(domain.ClientFrame{
		Type:     domain.MsgTypeInvite,
		Receiver: "bob",
		RoomID:   "alice_bob",
	}))
	assert.Equal(t, domain.MsgTypeAck, readFrame(t, alice).Type)

	invite := readFrame(t, bob)
	assert.Equal(t, pubsub.EventInvite, invite.Type)
	assert.Equal(t, "room/bob", invite.Channel)

	require.NoError(t, alice.WriteJSON(domain.ClientFrame{Type: domain.MsgTypeSendGlobal, Content: "hi everyone"}))
	ack := readFrame(t, alice)
	assert.Equal(t, domain.MsgTypeAck, ack.Type)
	require.NotNil(t, ack.Message)
	assert.Equal(t, domain.KindGlobal, ack.Message.Kind)

	global := readFrame(t, bob)
	assert.Equal(t, pubsub.EventGlobalMessage, global.Type)
	assert.Equal(t, pubsub.ChannelPublic, global.Channel)
}

func TestWS_SubscribeFrames(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	bob := dial(t, env, srv, "bob")

	require.NoError(t, bob.WriteJSON(domain.ClientFrame{Type: domain.MsgTypeSubscribe, Topic: "nope"}))
	assert.Equal(t, domain.MsgTypeError, readFrame(t, bob).Type)

	require.NoError(t, bob.WriteJSON(domain.ClientFrame{Type: domain.MsgTypeSubscribe, Topic: "room/r9"}))
	ack := readFrame(t, bob)
	assert.Equal(t, domain.MsgTypeAck, ack.Type)
	assert.Equal(t, domain.MsgTypeSubscribe, ack.Request)
	assert.Equal(t, 1, env.hub.TopicClientCount("room/r9"))

	require.NoError(t, bob.WriteJSON(domain.ClientFrame{Type: domain.MsgTypeUnsubscribe, Topic: "room/r9"}))
	assert.Equal(t, domain.MsgTypeAck, readFrame(t, bob).Type)
	assert.Zero(t, env.hub.TopicClientCount("room/r9"))
}
