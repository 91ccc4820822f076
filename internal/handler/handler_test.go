package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/chatlog-service/internal/config"
	"github.com/weiawesome/chatlog-service/internal/hub"
	"github.com/weiawesome/chatlog-service/internal/publisher"
	"github.com/weiawesome/chatlog-service/internal/service"
	"github.com/weiawesome/chatlog-service/internal/store"
	"github.com/weiawesome/chatlog-service/pkg/jwt"
	"github.com/weiawesome/chatlog-service/pkg/log"
	"github.com/weiawesome/chatlog-service/pkg/middleware"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
	"github.com/weiawesome/chatlog-service/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	tokens *jwt.Manager
	hub    *hub.Hub
	bus    *pubsub.MemoryPubSub
	ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithService(t, nil)
}

// newTestEnvWithService wires the full stack; svc replaces the chat service when set.
func newTestEnvWithService(t *testing.T, svc service.ChatService) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := store.OpenBadger("", true)
	require.NoError(t, err)
	logStore := store.NewBadgerStore(db)
	t.Cleanup(func() { _ = logStore.Close() })

	bus := pubsub.NewMemoryPubSub(32)
	t.Cleanup(func() { _ = bus.Close() })
	pub := publisher.New(bus)

	if svc == nil {
		svc = service.NewChatService(logStore, pub)
	}

	tokens, err := jwt.NewManager("test-secret", time.Hour, "test")
	require.NoError(t, err)
	auth := middleware.NewAuthMiddleware(tokens)

	wsCfg := config.WebSocketConfig{
		PingInterval:   time.Minute,
		PongWait:       time.Minute,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     16,
	}
	h := hub.NewHub(wsCfg)
	go h.Run(ctx)
	require.NoError(t, h.Attach(ctx, bus))

	r := gin.New()
	r.Use(log.GinMiddleware(log.Nop()))
	NewHTTPHandler(svc, pub).RegisterRoutes(r, auth)
	NewWSHandler(h, svc, pub, wsCfg).RegisterRoutes(r, auth)

	return &testEnv{router: r, tokens: tokens, hub: h, bus: bus, ctx: ctx}
}

func (e *testEnv) token(t *testing.T, username string) string {
	t.Helper()
	tok, _, err := e.tokens.GenerateAccessToken("id-"+username, username, nil)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (e *testEnv) subscribe(t *testing.T, channel string) <-chan *pubsub.Event {
	t.Helper()
	events, err := e.bus.Subscribe(e.ctx, channel)
	require.NoError(t, err)
	return events
}

func nextEvent(t *testing.T, events <-chan *pubsub.Event) *pubsub.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return nil
	}
}
