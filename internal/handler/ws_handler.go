package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/chatlog-service/internal/audit"
	"github.com/weiawesome/chatlog-service/internal/config"
	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/internal/hub"
	"github.com/weiawesome/chatlog-service/internal/service"
	"github.com/weiawesome/chatlog-service/pkg/log"
	"github.com/weiawesome/chatlog-service/pkg/middleware"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
	"github.com/weiawesome/chatlog-service/pkg/response"
)

const topicQueryKey = "topic"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub       *hub.Hub
	service   service.ChatService
	publisher service.Publisher
	wsCfg     config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, publisher service.Publisher, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:       h,
		service:   svc,
		publisher: publisher,
		wsCfg:     wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine, auth *middleware.AuthMiddleware) {
	r.GET("/chat/ws", auth.AllowQueryToken().RequireAuth(), h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and subscribes the client to every
// topic query parameter (room/<id> or public).
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	topics := c.QueryArray(topicQueryKey)
	for _, topic := range topics {
		if !validTopic(topic) {
			response.BadRequest(c, "invalid topic: "+topic)
			return
		}
	}

	identity := middleware.GetIdentity(c)
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), identity, h.hub, conn, h.wsCfg)
	h.hub.Register(client)
	for _, topic := range topics {
		h.hub.Subscribe(client, topic)
	}
	audit.Log(ctx, audit.ActionConnect, identity, client.ID, "websocket connected")

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		audit.Log(context.Background(), audit.ActionDisconnect, identity, client.ID, "websocket disconnected")
	}()
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var frame domain.ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := log.WithFields(context.Background(), log.FieldIdentity, client.Identity, "client_id", client.ID)
	l := log.Ctx(ctx)

	switch frame.Type {
	case domain.MsgTypeSendRoom:
		out, err := h.service.SendToRoom(ctx, client.Identity, frameMessage(&frame))
		if err != nil {
			h.replyError(client, err)
			return
		}
		client.SendMessage(domain.NewAckMessage(frame.Type, out))

	case domain.MsgTypeSendGlobal:
		out, err := h.service.SendToGlobal(ctx, client.Identity, frameMessage(&frame))
		if err != nil {
			h.replyError(client, err)
			return
		}
		if err := h.publisher.Publish(ctx, pubsub.ChannelPublic, out); err != nil {
			l.Error().Err(err).Str(log.FieldTopic, pubsub.ChannelPublic).Msg("failed to publish global message")
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodePublishFailed, "message bus unavailable"))
			return
		}
		client.SendMessage(domain.NewAckMessage(frame.Type, out))

	case domain.MsgTypeInvite:
		if err := h.service.Invite(ctx, client.Identity, frameMessage(&frame)); err != nil {
			h.replyError(client, err)
			return
		}
		client.SendMessage(domain.NewAckMessage(frame.Type, nil))

	case domain.MsgTypeSubscribe:
		if !validTopic(frame.Topic) {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid topic"))
			return
		}
		h.hub.Subscribe(client, frame.Topic)
		client.SendMessage(domain.NewAckMessage(frame.Type, nil))

	case domain.MsgTypeUnsubscribe:
		h.hub.Unsubscribe(client, frame.Topic)
		client.SendMessage(domain.NewAckMessage(frame.Type, nil))

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func (h *WSHandler) replyError(client *hub.Client, err error) {
	_, code, msg := classify(err)
	client.SendMessage(domain.NewErrorMessage(code, msg))
}

func frameMessage(f *domain.ClientFrame) *domain.ChatMessage {
	return &domain.ChatMessage{
		Receiver: f.Receiver,
		RoomID:   f.RoomID,
		Content:  f.Content,
	}
}
