package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/internal/service"
	"github.com/weiawesome/chatlog-service/pkg/log"
	"github.com/weiawesome/chatlog-service/pkg/middleware"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
	"github.com/weiawesome/chatlog-service/pkg/response"
)

type HTTPHandler struct {
	chatService service.ChatService
	publisher   service.Publisher
}

func NewHTTPHandler(chatService service.ChatService, publisher service.Publisher) *HTTPHandler {
	return &HTTPHandler{
		chatService: chatService,
		publisher:   publisher,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, auth *middleware.AuthMiddleware) {
	api := r.Group("/api/v1/chat")
	api.Use(auth.RequireAuth())
	{
		api.POST("/global", h.SendGlobal)
		api.POST("/rooms/:room_id/messages", h.SendRoom)
		api.GET("/rooms/:room_id/messages", h.GetHistory)
		api.POST("/invites", h.Invite)
		api.GET("/last-messages/senders", h.LastMessagesForReceiver)
		api.GET("/last-messages/rooms", h.LastMessagesForRoom)
		api.GET("/unread-counts", h.UnreadCounts)
		api.GET("/inbox", h.Inbox)
	}

	r.GET("/health", h.HealthCheck)
}

// SendGlobal stamps a message and broadcasts it on the public channel.
func (h *HTTPHandler) SendGlobal(c *gin.Context) {
	var req domain.SendGlobalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	out, err := h.chatService.SendToGlobal(ctx, middleware.GetIdentity(c), &domain.ChatMessage{
		RoomID:   req.RoomID,
		Receiver: req.Receiver,
		Content:  req.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.publisher.Publish(ctx, pubsub.ChannelPublic, out); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldTopic, pubsub.ChannelPublic).Msg("failed to publish global message")
		_ = c.Error(err)
		response.BadGateway(c, "message bus unavailable")
		return
	}

	response.Success(c, out)
}

func (h *HTTPHandler) SendRoom(c *gin.Context) {
	var req domain.SendRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	out, err := h.chatService.SendToRoom(c.Request.Context(), middleware.GetIdentity(c), &domain.ChatMessage{
		RoomID:   c.Param("room_id"),
		Receiver: req.Receiver,
		Content:  req.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Created(c, out)
}

// GetHistory returns the room log and marks the caller's incoming messages read.
func (h *HTTPHandler) GetHistory(c *gin.Context) {
	logs, err := h.chatService.GetHistory(c.Request.Context(), c.Param("room_id"), middleware.GetIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, logs)
}

func (h *HTTPHandler) Invite(c *gin.Context) {
	var req domain.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.chatService.Invite(c.Request.Context(), middleware.GetIdentity(c), &domain.ChatMessage{
		RoomID:   req.RoomID,
		Receiver: req.Receiver,
		Content:  req.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Accepted(c, gin.H{"topic": pubsub.RoomChannel(req.Receiver)})
}

func (h *HTTPHandler) LastMessagesForReceiver(c *gin.Context) {
	logs, err := h.chatService.LastMessagesForReceiver(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, logs)
}

func (h *HTTPHandler) LastMessagesForRoom(c *gin.Context) {
	logs, err := h.chatService.LastMessagesForRoom(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, logs)
}

func (h *HTTPHandler) UnreadCounts(c *gin.Context) {
	counts, err := h.chatService.UnreadCountsForRoom(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, counts)
}

func (h *HTTPHandler) Inbox(c *gin.Context) {
	summary, err := h.chatService.InboxSummary(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, summary)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("chat request failed")
	}
	_ = c.Error(err)
	response.Error(c, status, code, msg)
}
