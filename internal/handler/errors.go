package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/internal/service"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
)

// classify maps a service error onto an HTTP status and a wire error code.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrInvalidIdentity):
		return http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid identity"
	case errors.Is(err, service.ErrInvalidMessage):
		return http.StatusBadRequest, domain.ErrCodeBadRequest, err.Error()
	case errors.Is(err, service.ErrPersistence):
		return http.StatusServiceUnavailable, domain.ErrCodeUnavailable, "chat store unavailable"
	case errors.Is(err, service.ErrPublish):
		return http.StatusBadGateway, domain.ErrCodePublishFailed, "message bus unavailable"
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternalError, "internal error"
	}
}

// validTopic accepts room/<id> and public.
func validTopic(topic string) bool {
	if topic == pubsub.ChannelPublic {
		return true
	}
	id, ok := strings.CutPrefix(topic, pubsub.ChannelRoomPrefix)
	return ok && id != ""
}
