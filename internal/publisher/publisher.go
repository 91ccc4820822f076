package publisher

import (
	"context"
	"fmt"

	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/pkg/log"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
)

// Publisher wraps chat messages in bus events.
type Publisher struct {
	bus pubsub.Publisher
}

func New(bus pubsub.Publisher) *Publisher {
	return &Publisher{bus: bus}
}

// Publish sends msg to topic as a pubsub.Event carrying the message as payload.
func (p *Publisher) Publish(ctx context.Context, topic string, msg *domain.ChatMessage) error {
	event, err := pubsub.NewEvent(eventType(msg.Kind), msg.RoomID, msg)
	if err != nil {
		return fmt.Errorf("failed to encode chat message: %w", err)
	}

	if err := p.bus.Publish(ctx, topic, event); err != nil {
		return err
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldTopic, topic).Str("event_type", event.Type).Msg("chat message published")
	return nil
}

func eventType(kind domain.MessageKind) string {
	switch kind {
	case domain.KindInvite:
		return pubsub.EventInvite
	case domain.KindGlobal:
		return pubsub.EventGlobalMessage
	default:
		return pubsub.EventChatMessage
	}
}
