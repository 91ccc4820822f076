package service

import (
	"context"

	"github.com/weiawesome/chatlog-service/internal/domain"
)

// ChatService handles chat delivery and read state. Every operation takes the
// caller's verified identity explicitly. The send operations always overwrite
// msg.Sender with that identity and msg.Kind with the operation's kind; other
// fields pass through as given.
type ChatService interface {
	// SendToGlobal stamps a global message. Delivery is left to the caller.
	SendToGlobal(ctx context.Context, identity string, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	// Invite notifies msg.Receiver on room/<receiver>. Nothing is stored and
	// the timestamp is left as the caller set it.
	Invite(ctx context.Context, identity string, msg *domain.ChatMessage) error
	// SendToRoom stamps, stores and then publishes a room message.
	SendToRoom(ctx context.Context, identity string, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	// GetHistory returns a room's log and marks other senders' messages read.
	GetHistory(ctx context.Context, roomID, viewer string) ([]domain.ChatLog, error)

	LastMessagesForReceiver(ctx context.Context, viewer string) ([]domain.ChatLog, error)
	LastMessagesForRoom(ctx context.Context, viewer string) ([]domain.ChatLog, error)
	UnreadCountsForRoom(ctx context.Context, viewer string) ([]domain.UnreadCount, error)
	InboxSummary(ctx context.Context, viewer string) (*domain.InboxSummary, error)
}

// Publisher delivers a message to every subscriber of a topic, best effort.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *domain.ChatMessage) error
}
