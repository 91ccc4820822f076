package domain

import "time"

// MessageKind tells subscribers how a ChatMessage was addressed.
type MessageKind string

const (
	KindGlobal MessageKind = "global"
	KindRoom   MessageKind = "room"
	KindInvite MessageKind = "invite"
)

// ChatMessage is the transient message exchanged with clients and published
// on the bus. TimeStamp is always assigned server-side.
type ChatMessage struct {
	Sender    string      `json:"sender"`
	Receiver  string      `json:"receiver"`
	RoomID    string      `json:"room_id"`
	Content   string      `json:"content"`
	TimeStamp time.Time   `json:"timestamp"`
	Kind      MessageKind `json:"type"`
}

// IsLooked is the persisted read flag of a ChatLog.
type IsLooked string

const (
	Looked    IsLooked = "TRUE"
	NotLooked IsLooked = "FALSE"
)

// Valid reports whether f is one of the two stored values.
func (f IsLooked) Valid() bool {
	return f == Looked || f == NotLooked
}

// ChatLog is the durable record of a room message.
type ChatLog struct {
	ID         string    `json:"id,omitempty"`
	ChatRoomID string    `json:"chat_room_id"`
	Content    string    `json:"content"`
	Sender     string    `json:"sender"`
	Receiver   string    `json:"receiver,omitempty"`
	TimeStamp  time.Time `json:"timestamp"`
	IsLooked   IsLooked  `json:"is_looked,omitempty"`
}

// NewChatLog builds the unread log entry for a stamped room message.
func NewChatLog(msg *ChatMessage) *ChatLog {
	return &ChatLog{
		ChatRoomID: msg.RoomID,
		Content:    msg.Content,
		Sender:     msg.Sender,
		Receiver:   msg.Receiver,
		TimeStamp:  NormalizeTime(msg.TimeStamp),
		IsLooked:   NotLooked,
	}
}

// NormalizeTime converts t to the stored representation: UTC, millisecond precision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// UnreadCount is the number of unread logs in one room.
type UnreadCount struct {
	ChatRoomID     string `json:"chat_room_id"`
	UnreadMessages int64  `json:"unread_messages"`
}

// InboxSummary combines the per-room views a client needs on startup.
type InboxSummary struct {
	Rooms       []ChatLog     `json:"rooms"`
	Unread      []UnreadCount `json:"unread"`
	TotalUnread int64         `json:"total_unread"`
}
