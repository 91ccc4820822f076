package domain

// WebSocket message types from client.
const (
	MsgTypeSendRoom    = "send_room"
	MsgTypeSendGlobal  = "send_global"
	MsgTypeInvite      = "invite"
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAck   = "ack"
	MsgTypeError = "error"
	MsgTypePong  = "pong"
)

// Error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnavailable   = "STORE_UNAVAILABLE"
	ErrCodePublishFailed = "PUBLISH_FAILED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// ClientFrame is a frame sent by a WebSocket client. Topic is used by
// subscribe and unsubscribe, the other fields by the send frames.
type ClientFrame struct {
	Type     string `json:"type"`
	Topic    string `json:"topic,omitempty"`
	Receiver string `json:"receiver"`
	RoomID   string `json:"room_id"`
	Content  string `json:"content"`
}

// AckMessage confirms a client frame; Message echoes the stamped message when there is one.
type AckMessage struct {
	Type    string       `json:"type"`
	Request string       `json:"request"`
	Message *ChatMessage `json:"message,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

func NewAckMessage(request string, msg *ChatMessage) *AckMessage {
	return &AckMessage{
		Type:    MsgTypeAck,
		Request: request,
		Message: msg,
	}
}
