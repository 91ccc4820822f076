package domain

// Request bodies accepted by the HTTP API.

type SendGlobalRequest struct {
	Content  string `json:"content" binding:"required"`
	RoomID   string `json:"room_id"`
	Receiver string `json:"receiver"`
}

type SendRoomRequest struct {
	Receiver string `json:"receiver"`
	Content  string `json:"content" binding:"required"`
}

type InviteRequest struct {
	Receiver string `json:"receiver" binding:"required"`
	RoomID   string `json:"room_id" binding:"required"`
	Content  string `json:"content"`
}
