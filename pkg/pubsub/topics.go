package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming for chat traffic.
//
//	room/<id>  room messages and invitations addressed to <id>
//	public     global broadcast
const (
	ChannelRoomPrefix = "room/"
	ChannelPublic     = "public"

	// PatternAllRooms matches every room channel on every driver.
	PatternAllRooms = ChannelRoomPrefix + "*"
)

// Event types carried on chat channels.
const (
	EventChatMessage   = "room"
	EventInvite        = "invite"
	EventGlobalMessage = "global"
)

// RoomChannel returns the channel name for a room or invitation target.
func RoomChannel(id string) string {
	return ChannelRoomPrefix + id
}

// SplitChannel splits "room/abc" into ("room", "abc") and "public" into ("public", "").
func SplitChannel(channel string) (kind, key string, err error) {
	if channel == "" {
		return "", "", fmt.Errorf("empty channel")
	}
	kind, key, _ = strings.Cut(channel, "/")
	if kind == "" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return kind, key, nil
}

// MatchChannel reports whether channel is selected by pattern. A trailing "*"
// matches any suffix (including "/"), mirroring Redis glob semantics for the
// patterns used here; anything else is an exact match.
func MatchChannel(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}
