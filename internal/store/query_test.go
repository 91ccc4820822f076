package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weiawesome/chatlog-service/internal/domain"
)

func TestFilterMatch(t *testing.T) {
	cl := &domain.ChatLog{ChatRoomID: "alice_bob", Receiver: "bob", IsLooked: domain.NotLooked}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches all", Filter{}, true},
		{"receiver equal", Filter{Receiver: "bob"}, true},
		{"receiver differs", Filter{Receiver: "bo"}, false},
		{"room substring", Filter{RoomContains: "lice_b"}, true},
		{"room substring missing", Filter{RoomContains: "carol"}, false},
		{"room is not a pattern", Filter{RoomContains: "a.*b"}, false},
		{"flag equal", Filter{IsLooked: Flag(domain.NotLooked)}, true},
		{"flag differs", Filter{IsLooked: Flag(domain.Looked)}, false},
		{"all conditions", Filter{Receiver: "bob", RoomContains: "alice", IsLooked: Flag(domain.NotLooked)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(cl))
		})
	}
}

func TestProject(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cl := domain.ChatLog{
		ID:         "id",
		ChatRoomID: "room",
		Content:    "content",
		Sender:     "sender",
		Receiver:   "receiver",
		TimeStamp:  at,
		IsLooked:   domain.Looked,
	}

	got := Project(cl, []Field{FieldContent, FieldTimeStamp, FieldContent})
	assert.Equal(t, domain.ChatLog{Content: "content", TimeStamp: at}, got)
}

func TestNewer(t *testing.T) {
	a := &domain.ChatLog{ID: "B", TimeStamp: time.Unix(10, 0)}
	b := &domain.ChatLog{ID: "A", TimeStamp: time.Unix(10, 0)}
	c := &domain.ChatLog{ID: "Z", TimeStamp: time.Unix(9, 0)}

	assert.True(t, newer(a, b))
	assert.False(t, newer(b, a))
	assert.True(t, newer(b, c))
}

func TestIDGenerator_Monotonic(t *testing.T) {
	g := newIDGenerator()
	fixed := time.Unix(1700000000, 0)
	g.now = func() time.Time { return fixed }

	prev, err := g.Generate()
	assert.NoError(t, err)
	for i := 0; i < 100; i++ {
		id, err := g.Generate()
		assert.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestMySQLHasWindowFunctions(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"8.0.36", true},
		{"8.4.0-log", true},
		{"5.7.44-log", false},
		{"5.6.51", false},
		{"10.6.12-MariaDB", true},
		{"10.2.44-MariaDB-log", true},
		{"10.1.48-MariaDB", false},
		{"5.5.5-10.11.6-MariaDB", true},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, mysqlHasWindowFunctions(tt.version))
		})
	}
}
