package store

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/weiawesome/chatlog-service/internal/domain"
)

// Filter selects logs. Empty fields do not constrain; all set fields must hold.
type Filter struct {
	// Receiver must equal the log's receiver.
	Receiver string
	// RoomContains must occur as a literal substring of the log's room id.
	RoomContains string
	// IsLooked must equal the log's read flag.
	IsLooked *domain.IsLooked
}

// Match evaluates the filter against one log.
func (f Filter) Match(l *domain.ChatLog) bool {
	if f.Receiver != "" && l.Receiver != f.Receiver {
		return false
	}
	if f.RoomContains != "" && !strings.Contains(l.ChatRoomID, f.RoomContains) {
		return false
	}
	if f.IsLooked != nil && l.IsLooked != *f.IsLooked {
		return false
	}
	return true
}

// Flag is a helper for building a Filter.IsLooked value.
func Flag(f domain.IsLooked) *domain.IsLooked {
	return &f
}

// GroupKey is the field logs are grouped by.
type GroupKey string

const (
	GroupBySender GroupKey = "sender"
	GroupByRoom   GroupKey = "chat_room_id"
)

// Valid reports whether g names a groupable column.
func (g GroupKey) Valid() bool {
	return g == GroupBySender || g == GroupByRoom
}

// Of extracts the group value from a log.
func (g GroupKey) Of(l *domain.ChatLog) string {
	if g == GroupBySender {
		return l.Sender
	}
	return l.ChatRoomID
}

// Field is a projectable ChatLog field.
type Field string

const (
	FieldID         Field = "id"
	FieldChatRoomID Field = "chat_room_id"
	FieldContent    Field = "content"
	FieldSender     Field = "sender"
	FieldReceiver   Field = "receiver"
	FieldTimeStamp  Field = "time_stamp"
	FieldIsLooked   Field = "is_looked"
)

var knownFields = map[Field]struct{}{
	FieldID:         {},
	FieldChatRoomID: {},
	FieldContent:    {},
	FieldSender:     {},
	FieldReceiver:   {},
	FieldTimeStamp:  {},
	FieldIsLooked:   {},
}

// LastPerKeyQuery asks for the newest log per group. Newest means greatest
// time stamp, ties broken by greatest ID.
type LastPerKeyQuery struct {
	Filter  Filter
	GroupBy GroupKey
	Fields  []Field
}

func (q LastPerKeyQuery) Validate() error {
	if !q.GroupBy.Valid() {
		return fmt.Errorf("unsupported group key %q", q.GroupBy)
	}
	if len(q.Fields) == 0 {
		return fmt.Errorf("no fields projected")
	}
	for _, f := range q.Fields {
		if _, ok := knownFields[f]; !ok {
			return fmt.Errorf("unknown field %q", f)
		}
	}
	return nil
}

// CountQuery counts logs per group.
type CountQuery struct {
	Filter  Filter
	GroupBy GroupKey
}

func (q CountQuery) Validate() error {
	if !q.GroupBy.Valid() {
		return fmt.Errorf("unsupported group key %q", q.GroupBy)
	}
	return nil
}

// GroupCount is one row of an AggregateCount result.
type GroupCount struct {
	Key   string
	Count int64
}

// Project copies only the requested fields of l into a new log.
func Project(l domain.ChatLog, fields []Field) domain.ChatLog {
	var out domain.ChatLog
	for _, f := range lo.Uniq(fields) {
		switch f {
		case FieldID:
			out.ID = l.ID
		case FieldChatRoomID:
			out.ChatRoomID = l.ChatRoomID
		case FieldContent:
			out.Content = l.Content
		case FieldSender:
			out.Sender = l.Sender
		case FieldReceiver:
			out.Receiver = l.Receiver
		case FieldTimeStamp:
			out.TimeStamp = l.TimeStamp
		case FieldIsLooked:
			out.IsLooked = l.IsLooked
		}
	}
	return out
}

// newer reports whether a sorts before b in "most recent first" order.
func newer(a, b *domain.ChatLog) bool {
	if !a.TimeStamp.Equal(b.TimeStamp) {
		return a.TimeStamp.After(b.TimeStamp)
	}
	return a.ID > b.ID
}
