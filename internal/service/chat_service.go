package service

import (
	"context"
	"errors"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/chatlog-service/internal/audit"
	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/internal/store"
	"github.com/weiawesome/chatlog-service/pkg/log"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
)

const maxIdentityLen = 128

const (
	identityTag = "required,identity"
	roomIDTag   = "required,max=255,room_id"
	contentTag  = "max=4096"
)

var errNilMessage = errors.New("missing")

var (
	receiverFields = []store.Field{
		store.FieldContent, store.FieldTimeStamp, store.FieldChatRoomID, store.FieldSender,
	}
	roomFields = []store.Field{
		store.FieldContent, store.FieldTimeStamp, store.FieldChatRoomID, store.FieldSender, store.FieldIsLooked,
	}
)

// Option configures a chat service.
type Option func(*chatServiceImpl)

// WithClock replaces the clock used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(s *chatServiceImpl) {
		s.now = now
	}
}

type chatServiceImpl struct {
	store     store.ChatLogStore
	publisher Publisher
	validate  *validator.Validate
	now       func() time.Time
}

// NewChatService creates the chat service.
func NewChatService(logStore store.ChatLogStore, publisher Publisher, opts ...Option) ChatService {
	s := &chatServiceImpl{
		store:     logStore,
		publisher: publisher,
		validate:  newValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("identity", validIdentity)
	_ = v.RegisterValidation("room_id", validRoomID)
	return v
}

// validIdentity accepts printable identities without whitespace.
func validIdentity(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > maxIdentityLen || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// validRoomID rejects room ids carrying control runes, NUL included.
func validRoomID(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func (s *chatServiceImpl) checkIdentity(identity string) error {
	if err := s.validate.Var(identity, identityTag); err != nil {
		return ErrInvalidIdentity
	}
	return nil
}

func (s *chatServiceImpl) checkMessage(msg *domain.ChatMessage, needRoom bool) error {
	if msg == nil {
		return invalidMessage("message", errNilMessage)
	}
	if needRoom {
		if err := s.validate.Var(msg.RoomID, roomIDTag); err != nil {
			return invalidMessage("room_id", err)
		}
	}
	if err := s.validate.Var(msg.Content, contentTag); err != nil {
		return invalidMessage("content", err)
	}
	return nil
}

// stamp returns the current instant at the precision logs are stored with.
func (s *chatServiceImpl) stamp() time.Time {
	return s.now().Truncate(time.Millisecond)
}

func (s *chatServiceImpl) SendToGlobal(ctx context.Context, identity string, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	if err := s.checkIdentity(identity); err != nil {
		return nil, err
	}
	if err := s.checkMessage(msg, false); err != nil {
		return nil, err
	}

	out := *msg
	out.Sender = identity
	out.Kind = domain.KindGlobal
	out.TimeStamp = s.stamp()

	audit.Log(ctx, audit.ActionSendGlobal, identity, pubsub.ChannelPublic, "global message stamped")
	return &out, nil
}

func (s *chatServiceImpl) Invite(ctx context.Context, identity string, msg *domain.ChatMessage) error {
	if err := s.checkIdentity(identity); err != nil {
		return err
	}
	if err := s.checkMessage(msg, false); err != nil {
		return err
	}
	if err := s.validate.Var(msg.Receiver, roomIDTag); err != nil {
		return invalidMessage("receiver", err)
	}

	out := *msg
	out.Sender = identity
	out.Kind = domain.KindInvite

	topic := pubsub.RoomChannel(out.Receiver)
	if err := s.publisher.Publish(ctx, topic, &out); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldTopic, topic).Msg("failed to publish invitation")
		return publishError(topic, err)
	}

	audit.Log(ctx, audit.ActionInvite, identity, out.Receiver, "invitation sent")
	return nil
}

func (s *chatServiceImpl) SendToRoom(ctx context.Context, identity string, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	if err := s.checkIdentity(identity); err != nil {
		return nil, err
	}
	if err := s.checkMessage(msg, true); err != nil {
		return nil, err
	}

	out := *msg
	out.Sender = identity
	out.Kind = domain.KindRoom
	out.TimeStamp = s.stamp()

	// Never publish what was not stored.
	id, err := s.store.Insert(ctx, domain.NewChatLog(&out))
	if err != nil {
		return nil, persistenceError("insert chat log", err)
	}

	topic := pubsub.RoomChannel(out.RoomID)
	if err := s.publisher.Publish(ctx, topic, &out); err != nil {
		// The log is durable; subscribers that missed the push read it from history.
		l.Warn().Err(err).Str(log.FieldTopic, topic).Str(log.FieldLogID, id).Msg("room message stored but not published")
		audit.LogWithDetail(ctx, audit.ActionPublishFailed, identity, out.RoomID, err.Error(), "room publish failed")
		return &out, nil
	}

	audit.Log(ctx, audit.ActionSendRoom, identity, out.RoomID, "room message sent")
	return &out, nil
}

func (s *chatServiceImpl) GetHistory(ctx context.Context, roomID, viewer string) ([]domain.ChatLog, error) {
	if err := s.checkIdentity(viewer); err != nil {
		return nil, err
	}
	if err := s.validate.Var(roomID, roomIDTag); err != nil {
		return nil, invalidMessage("room_id", err)
	}

	logs, err := s.store.ScanByRoom(ctx, roomID)
	if err != nil {
		return nil, persistenceError("scan room", err)
	}

	marked := 0
	for i := range logs {
		if logs[i].Sender == viewer || logs[i].IsLooked == domain.Looked {
			continue
		}
		// Rows updated before a failure stay read; a retry converges.
		if err := s.store.UpdateReadFlag(ctx, logs[i].ID, domain.Looked); err != nil {
			return nil, persistenceError("mark read", err)
		}
		logs[i].IsLooked = domain.Looked
		marked++
	}

	if marked > 0 {
		audit.LogWithDetail(ctx, audit.ActionReadHistory, viewer, roomID, strconv.Itoa(marked), "history read")
	}
	return logs, nil
}

func (s *chatServiceImpl) LastMessagesForReceiver(ctx context.Context, viewer string) ([]domain.ChatLog, error) {
	if err := s.checkIdentity(viewer); err != nil {
		return nil, err
	}

	logs, err := s.store.AggregateLastPerKey(ctx, store.LastPerKeyQuery{
		Filter:  store.Filter{Receiver: viewer},
		GroupBy: store.GroupBySender,
		Fields:  receiverFields,
	})
	if err != nil {
		return nil, persistenceError("last message per sender", err)
	}
	return logs, nil
}

func (s *chatServiceImpl) LastMessagesForRoom(ctx context.Context, viewer string) ([]domain.ChatLog, error) {
	if err := s.checkIdentity(viewer); err != nil {
		return nil, err
	}

	logs, err := s.store.AggregateLastPerKey(ctx, store.LastPerKeyQuery{
		Filter:  store.Filter{RoomContains: viewer},
		GroupBy: store.GroupByRoom,
		Fields:  roomFields,
	})
	if err != nil {
		return nil, persistenceError("last message per room", err)
	}
	return logs, nil
}

func (s *chatServiceImpl) UnreadCountsForRoom(ctx context.Context, viewer string) ([]domain.UnreadCount, error) {
	if err := s.checkIdentity(viewer); err != nil {
		return nil, err
	}

	counts, err := s.store.AggregateCount(ctx, store.CountQuery{
		Filter:  store.Filter{RoomContains: viewer, IsLooked: store.Flag(domain.NotLooked)},
		GroupBy: store.GroupByRoom,
	})
	if err != nil {
		return nil, persistenceError("unread count per room", err)
	}

	return lo.Map(counts, func(c store.GroupCount, _ int) domain.UnreadCount {
		return domain.UnreadCount{ChatRoomID: c.Key, UnreadMessages: c.Count}
	}), nil
}

// InboxSummary runs the per-room queries concurrently.
func (s *chatServiceImpl) InboxSummary(ctx context.Context, viewer string) (*domain.InboxSummary, error) {
	if err := s.checkIdentity(viewer); err != nil {
		return nil, err
	}

	var (
		rooms  []domain.ChatLog
		unread []domain.UnreadCount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rooms, err = s.LastMessagesForRoom(gctx, viewer)
		return err
	})
	g.Go(func() error {
		var err error
		unread, err = s.UnreadCountsForRoom(gctx, viewer)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := lo.SumBy(unread, func(u domain.UnreadCount) int64 {
		return u.UnreadMessages
	})
	return &domain.InboxSummary{
		Rooms:       rooms,
		Unread:      unread,
		TotalUnread: total,
	}, nil
}
