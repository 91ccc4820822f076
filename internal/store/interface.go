package store

import (
	"context"
	"errors"

	"github.com/weiawesome/chatlog-service/internal/domain"
)

var ErrLogNotFound = errors.New("chat log not found")

// ChatLogStore is the durable, append-only chat log. Apart from the read
// flag, stored logs are never modified or deleted.
type ChatLogStore interface {
	// Insert assigns an ID to log, stores it and returns the ID.
	Insert(ctx context.Context, log *domain.ChatLog) (string, error)
	// ScanByRoom returns every log of a room in insertion order.
	ScanByRoom(ctx context.Context, roomID string) ([]domain.ChatLog, error)
	// UpdateReadFlag sets the read flag of one log.
	UpdateReadFlag(ctx context.Context, id string, flag domain.IsLooked) error
	// AggregateLastPerKey returns the newest matching log of every group,
	// reduced to the requested fields. Groups are ordered newest first.
	AggregateLastPerKey(ctx context.Context, q LastPerKeyQuery) ([]domain.ChatLog, error)
	// AggregateCount counts matching logs per group, ordered by key.
	AggregateCount(ctx context.Context, q CountQuery) ([]GroupCount, error)
	Close() error
}
