package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/pkg/log"
)

// Key layout:
//
//	log:<ulid>                            JSON record
//	idx:room:<len>:<room id>\x00<ulid>    empty, room scan index
//
// The byte length keeps one room's prefix from matching a longer room id.
const (
	logPrefix     = "log:"
	roomIdxPrefix = "idx:room:"
	roomIdxSep    = "\x00"
)

const maxConflictRetries = 3

type badgerRecord struct {
	ID         string `json:"id"`
	ChatRoomID string `json:"room"`
	Content    string `json:"content"`
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	TimeStamp  int64  `json:"ts"`
	IsLooked   string `json:"looked"`
}

func recordFromLog(l *domain.ChatLog) badgerRecord {
	return badgerRecord{
		ID:         l.ID,
		ChatRoomID: l.ChatRoomID,
		Content:    l.Content,
		Sender:     l.Sender,
		Receiver:   l.Receiver,
		TimeStamp:  l.TimeStamp.UnixMilli(),
		IsLooked:   string(l.IsLooked),
	}
}

func (r badgerRecord) toDomain() domain.ChatLog {
	return domain.ChatLog{
		ID:         r.ID,
		ChatRoomID: r.ChatRoomID,
		Content:    r.Content,
		Sender:     r.Sender,
		Receiver:   r.Receiver,
		TimeStamp:  time.UnixMilli(r.TimeStamp).UTC(),
		IsLooked:   domain.IsLooked(r.IsLooked),
	}
}

func logKey(id string) []byte {
	return []byte(logPrefix + id)
}

func roomIndexPrefix(roomID string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s%s", roomIdxPrefix, len(roomID), roomID, roomIdxSep))
}

// OpenBadger opens a Badger database at path, or purely in memory.
func OpenBadger(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return db, nil
}

// BadgerStore implements ChatLogStore on an embedded Badger database.
// Aggregations scan the whole log.
type BadgerStore struct {
	db  *badger.DB
	ids *idGenerator
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, ids: newIDGenerator()}
}

// Insert writes the record and its room index entry in one transaction.
func (s *BadgerStore) Insert(ctx context.Context, cl *domain.ChatLog) (string, error) {
	l := log.Ctx(ctx)

	if err := prepareInsert(cl, s.ids); err != nil {
		return "", err
	}

	data, err := json.Marshal(recordFromLog(cl))
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(logKey(cl.ID), data); err != nil {
			return err
		}
		return txn.Set(append(roomIndexPrefix(cl.ChatRoomID), cl.ID...), nil)
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, cl.ChatRoomID).Msg("failed to insert chat log")
		return "", err
	}

	l.Debug().Str(log.FieldLogID, cl.ID).Str(log.FieldRoomID, cl.ChatRoomID).Msg("chat log inserted")
	return cl.ID, nil
}

// ScanByRoom walks the room index, which is ordered by ULID.
func (s *BadgerStore) ScanByRoom(ctx context.Context, roomID string) ([]domain.ChatLog, error) {
	l := log.Ctx(ctx)

	prefix := roomIndexPrefix(roomID)
	logs := make([]domain.ChatLog, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			logs = append(logs, rec.toDomain())
		}
		return nil
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to scan room")
		return nil, err
	}
	return logs, nil
}

// UpdateReadFlag rewrites the record with the new flag. Transactions that
// lose a write conflict are re-run.
func (s *BadgerStore) UpdateReadFlag(ctx context.Context, id string, flag domain.IsLooked) error {
	l := log.Ctx(ctx)

	if !flag.Valid() {
		return fmt.Errorf("invalid read flag %q", flag)
	}

	update := func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if rec.IsLooked == string(flag) {
			return nil
		}
		rec.IsLooked = string(flag)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		return txn.Set(logKey(id), data)
	}

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = s.db.Update(update); !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil && !errors.Is(err, ErrLogNotFound) {
		l.Error().Err(err).Str(log.FieldLogID, id).Msg("failed to update read flag")
	}
	return err
}

// AggregateLastPerKey keeps the newest matching record per group.
func (s *BadgerStore) AggregateLastPerKey(ctx context.Context, q LastPerKeyQuery) ([]domain.ChatLog, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	latest := make(map[string]domain.ChatLog)
	err := s.scanMatching(ctx, q.Filter, func(cl domain.ChatLog) {
		key := q.GroupBy.Of(&cl)
		if cur, ok := latest[key]; !ok || newer(&cl, &cur) {
			latest[key] = cl
		}
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("group_by", string(q.GroupBy)).Msg("failed to aggregate last logs")
		return nil, err
	}

	rows := lo.Values(latest)
	sort.Slice(rows, func(i, j int) bool { return newer(&rows[i], &rows[j]) })

	return lo.Map(rows, func(cl domain.ChatLog, _ int) domain.ChatLog {
		return Project(cl, q.Fields)
	}), nil
}

// AggregateCount counts matching records per group.
func (s *BadgerStore) AggregateCount(ctx context.Context, q CountQuery) ([]GroupCount, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	err := s.scanMatching(ctx, q.Filter, func(cl domain.ChatLog) {
		counts[q.GroupBy.Of(&cl)]++
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("group_by", string(q.GroupBy)).Msg("failed to count logs")
		return nil, err
	}

	out := lo.MapToSlice(counts, func(k string, n int64) GroupCount {
		return GroupCount{Key: k, Count: n}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) scanMatching(ctx context.Context, f Filter, fn func(domain.ChatLog)) error {
	prefix := []byte(logPrefix)

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec badgerRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			cl := rec.toDomain()
			if f.Match(&cl) {
				fn(cl)
			}
		}
		return nil
	})
}

func getRecord(txn *badger.Txn, id string) (badgerRecord, error) {
	var rec badgerRecord

	item, err := txn.Get(logKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return rec, ErrLogNotFound
		}
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}
