package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/pkg/database"
	"github.com/weiawesome/chatlog-service/pkg/log"
)

// ChatLogModel is the GORM model for chat_logs.
type ChatLogModel struct {
	ID         string    `gorm:"primaryKey;size:26"`
	ChatRoomID string    `gorm:"size:255;not null;index"`
	Content    string    `gorm:"type:text"`
	Sender     string    `gorm:"size:128;not null;index"`
	Receiver   string    `gorm:"size:255;index"`
	TimeStamp  time.Time `gorm:"not null;index"`
	IsLooked   string    `gorm:"size:5;not null;default:FALSE;index"`
}

// TableName specifies the table name for GORM.
func (ChatLogModel) TableName() string {
	return "chat_logs"
}

// ToDomain converts the GORM model to a domain ChatLog.
func (m *ChatLogModel) ToDomain() domain.ChatLog {
	l := domain.ChatLog{
		ID:         m.ID,
		ChatRoomID: m.ChatRoomID,
		Content:    m.Content,
		Sender:     m.Sender,
		Receiver:   m.Receiver,
		IsLooked:   domain.IsLooked(m.IsLooked),
	}
	if !m.TimeStamp.IsZero() {
		l.TimeStamp = m.TimeStamp.UTC()
	}
	return l
}

// ChatLogToModel converts a domain ChatLog to the GORM model.
func ChatLogToModel(l *domain.ChatLog) *ChatLogModel {
	return &ChatLogModel{
		ID:         l.ID,
		ChatRoomID: l.ChatRoomID,
		Content:    l.Content,
		Sender:     l.Sender,
		Receiver:   l.Receiver,
		TimeStamp:  l.TimeStamp,
		IsLooked:   string(l.IsLooked),
	}
}

// GormStore implements ChatLogStore on a SQL database.
type GormStore struct {
	db  *gorm.DB
	ids *idGenerator
}

// NewGormStore creates a GORM-backed store. The chat_logs table must exist;
// see Migrate.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, ids: newIDGenerator()}
}

// Migrate creates or updates the chat_logs table.
func Migrate(db *gorm.DB) error {
	return database.AutoMigrate(db, &ChatLogModel{})
}

// Insert stores a new log.
func (s *GormStore) Insert(ctx context.Context, cl *domain.ChatLog) (string, error) {
	l := log.Ctx(ctx)

	if err := prepareInsert(cl, s.ids); err != nil {
		return "", err
	}

	if err := s.db.WithContext(ctx).Create(ChatLogToModel(cl)).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, cl.ChatRoomID).Msg("failed to insert chat log")
		return "", err
	}

	l.Debug().Str(log.FieldLogID, cl.ID).Str(log.FieldRoomID, cl.ChatRoomID).Msg("chat log inserted")
	return cl.ID, nil
}

// ScanByRoom returns every log of a room ordered by ID.
func (s *GormStore) ScanByRoom(ctx context.Context, roomID string) ([]domain.ChatLog, error) {
	l := log.Ctx(ctx)

	var models []ChatLogModel
	if err := s.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("id ASC").
		Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to scan room")
		return nil, err
	}

	return lo.Map(models, func(m ChatLogModel, _ int) domain.ChatLog {
		return m.ToDomain()
	}), nil
}

// UpdateReadFlag sets is_looked on a single row.
func (s *GormStore) UpdateReadFlag(ctx context.Context, id string, flag domain.IsLooked) error {
	l := log.Ctx(ctx)

	if !flag.Valid() {
		return fmt.Errorf("invalid read flag %q", flag)
	}

	result := s.db.WithContext(ctx).Model(&ChatLogModel{}).
		Where("id = ?", id).
		Update("is_looked", string(flag))
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldLogID, id).Msg("failed to update read flag")
		return result.Error
	}
	if result.RowsAffected == 0 {
		// MySQL reports unchanged rows as unaffected.
		var count int64
		if err := s.db.WithContext(ctx).Model(&ChatLogModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrLogNotFound
		}
	}
	return nil
}

// AggregateLastPerKey ranks matching rows per group with ROW_NUMBER and keeps
// the first of each partition, so every projected field comes from one row.
func (s *GormStore) AggregateLastPerKey(ctx context.Context, q LastPerKeyQuery) ([]domain.ChatLog, error) {
	l := log.Ctx(ctx)

	if err := q.Validate(); err != nil {
		return nil, err
	}

	ranked := s.applyFilter(s.db.WithContext(ctx).Model(&ChatLogModel{}), q.Filter).
		Select(fmt.Sprintf("*, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY time_stamp DESC, id DESC) AS rn", q.GroupBy))

	columns := lo.Map(lo.Uniq(q.Fields), func(f Field, _ int) string { return string(f) })

	var models []ChatLogModel
	if err := s.db.WithContext(ctx).
		Table("(?) AS ranked", ranked).
		Select(columns).
		Where("rn = 1").
		Order("time_stamp DESC, id DESC").
		Find(&models).Error; err != nil {
		l.Error().Err(err).Str("group_by", string(q.GroupBy)).Msg("failed to aggregate last logs")
		return nil, err
	}

	return lo.Map(models, func(m ChatLogModel, _ int) domain.ChatLog {
		return Project(m.ToDomain(), q.Fields)
	}), nil
}

type groupCountRow struct {
	GroupKey string
	Total    int64
}

// AggregateCount counts matching rows per group.
func (s *GormStore) AggregateCount(ctx context.Context, q CountQuery) ([]GroupCount, error) {
	l := log.Ctx(ctx)

	if err := q.Validate(); err != nil {
		return nil, err
	}

	var rows []groupCountRow
	if err := s.applyFilter(s.db.WithContext(ctx).Model(&ChatLogModel{}), q.Filter).
		Select(fmt.Sprintf("%s AS group_key, COUNT(*) AS total", q.GroupBy)).
		Group(string(q.GroupBy)).
		Order(string(q.GroupBy)).
		Scan(&rows).Error; err != nil {
		l.Error().Err(err).Str("group_by", string(q.GroupBy)).Msg("failed to count logs")
		return nil, err
	}

	return lo.Map(rows, func(r groupCountRow, _ int) GroupCount {
		return GroupCount{Key: r.GroupKey, Count: r.Total}
	}), nil
}

// Close releases the database connections.
func (s *GormStore) Close() error {
	return database.Close(s.db)
}

func (s *GormStore) applyFilter(tx *gorm.DB, f Filter) *gorm.DB {
	if f.Receiver != "" {
		tx = tx.Where("receiver = ?", f.Receiver)
	}
	if f.RoomContains != "" {
		tx = tx.Where(s.containsClause(), f.RoomContains)
	}
	if f.IsLooked != nil {
		tx = tx.Where("is_looked = ?", string(*f.IsLooked))
	}
	return tx
}

// containsClause is a literal substring test; LIKE would treat % and _ in
// identities as wildcards.
func (s *GormStore) containsClause() string {
	if s.db.Dialector.Name() == "postgres" {
		return "STRPOS(chat_room_id, ?) > 0"
	}
	return "INSTR(chat_room_id, ?) > 0"
}

// CheckWindowFunctions fails on MySQL servers older than 8.0 (MariaDB older
// than 10.2), which lack the ROW_NUMBER() used by AggregateLastPerKey.
func CheckWindowFunctions(db *gorm.DB) error {
	if db.Dialector.Name() != "mysql" {
		return nil
	}
	var version string
	if err := db.Raw("SELECT VERSION()").Scan(&version).Error; err != nil {
		return fmt.Errorf("failed to read mysql version: %w", err)
	}
	if !mysqlHasWindowFunctions(version) {
		return fmt.Errorf("mysql %s has no window functions: need MySQL 8.0+ or MariaDB 10.2+", version)
	}
	return nil
}

// mysqlHasWindowFunctions parses versions such as "8.0.36", "5.7.44-log" and
// "10.6.12-MariaDB". MariaDB's "5.5.5-" compatibility prefix is skipped.
func mysqlHasWindowFunctions(version string) bool {
	version = strings.TrimPrefix(version, "5.5.5-")
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minorDigits := strings.TrimRightFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' })
	minor, err := strconv.Atoi(minorDigits)
	if err != nil {
		return false
	}
	if strings.Contains(strings.ToLower(version), "mariadb") {
		return major > 10 || (major == 10 && minor >= 2)
	}
	return major >= 8
}

// prepareInsert assigns the ID and normalizes the fields every store persists.
func prepareInsert(cl *domain.ChatLog, ids *idGenerator) error {
	if cl.ChatRoomID == "" {
		return fmt.Errorf("chat log has no room id")
	}
	id, err := ids.Generate()
	if err != nil {
		return err
	}
	cl.ID = id
	cl.TimeStamp = domain.NormalizeTime(cl.TimeStamp)
	if cl.IsLooked == "" {
		cl.IsLooked = domain.NotLooked
	}
	return nil
}
