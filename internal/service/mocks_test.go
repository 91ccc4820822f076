package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/weiawesome/chatlog-service/internal/domain"
	"github.com/weiawesome/chatlog-service/internal/store"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, msg *domain.ChatMessage) error {
	args := m.Called(ctx, topic, msg)
	return args.Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Insert(ctx context.Context, cl *domain.ChatLog) (string, error) {
	args := m.Called(ctx, cl)
	return args.String(0), args.Error(1)
}

func (m *mockStore) ScanByRoom(ctx context.Context, roomID string) ([]domain.ChatLog, error) {
	args := m.Called(ctx, roomID)
	logs, _ := args.Get(0).([]domain.ChatLog)
	return logs, args.Error(1)
}

func (m *mockStore) UpdateReadFlag(ctx context.Context, id string, flag domain.IsLooked) error {
	args := m.Called(ctx, id, flag)
	return args.Error(0)
}

func (m *mockStore) AggregateLastPerKey(ctx context.Context, q store.LastPerKeyQuery) ([]domain.ChatLog, error) {
	args := m.Called(ctx, q)
	logs, _ := args.Get(0).([]domain.ChatLog)
	return logs, args.Error(1)
}

func (m *mockStore) AggregateCount(ctx context.Context, q store.CountQuery) ([]store.GroupCount, error) {
	args := m.Called(ctx, q)
	counts, _ := args.Get(0).([]store.GroupCount)
	return counts, args.Error(1)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type published struct {
	Topic string
	Msg   domain.ChatMessage
}

// recordingPublisher keeps every published message.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, msg *domain.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{Topic: topic, Msg: *msg})
	return nil
}

func (p *recordingPublisher) Sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

// countingStore counts writes that reach the wrapped store.
type countingStore struct {
	store.ChatLogStore
	mu      sync.Mutex
	inserts int
	updates int
}

func (c *countingStore) Insert(ctx context.Context, cl *domain.ChatLog) (string, error) {
	c.mu.Lock()
	c.inserts++
	c.mu.Unlock()
	return c.ChatLogStore.Insert(ctx, cl)
}

func (c *countingStore) UpdateReadFlag(ctx context.Context, id string, flag domain.IsLooked) error {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	return c.ChatLogStore.UpdateReadFlag(ctx, id, flag)
}

func (c *countingStore) Writes() (inserts, updates int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserts, c.updates
}
