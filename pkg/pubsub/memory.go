package pubsub

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("pubsub closed")

// MemoryPubSub is an in-process PubSub. It is the single-node driver and the
// bus used by tests.
type MemoryPubSub struct {
	subs       map[*memorySubscription]struct{}
	bufferSize int
	closed     bool
	mu         sync.RWMutex
}

type memorySubscription struct {
	key     string
	pattern bool
	ch      chan *Event
}

func (s *memorySubscription) matches(channel string) bool {
	if s.pattern {
		return MatchChannel(s.key, channel)
	}
	return s.key == channel
}

// NewMemoryPubSub creates an in-process bus whose subscriber channels hold
// bufferSize events each.
func NewMemoryPubSub(bufferSize int) *MemoryPubSub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &MemoryPubSub{
		subs:       make(map[*memorySubscription]struct{}),
		bufferSize: bufferSize,
	}
}

// Publish delivers event to every matching subscriber without blocking.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	for sub := range m.subs {
		if !sub.matches(channel) {
			continue
		}
		ev := *event
		ev.Channel = channel
		select {
		case sub.ch <- &ev:
		default:
			// Subscriber is full; best-effort delivery.
		}
	}
	return nil
}

// Subscribe subscribes to a specific channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.subscribe(ctx, channel, false)
}

// SubscribePattern subscribes to every channel matching pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return m.subscribe(ctx, pattern, true)
}

func (m *MemoryPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	sub := &memorySubscription{
		key:     key,
		pattern: pattern,
		ch:      make(chan *Event, m.bufferSize),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.removeLocked(sub)
		m.mu.Unlock()
	}()

	return sub.ch, nil
}

// Unsubscribe drops every subscription registered under channel.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sub := range m.subs {
		if sub.key == channel {
			m.removeLocked(sub)
		}
	}
	return nil
}

// Close drops every subscription. Further publishes fail with ErrClosed.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sub := range m.subs {
		m.removeLocked(sub)
	}
	m.closed = true
	return nil
}

// SubscriberCount returns the number of live subscriptions.
func (m *MemoryPubSub) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// removeLocked must be called with mu held for writing.
func (m *MemoryPubSub) removeLocked(sub *memorySubscription) {
	if _, ok := m.subs[sub]; !ok {
		return
	}
	delete(m.subs, sub)
	close(sub.ch)
}
