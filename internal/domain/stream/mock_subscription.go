package stream

import (
	"context"
	"sync"
)

// MockSubscription is an in-memory Subscription. Messages are handed out in the order they
// were pushed, and every commit is recorded.
type MockSubscription struct {
	topic string

	messages chan Message
	closed   chan struct{}

	mu          sync.Mutex
	commits     []Message
	closeCalled uint
	closeOnce   sync.Once
}

// NewMockSubscription returns a MockSubscription on the given topic that can buffer up to
// capacity messages that have not been fetched yet.
func NewMockSubscription(topic string, capacity int) *MockSubscription {
	return &MockSubscription{
		topic:    topic,
		messages: make(chan Message, capacity),
		closed:   make(chan struct{}),
	}
}

// Push makes a Message available for fetching. Offsets are left as given.
func (m *MockSubscription) Push(msg Message) {
	if len(msg.Topic) == 0 {
		msg.Topic = m.topic
	}
	m.messages <- msg
}

func (m *MockSubscription) Topic() string {
	return m.topic
}

func (m *MockSubscription) Fetch(ctx context.Context) (Message, error) {
	select {
	case <-m.closed:
		return Message{}, ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-m.closed:
		return Message{}, ErrClosed
	case msg := <-m.messages:
		return msg, nil
	}
}

func (m *MockSubscription) Commit(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, msg)
	return nil
}

func (m *MockSubscription) Close() error {
	m.mu.Lock()
	m.closeCalled++
	m.mu.Unlock()
	m.closeOnce.Do(func() {
		close(m.closed)
	})
	return nil
}

// Commits returns a copy of all the committed Messages, in commit order
func (m *MockSubscription) Commits() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.commits...)
}

// CloseCalled returns how many times Close was called
func (m *MockSubscription) CloseCalled() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalled
}
