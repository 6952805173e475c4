// stream models a partitioned, at-least-once message stream: each partition is a sequential
// cursor, and anything fetched but not committed before a crash gets delivered again.
package stream

import (
	"context"
	"errors"
	"fmt"
)

type Partition int

type Offset int64

// Message is a raw message as received from a Subscription
type Message struct {
	Topic     string
	Partition Partition
	Offset    Offset
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// Position returns a human readable position of the Message, for logging
func (m *Message) Position() string {
	return fmt.Sprintf("%s/%d@%d", m.Topic, m.Partition, m.Offset)
}

// Subscription is a consumer group membership on a single topic.
type Subscription interface {
	// Topic the Subscription is on
	Topic() string

	// Fetch blocks until the next Message is available, the context is done, or the
	// Subscription is closed (ErrClosed).
	//
	// Messages of one partition are returned in order.
	Fetch(ctx context.Context) (Message, error)

	// Commit marks the given Message, and every Message before it in the same partition, as
	// processed for the consumer group.
	Commit(ctx context.Context, msg Message) error

	// Close releases the underlying connection. Fetch calls after Close return ErrClosed.
	Close() error
}

// ErrClosed is returned by Fetch once a Subscription has been closed
var ErrClosed = errors.New("subscription closed")
