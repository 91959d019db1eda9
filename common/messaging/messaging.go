// Package messaging provides abstractions for message broker communication.
// Components publish and subscribe through these interfaces so that the
// sensor and alarm code is not coupled to a specific broker.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to a message broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional key-value pairs for message headers.
	Metadata map[string]string

	// Timestamp is when the message was received.
	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	// Unsubscribe stops receiving messages on this subscription.
	Unsubscribe() error

	// Subject returns the subject this subscription is listening to.
	Subject() string
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends a fire-and-forget message to the specified subject.
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	// QueueSubscribe creates a queue subscription. Messages are
	// load-balanced across subscribers in the same queue group.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// RTT measures the round trip to the broker.
	RTT() (time.Duration, error)

	// IsConnected returns true if the client is connected to the broker.
	IsConnected() bool

	// Drain gracefully closes the connection, letting in-flight messages complete.
	Drain() error
}
