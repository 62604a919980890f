package message_broaker

import "context"

// Message is one delivery from a queue. Exactly one of Ack or Nack must be called.
type Message struct {
	Body []byte
	Ack  func() error
	// Nack rejects the message; requeue puts it back for another consumer.
	Nack func(requeue bool) error
}

type MessageBroker interface {
	// Publish sends message to the broker's exchange under routingKey.
	Publish(ctx context.Context, routingKey string, message []byte) error
	// Consume delivers messages from queue until ctx is done or the broker closes.
	Consume(ctx context.Context, queue string) (<-chan Message, error)
	Close() error
}
