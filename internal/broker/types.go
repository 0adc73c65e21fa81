package broker

import (
	"context"
)

// HandlerFunc processes one inbound message. A returned error means the
// message was dropped; the bus offers no negative acknowledgement, so the
// error is only logged.
type HandlerFunc func(ctx context.Context, topic string, payload []byte) error

// Client is a pub/sub connection. All publishes are fire-and-forget at
// QoS 1 semantics: at-least-once, unordered across topics.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(filter string, handler HandlerFunc) error
	Connected() bool
	Close() error
}
