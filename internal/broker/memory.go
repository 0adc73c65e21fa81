package broker

import (
	"context"
	"strings"
	"sync"

	"tollgrid/internal/logger"
	"tollgrid/pkg/errors"
)

// MemoryBus is an in-process bus with MQTT-style topic filter matching.
// Delivery is synchronous in publish order, which keeps tests deterministic;
// handlers must not assume cross-topic ordering beyond that.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger logger.Logger
	closed bool
}

func NewMemoryBus(log logger.Logger) *MemoryBus {
	return &MemoryBus{logger: log}
}

func (b *MemoryBus) Connect(ctx context.Context) error {
	return nil
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if MatchTopic(sub.filter, topic) {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, sub, topic, payload)
	}
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, sub subscription, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("Panic in message handler",
				"topic", topic,
				"error", errors.RecoverPanic(r),
			)
		}
	}()
	if err := sub.handler(ctx, topic, payload); err != nil {
		b.logger.Warnw("Message handler error, message dropped",
			"topic", topic,
			"error", err,
		)
	}
}

func (b *MemoryBus) Subscribe(filter string, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{filter: filter, handler: handler})
	return nil
}

func (b *MemoryBus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
	b.closed = true
	return nil
}

// MatchTopic reports whether an MQTT topic filter matches a concrete topic.
// `+` matches exactly one level, `#` matches any number of trailing levels.
func MatchTopic(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
