package bus

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultQueueSize is the inbound buffer used when none is configured.
const DefaultQueueSize = 256

// MessageBus carries inbound events from the transport to the dispatcher.
// Publishing blocks while the buffer is full. Safe for concurrent use.
type MessageBus struct {
	inbound chan Event
	mu      sync.RWMutex
	closed  bool
}

// New creates a bus with the given inbound buffer size (<= 0 = default).
func New(queueSize int) *MessageBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &MessageBus{inbound: make(chan Event, queueSize)}
}

// PublishInbound queues an event. Events published after Close are dropped.
func (b *MessageBus) PublishInbound(ev Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		slog.Warn("bus closed, inbound event dropped", "kind", ev.Kind.String(), "source", ev.Source())
		return false
	}
	b.inbound <- ev
	return true
}

// ConsumeInbound blocks until an event is available, ctx is done or the bus
// is closed and drained. ok is false in the last two cases.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (Event, bool) {
	select {
	case <-ctx.Done():
		return Event{}, false
	case ev, ok := <-b.inbound:
		return ev, ok
	}
}

// Close stops accepting events. Queued events remain consumable.
func (b *MessageBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.inbound)
}
