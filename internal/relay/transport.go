package relay

import (
	"context"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

// Lookup resolves a non-numeric chat identifier ("@name") to a numeric ID.
// It may perform network I/O.
type Lookup interface {
	ResolveIdentifier(ctx context.Context, identifier string) (int64, error)
}

// Sender is the outbound half of the transport. Every method may fail with a
// transport-level error; the engine treats all of them as recoverable.
type Sender interface {
	SendText(ctx context.Context, dest bus.ChatHandle, item bus.InboundItem, linkPreview bool) error
	SendMedia(ctx context.Context, dest bus.ChatHandle, item bus.InboundItem, caption string) error
	SendBatch(ctx context.Context, dest bus.ChatHandle, items []bus.InboundItem, caption string) error
	ForwardMessage(ctx context.Context, dest bus.ChatHandle, item bus.InboundItem) error
	ForwardGroup(ctx context.Context, dest bus.ChatHandle, group bus.MediaGroup) error
}

// Transport is the platform session consumed by Start.
type Transport interface {
	Lookup
	Sender

	// Subscribe restricts inbound events to sources and publishes them on msgBus.
	// Must be called before Run.
	Subscribe(sources []bus.ChatHandle, msgBus *bus.MessageBus)

	// Run receives updates until ctx is done or the session ends. Pending
	// albums are flushed to the bus before it returns.
	Run(ctx context.Context) error
}
