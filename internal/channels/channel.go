// Package channels provides the platform session abstraction the relay runs on.
// A channel owns one connection to a messaging platform: it receives updates,
// publishes them to the message bus and performs outbound sends.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-runewidth"
)

// Channel defines the lifecycle every platform implementation satisfies.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram").
	Name() string

	// Start begins receiving updates. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel and waits for the receive loop.
	Stop(ctx context.Context) error

	// IsRunning returns whether the channel is actively receiving.
	IsRunning() bool
}

// BaseChannel provides shared functionality for channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name    string
	running atomic.Bool
	sources map[int64]bool
}

// NewBaseChannel creates a new BaseChannel with the given name.
func NewBaseChannel(name string) *BaseChannel {
	return &BaseChannel{name: name}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// SetSources replaces the set of chats whose updates are accepted.
// Must be called before Start.
func (c *BaseChannel) SetSources(ids []int64) {
	c.sources = make(map[int64]bool, len(ids))
	for _, id := range ids {
		c.sources[id] = true
	}
}

// IsSource reports whether updates from chatID should be accepted.
// No sources configured means nothing is accepted.
func (c *BaseChannel) IsSource(chatID int64) bool { return c.sources[chatID] }

// Truncate shortens s to maxWidth display cells, appending "..." if truncated.
// Newlines are flattened so previews stay on one log line.
func Truncate(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, maxWidth, "...")
}
