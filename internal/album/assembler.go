// Package album reassembles media groups that the Bot API delivers as bursts
// of separate messages sharing a media_group_id.
package album

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

// DefaultWindow is the quiet period after the last item before a group is
// considered complete.
const DefaultWindow = 500 * time.Millisecond

type groupKey struct {
	chat  bus.ChatHandle
	group string
}

type pendingGroup struct {
	items []bus.InboundItem
	seen  map[int]bool
	timer *time.Timer
}

// Assembler buffers grouped items and emits each group once no new item has
// arrived for the window. Safe for concurrent use.
type Assembler struct {
	window     time.Duration
	onComplete func(bus.MediaGroup)

	mu      sync.Mutex
	groups  map[groupKey]*pendingGroup
	stopped bool
	wg      sync.WaitGroup
}

// NewAssembler creates an assembler calling onComplete for every finished
// group. onComplete runs on a timer goroutine and must not block for long.
func NewAssembler(window time.Duration, onComplete func(bus.MediaGroup)) *Assembler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Assembler{
		window:     window,
		onComplete: onComplete,
		groups:     make(map[groupKey]*pendingGroup),
	}
}

// Add buffers a grouped item and restarts its group's window.
// Ungrouped items, duplicates and items added after Stop are ignored.
func (a *Assembler) Add(item bus.InboundItem) bool {
	if !item.IsGrouped() {
		return false
	}
	key := groupKey{chat: item.SourceChat, group: item.GroupID}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}

	g, ok := a.groups[key]
	if !ok {
		g = &pendingGroup{seen: make(map[int]bool)}
		a.groups[key] = g
		g.timer = time.AfterFunc(a.window, func() { a.expire(key, g) })
	} else {
		g.timer.Reset(a.window)
	}
	if g.seen[item.ItemID] {
		slog.Debug("duplicate album item ignored", "group", key.group, "message_id", item.ItemID)
		return false
	}
	g.seen[item.ItemID] = true
	g.items = append(g.items, item)
	return true
}

// Pending returns the number of groups still inside their window.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// expire is the timer callback. A stale timer for a group already flushed
// by Stop finds nothing to do.
func (a *Assembler) expire(key groupKey, g *pendingGroup) {
	a.mu.Lock()
	if a.groups[key] != g {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	a.emit(key, g)
}

// Stop flushes every pending group immediately, in no particular order, and
// waits for in-progress callbacks. Later Adds are ignored.
func (a *Assembler) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		a.wg.Wait()
		return
	}
	a.stopped = true
	pending := a.groups
	a.groups = make(map[groupKey]*pendingGroup)
	for _, g := range pending {
		g.timer.Stop()
	}
	a.mu.Unlock()

	for key, g := range pending {
		a.emit(key, g)
	}
	a.wg.Wait()
}

func (a *Assembler) emit(key groupKey, g *pendingGroup) {
	items := g.items
	sort.SliceStable(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	if a.onComplete != nil {
		a.onComplete(bus.MediaGroup{SourceChat: key.chat, GroupID: key.group, Items: items})
	}
}
