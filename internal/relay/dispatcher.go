package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

// backlogWarnSize is the per-source backlog length that triggers a warning.
// Queues are unbounded so a busy source never stalls intake for the others.
const backlogWarnSize = 64

// Dispatcher consumes inbound events and hands them to the engine.
// Each source gets its own worker so events from one chat keep their order
// while a slow album upload never holds up another chat.
type Dispatcher struct {
	routes *RoutingTable
	engine *Engine
	bus    *bus.MessageBus

	// onReport observes every finished delivery (tests, metrics).
	onReport func(bus.Event, Report)
}

// NewDispatcher creates a dispatcher over a built routing table.
func NewDispatcher(routes *RoutingTable, engine *Engine, msgBus *bus.MessageBus) *Dispatcher {
	return &Dispatcher{routes: routes, engine: engine, bus: msgBus}
}

// OnReport registers a callback invoked after each delivered event.
// Must be set before Run.
func (d *Dispatcher) OnReport(fn func(bus.Event, Report)) { d.onReport = fn }

// Run consumes the bus until it is closed (or ctx is done), then waits for
// the per-source workers to drain their queues.
func (d *Dispatcher) Run(ctx context.Context) {
	queues := make(map[bus.ChatHandle]*sourceQueue, d.routes.Len())
	var wg sync.WaitGroup
	for _, src := range d.routes.Sources() {
		q := newSourceQueue()
		queues[src] = q
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				ev, ok := q.pop()
				if !ok {
					return
				}
				d.handle(ctx, ev)
			}
		}()
	}

	slog.Info("dispatcher started", "sources", d.routes.Len(), "mode", string(d.engine.Mode()))
	for {
		ev, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		q, known := queues[ev.Source()]
		if !known {
			slog.Debug("event from unconfigured source ignored", "source", ev.Source(), "kind", ev.Kind.String())
			continue
		}
		if n := q.push(ev); n == backlogWarnSize {
			slog.Warn("source backlog growing", "source", ev.Source(), "pending", n)
		}
	}

	for _, q := range queues {
		q.close()
	}
	wg.Wait()
	slog.Info("dispatcher stopped")
}

// sourceQueue is an unbounded FIFO feeding one source worker.
type sourceQueue struct {
	mu     sync.Mutex
	events []bus.Event
	closed bool
	notify chan struct{}
}

func newSourceQueue() *sourceQueue {
	return &sourceQueue{notify: make(chan struct{}, 1)}
}

// push appends ev and returns the backlog length.
func (q *sourceQueue) push(ev bus.Event) int {
	q.mu.Lock()
	q.events = append(q.events, ev)
	n := len(q.events)
	q.mu.Unlock()
	q.wake()
	return n
}

func (q *sourceQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *sourceQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until an event is queued. It returns false once the queue is
// closed and drained.
func (q *sourceQueue) pop() (bus.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events[0] = bus.Event{}
			q.events = q.events[1:]
			q.mu.Unlock()
			return ev, true
		}
		if q.closed {
			q.mu.Unlock()
			return bus.Event{}, false
		}
		q.mu.Unlock()
		<-q.notify
	}
}

// handle classifies one event. Item events for grouped messages are dropped:
// the group event that follows is authoritative and includes them.
func (d *Dispatcher) handle(ctx context.Context, ev bus.Event) {
	dests := d.routes.DestinationsFor(ev.Source())
	if len(dests) == 0 {
		return
	}

	log := slog.Default().With("delivery_id", uuid.NewString()[:8])
	ctx = withLogger(ctx, log)

	var report Report
	switch {
	case ev.Kind == bus.EventItem && ev.Item != nil:
		item := *ev.Item
		if item.IsGrouped() {
			log.Debug("skip single of album", "group_id", item.GroupID, "message_id", item.ItemID)
			return
		}
		report = d.engine.DeliverItem(ctx, item, dests)

	case ev.Kind == bus.EventGroup && ev.Group != nil:
		group := *ev.Group
		log.Info("album received", "source", group.SourceChat, "group_id", group.GroupID, "items", len(group.Items), "dests", len(dests))
		report = d.engine.DeliverGroup(ctx, group, dests)

	default:
		log.Warn("malformed inbound event", "kind", ev.Kind.String())
		return
	}

	if d.onReport != nil {
		d.onReport(ev, report)
	}
}
