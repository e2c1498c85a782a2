package relay

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

// Mode selects how items reach a destination.
type Mode string

const (
	ModeCopy    Mode = "copy"    // re-upload as a new message
	ModeForward Mode = "forward" // native forward, keeps attribution
	ModeNone    Mode = "none"    // neither enabled: nothing is delivered
)

// ResolveMode applies the precedence rule: copy wins when both are enabled.
func ResolveMode(copyOn, forwardOn bool) Mode {
	switch {
	case copyOn:
		return ModeCopy
	case forwardOn:
		return ModeForward
	default:
		return ModeNone
	}
}

// State is the terminal state of one delivery to one destination.
type State string

const (
	StateDelivered          State = "delivered"
	StatePartiallyDelivered State = "partially_delivered" // batch failed, fallback delivered some items
	StateFailed             State = "failed"
	StateSkipped            State = "skipped" // nothing to deliver, or mode none
)

// Outcome records what happened at one destination.
type Outcome struct {
	Destination bus.ChatHandle
	State       State
	Fallback    bool // per-item fallback ran
	Attempted   int  // fallback items attempted
	Delivered   int  // fallback items delivered
	Err         error
}

// Report collects the outcomes of one inbound event, in destination order.
type Report struct {
	Ref      string
	Outcomes []Outcome
}

// Outcome returns the outcome for dest.
func (r Report) Outcome(dest bus.ChatHandle) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Destination == dest {
			return o, true
		}
	}
	return Outcome{}, false
}

const defaultMaxConcurrentDestinations = 8

// Engine executes copy/forward delivery with per-item fallback for albums.
// Each destination is delivered independently; a failure at one never
// reaches another.
type Engine struct {
	sender  Sender
	mode    Mode
	batcher *Batcher
	workers int
	tracer  trace.Tracer
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithMaxConcurrentDestinations bounds the per-event destination fan-out.
func WithMaxConcurrentDestinations(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithBatcher replaces the default batcher.
func WithBatcher(b *Batcher) EngineOption {
	return func(e *Engine) { e.batcher = b }
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates a delivery engine.
func NewEngine(sender Sender, mode Mode, opts ...EngineOption) *Engine {
	e := &Engine{
		sender:  sender,
		mode:    mode,
		batcher: NewBatcher(MaxBatchSize),
		workers: defaultMaxConcurrentDestinations,
		tracer:  otel.Tracer("github.com/nextlevelbuilder/tgrelay/internal/relay"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the active delivery mode.
func (e *Engine) Mode() Mode { return e.mode }

// DeliverItem delivers a standalone message to every destination.
func (e *Engine) DeliverItem(ctx context.Context, item bus.InboundItem, dests []bus.ChatHandle) Report {
	log := loggerFrom(ctx).With("source", item.SourceChat, "message_id", item.ItemID, "mode", string(e.mode))
	outcomes := e.fanOut(ctx, dests, func(ctx context.Context, dest bus.ChatHandle) Outcome {
		ctx, span := e.tracer.Start(ctx, "relay.deliver_item", trace.WithAttributes(
			attribute.Int64("relay.source", int64(item.SourceChat)),
			attribute.Int64("relay.destination", int64(dest)),
			attribute.Int("relay.message_id", item.ItemID),
			attribute.String("relay.mode", string(e.mode)),
		))
		defer span.End()

		out := e.deliverItemTo(ctx, item, dest, log.With("dest", dest))
		endSpan(span, out)
		return out
	})
	return Report{Ref: item.Ref(), Outcomes: outcomes}
}

func (e *Engine) deliverItemTo(ctx context.Context, item bus.InboundItem, dest bus.ChatHandle, log *slog.Logger) Outcome {
	out := Outcome{Destination: dest}

	var op string
	var err error
	switch e.mode {
	case ModeForward:
		op = "forward_message"
		err = e.sender.ForwardMessage(ctx, dest, item)
	case ModeCopy:
		switch {
		case item.HasMedia():
			op = "send_media"
			err = e.sender.SendMedia(ctx, dest, item, item.Text)
		case item.Text != "":
			// Link previews only for text-only messages.
			op = "send_text"
			err = e.sender.SendText(ctx, dest, item, true)
		default:
			log.Debug("empty message skipped")
			out.State = StateSkipped
			return out
		}
	default:
		out.State = StateSkipped
		return out
	}

	if err != nil {
		out.State = StateFailed
		out.Err = &DeliveryError{Op: op, Source: item.SourceChat, Destination: dest, Ref: item.Ref(), Err: err}
		log.Error("single delivery failed", "op", op, "error", err)
		return out
	}
	out.State = StateDelivered
	log.Info("single delivered", "op", op)
	return out
}

// DeliverGroup delivers a completed album to every destination.
func (e *Engine) DeliverGroup(ctx context.Context, group bus.MediaGroup, dests []bus.ChatHandle) Report {
	log := loggerFrom(ctx).With("source", group.SourceChat, "group_id", group.GroupID, "items", len(group.Items), "mode", string(e.mode))

	var batches []DeliveryBatch
	caption := e.batcher.Caption(group)
	if e.mode == ModeCopy {
		batches = e.batcher.Partition(group)
	}

	outcomes := e.fanOut(ctx, dests, func(ctx context.Context, dest bus.ChatHandle) Outcome {
		ctx, span := e.tracer.Start(ctx, "relay.deliver_group", trace.WithAttributes(
			attribute.Int64("relay.source", int64(group.SourceChat)),
			attribute.Int64("relay.destination", int64(dest)),
			attribute.String("relay.group_id", group.GroupID),
			attribute.Int("relay.items", len(group.Items)),
			attribute.Int("relay.batches", len(batches)),
			attribute.String("relay.mode", string(e.mode)),
		))
		defer span.End()

		out := e.deliverGroupTo(ctx, group, batches, caption, dest, log.With("dest", dest))
		endSpan(span, out)
		return out
	})
	return Report{Ref: group.Ref(), Outcomes: outcomes}
}

func (e *Engine) deliverGroupTo(ctx context.Context, group bus.MediaGroup, batches []DeliveryBatch, caption string, dest bus.ChatHandle, log *slog.Logger) Outcome {
	var err error
	switch e.mode {
	case ModeForward:
		if err = e.sender.ForwardGroup(ctx, dest, group); err == nil {
			log.Info("album forwarded")
			return Outcome{Destination: dest, State: StateDelivered}
		}
		err = &DeliveryError{Op: "forward_group", Source: group.SourceChat, Destination: dest, Ref: group.Ref(), Err: err}

	case ModeCopy:
		if len(batches) == 0 {
			log.Warn("album has no media items, nothing to send")
			return Outcome{Destination: dest, State: StateSkipped}
		}
		for i, b := range batches {
			if sendErr := e.sender.SendBatch(ctx, dest, b.Items, b.Caption); sendErr != nil {
				err = &DeliveryError{
					Op: "send_batch", Source: group.SourceChat, Destination: dest,
					Ref: fmt.Sprintf("%s#%d", group.Ref(), i), Err: sendErr,
				}
				break
			}
			log.Info("album batch sent", "kind", string(b.Class), "count", len(b.Items), "batch", i+1, "of", len(batches))
		}
		if err == nil {
			log.Info("album copied", "batches", len(batches))
			return Outcome{Destination: dest, State: StateDelivered}
		}

	default:
		return Outcome{Destination: dest, State: StateSkipped}
	}

	log.Error("album delivery failed, falling back to single items", "error", err)
	out := e.fallback(ctx, group, caption, dest, log)
	out.Err = err
	return out
}

// fallback sends every media item of the group on its own. The caption goes
// on the first attempted item only. It never returns an error: each item
// failure is logged and the loop moves on.
func (e *Engine) fallback(ctx context.Context, group bus.MediaGroup, caption string, dest bus.ChatHandle, log *slog.Logger) Outcome {
	out := Outcome{Destination: dest, Fallback: true}
	pending := caption
	for _, it := range group.Items {
		if !it.HasMedia() {
			// Text-only members only ever contribute the caption.
			continue
		}
		out.Attempted++
		itemCaption := pending
		pending = ""
		if err := e.sender.SendMedia(ctx, dest, it, itemCaption); err != nil {
			log.Error("album item delivery failed", "message_id", it.ItemID, "error", err)
			continue
		}
		out.Delivered++
	}

	out.State = StatePartiallyDelivered
	if out.Delivered == 0 {
		out.State = StateFailed
	}
	log.Warn("album fallback finished", "attempted", out.Attempted, "delivered", out.Delivered)
	return out
}

// fanOut runs fn once per destination, concurrently and bounded by the
// engine's worker count. Results keep the order of dests.
func (e *Engine) fanOut(ctx context.Context, dests []bus.ChatHandle, fn func(context.Context, bus.ChatHandle) Outcome) []Outcome {
	outcomes := make([]Outcome, len(dests))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, dest := range dests {
		g.Go(func() error {
			outcomes[i] = fn(ctx, dest)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func endSpan(span trace.Span, out Outcome) {
	span.SetAttributes(
		attribute.String("relay.state", string(out.State)),
		attribute.Bool("relay.fallback", out.Fallback),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
	}
	if out.State == StateFailed {
		span.SetStatus(codes.Error, "delivery failed")
	}
}

type loggerKey struct{}

// withLogger attaches a request-scoped logger to ctx.
func withLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
