// Package relay is the album-aware fan-out core: chat resolution, routing,
// media batching, delivery with per-item fallback and event dispatch.
//
// The platform session is injected as a Transport; the core holds no global
// state and performs no I/O of its own.
package relay

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
	"github.com/nextlevelbuilder/tgrelay/internal/config"
)

// Options carries hooks that do not belong in the config file.
type Options struct {
	// OnReport observes every finished delivery.
	OnReport func(bus.Event, Report)
}

// Start resolves routing, subscribes the transport to the configured sources
// and relays events until the transport stops. Startup errors
// (ConfigurationError, ResolutionError) are returned before anything is
// subscribed. An unexpected end of the session is returned as TransportError.
func Start(ctx context.Context, cfg *config.Config, transport Transport) error {
	return StartWithOptions(ctx, cfg, transport, Options{})
}

// StartWithOptions is Start with extra hooks.
func StartWithOptions(ctx context.Context, cfg *config.Config, transport Transport, opts Options) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	mode := ResolveMode(cfg.CopyEnabled(), cfg.ForwardEnabled())
	switch {
	case mode == ModeNone:
		slog.Warn("neither copy nor forward is enabled, messages will not be delivered")
	case cfg.CopyEnabled() && cfg.ForwardEnabled():
		slog.Warn("both copy and forward are enabled, copy takes precedence")
	}

	resolver := NewChatResolver(transport)
	routes, err := BuildRoutingTable(ctx, resolver, cfg.Routes())
	if err != nil {
		return err
	}

	msgBus := bus.New(cfg.Relay.QueueSize)
	transport.Subscribe(routes.Sources(), msgBus)

	engine := NewEngine(transport, mode, WithMaxConcurrentDestinations(cfg.Relay.MaxConcurrentDestinations))
	dispatcher := NewDispatcher(routes, engine, msgBus)
	if opts.OnReport != nil {
		dispatcher.OnReport(opts.OnReport)
	}

	// In-flight deliveries finish even after shutdown begins.
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(context.WithoutCancel(ctx))
	}()

	slog.Info("listening sources", "sources", routes.Sources(), "mode", string(mode))
	runErr := transport.Run(ctx)

	msgBus.Close()
	<-done

	if runErr != nil && ctx.Err() == nil {
		return &TransportError{Err: runErr}
	}
	return nil
}
