package cmd

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
	"github.com/nextlevelbuilder/tgrelay/internal/channels/telegram"
	"github.com/nextlevelbuilder/tgrelay/internal/config"
	"github.com/nextlevelbuilder/tgrelay/internal/relay"
	"github.com/nextlevelbuilder/tgrelay/internal/tracing"
)

var watchConfig bool

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Relay messages from the configured source chats (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runRelay()
		},
	}
	cmd.Flags().BoolVar(&watchConfig, "watch", false, "restart the relay when the config file changes")
	return cmd
}

func runRelay() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
			slog.Info("create one with: tgrelay onboard")
		}
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("telemetry flush failed", "error", err)
		}
	}()

	var changes <-chan struct{}
	if watchConfig {
		w, err := config.NewWatcher(cfgPath)
		if err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		} else {
			go w.Run(ctx)
			changes = w.Changes()
			slog.Info("watching config for changes", "path", cfgPath)
		}
	}

	slog.Info("tgrelay starting", "version", Version, "config", cfgPath, "routes", len(cfg.FromTo))

	if err := serve(ctx, cfgPath, cfg, changes); err != nil {
		slog.Error("relay stopped", "error", err)
		var trErr *relay.TransportError
		if errors.As(err, &trErr) {
			slog.Info("the telegram session ended; restart tgrelay to reconnect")
		}
		stop()
		os.Exit(1)
	}
	slog.Info("graceful shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// serve runs the relay until ctx is done or it fails. A config change stops
// the running relay and starts a new one with freshly resolved routes.
func serve(ctx context.Context, cfgPath string, cfg *config.Config, changes <-chan struct{}) error {
	for {
		channel, err := telegram.New(cfg.Telegram)
		if err != nil {
			return err
		}

		cycleCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- relay.StartWithOptions(cycleCtx, cfg, channel, relay.Options{OnReport: logReport})
		}()

		next, err := awaitChange(cfgPath, cfg, changes, errCh)
		cancel()
		if next == nil {
			return err
		}

		// Let the old relay drain before the new one polls.
		if err := <-errCh; err != nil {
			slog.Warn("relay ended with error during restart", "error", err)
		}
		cfg = next
		slog.Info("config changed, relay restarted", "routes", len(cfg.FromTo))
	}
}

// awaitChange blocks until the relay ends (nil config) or a valid, different
// config is available. Invalid edits keep the current relay running.
func awaitChange(cfgPath string, cfg *config.Config, changes <-chan struct{}, errCh <-chan error) (*config.Config, error) {
	for {
		select {
		case err := <-errCh:
			return nil, err
		case <-changes:
			next, err := loadConfig(cfgPath)
			if err != nil {
				slog.Error("config reload rejected, keeping current routes", "error", err)
				continue
			}
			if next.Hash() == cfg.Hash() {
				slog.Debug("config unchanged, reload skipped")
				continue
			}
			if telemetryChanged(cfg.Telemetry, next.Telemetry) {
				slog.Warn("telemetry settings take effect on the next process start")
			}
			return next, nil
		}
	}
}

func telemetryChanged(a, b config.TelemetryConfig) bool {
	return a.Enabled != b.Enabled || a.Endpoint != b.Endpoint || a.Protocol != b.Protocol ||
		a.Insecure != b.Insecure || a.ServiceName != b.ServiceName || !maps.Equal(a.Headers, b.Headers)
}

// logReport summarises one event's deliveries.
func logReport(ev bus.Event, r relay.Report) {
	var delivered, partial, failed, skipped int
	for _, o := range r.Outcomes {
		switch o.State {
		case relay.StateDelivered:
			delivered++
		case relay.StatePartiallyDelivered:
			partial++
		case relay.StateFailed:
			failed++
		case relay.StateSkipped:
			skipped++
		}
	}
	level := slog.LevelDebug
	if failed > 0 || partial > 0 {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "delivery finished",
		"ref", r.Ref, "kind", ev.Kind.String(),
		"delivered", delivered, "partial", partial, "failed", failed, "skipped", skipped,
	)
}
