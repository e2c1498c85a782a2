package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgrelay/internal/channels"
	"github.com/nextlevelbuilder/tgrelay/internal/channels/telegram"
	"github.com/nextlevelbuilder/tgrelay/internal/config"
	"github.com/nextlevelbuilder/tgrelay/internal/relay"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, bot credentials and chat resolution",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("tgrelay doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	fmt.Println()
	fmt.Println("  Relay:")
	fmt.Printf("    %-12s %s\n", "Mode:", relay.ResolveMode(cfg.CopyEnabled(), cfg.ForwardEnabled()))
	fmt.Printf("    %-12s %d ms\n", "Album:", cfg.Telegram.AlbumWindowMS)
	fmt.Printf("    %-12s %.0f/s global, %d/min per chat\n", "Rate limit:",
		cfg.Telegram.RateLimit.GlobalPerSecond, cfg.Telegram.RateLimit.PerChatPerMinute)
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-12s %s (%s)\n", "Telemetry:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Printf("    %-12s disabled\n", "Telemetry:")
	}

	fmt.Println()
	fmt.Println("  Telegram:")
	if cfg.Telegram.Token == "" {
		fmt.Printf("    %-12s (not configured)\n", "Token:")
		return
	}
	fmt.Printf("    %-12s %s\n", "Token:", maskToken(cfg.Telegram.Token))

	ch, err := telegram.New(cfg.Telegram)
	if err != nil {
		fmt.Printf("    %-12s INIT FAILED (%s)\n", "Bot:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	username, err := ch.Ping(ctx)
	if err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Bot:", err)
		return
	}
	fmt.Printf("    %-12s @%s\n", "Bot:", username)

	ids := cfg.Identifiers()
	if len(ids) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("  Chats:")
	resolver := relay.NewChatResolver(ch)
	for _, id := range ids {
		handle, err := resolver.Resolve(ctx, id)
		label := channels.Truncate(id, 28)
		if err != nil {
			fmt.Printf("    %-30s FAILED (%s)\n", label+":", err)
			continue
		}
		fmt.Printf("    %-30s %d\n", label+":", handle)
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}
