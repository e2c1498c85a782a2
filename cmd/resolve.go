package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgrelay/internal/channels/telegram"
	"github.com/nextlevelbuilder/tgrelay/internal/config"
	"github.com/nextlevelbuilder/tgrelay/internal/relay"
)

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <identifier>...",
		Short: "Print the numeric chat handle for usernames, links or ids",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if !runResolve(args) {
				os.Exit(1)
			}
		},
	}
}

// runResolve prints one "identifier<TAB>handle" line per argument.
// Returns false if any identifier failed.
func runResolve(identifiers []string) bool {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	if cfg.Telegram.Token == "" {
		fmt.Fprintln(os.Stderr, "Error: telegram.token is not configured")
		return false
	}

	ch, err := telegram.New(cfg.Telegram)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolver := relay.NewChatResolver(ch)
	ok := true
	for _, id := range identifiers {
		handle, err := resolver.Resolve(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\t%v\n", id, err)
			ok = false
			continue
		}
		fmt.Printf("%s\t%d\n", id, handle)
	}
	return ok
}
