package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgrelay/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Create a config file with a bot token and a first route",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			if canAutoOnboard() {
				if !runAutoOnboard(cfgPath) {
					os.Exit(1)
				}
				return
			}
			if err := runOnboard(cfgPath); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Onboarding cancelled.")
					return
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
}

type onboardAnswers struct {
	token        string
	source       string
	destinations string
	mode         string
}

func runOnboard(cfgPath string) error {
	if _, err := os.Stat(cfgPath); err == nil {
		overwrite := false
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite it?", cfgPath)).
			Value(&overwrite)
		if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Keeping existing config.")
			return nil
		}
	}

	a := onboardAnswers{mode: "copy"}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("From @BotFather. The bot must be a member of every source and destination chat.").
				EchoMode(huh.EchoModePassword).
				Value(&a.token).
				Validate(requireNonEmpty("bot token")),
			huh.NewInput().
				Title("Source chat").
				Description("@username, t.me link or numeric id").
				Value(&a.source).
				Validate(requireNonEmpty("source chat")),
			huh.NewText().
				Title("Destination chats").
				Description("One per line, or comma separated").
				Value(&a.destinations).
				Validate(func(s string) error {
					if len(splitList(s)) == 0 {
						return errors.New("at least one destination is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Delivery mode").
				Options(
					huh.NewOption("Copy (re-send as new messages)", "copy"),
					huh.NewOption("Forward (keep \"Forwarded from\")", "forward"),
				).
				Value(&a.mode),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg := buildOnboardConfig(a)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	printOnboardSummary(cfgPath, cfg)
	return nil
}

func buildOnboardConfig(a onboardAnswers) *config.Config {
	cfg := config.Default()
	cfg.Telegram.Token = strings.TrimSpace(a.token)
	cfg.FromTo[strings.TrimSpace(a.source)] = config.FlexibleStringSlice(splitList(a.destinations))

	copyOn := a.mode != "forward"
	forwardOn := a.mode == "forward"
	cfg.Copy = &copyOn
	cfg.Forward = &forwardOn
	return cfg
}

func printOnboardSummary(cfgPath string, cfg *config.Config) {
	fmt.Printf("\nConfig written to %s\n", cfgPath)
	for src, dests := range cfg.FromTo {
		fmt.Printf("  %s -> %s\n", src, strings.Join(dests, ", "))
	}
	fmt.Println("\nCheck it with: tgrelay doctor")
	fmt.Println("Start with:    tgrelay run")
}

func requireNonEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

// splitList splits on newlines and commas, dropping blanks.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == ',' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
