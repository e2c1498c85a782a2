package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/nextlevelbuilder/tgrelay/internal/config"
)

// autoOnboardEnv is read for non-interactive setup (e.g. Docker).
type autoOnboardEnv struct {
	Token        string   `env:"TGRELAY_TELEGRAM_TOKEN"`
	Source       string   `env:"TGRELAY_SOURCE"`
	Destinations []string `env:"TGRELAY_DESTINATIONS" envSeparator:","`
	Mode         string   `env:"TGRELAY_MODE" envDefault:"copy"`
}

// canAutoOnboard returns true if a token and a route are present in the
// environment, indicating the user wants non-interactive configuration.
func canAutoOnboard() bool {
	return os.Getenv("TGRELAY_TELEGRAM_TOKEN") != "" && os.Getenv("TGRELAY_SOURCE") != ""
}

// runAutoOnboard performs non-interactive setup from environment variables.
// Returns true on success, false on fatal error.
func runAutoOnboard(cfgPath string) bool {
	fmt.Println("Auto-onboard: environment variables detected, running non-interactive setup...")

	var e autoOnboardEnv
	if err := env.Parse(&e); err != nil {
		fmt.Printf("  Error: %v\n", err)
		return false
	}
	if e.Mode != "copy" && e.Mode != "forward" {
		fmt.Printf("  Error: TGRELAY_MODE must be copy or forward, got %q\n", e.Mode)
		return false
	}

	cfg := buildOnboardConfig(onboardAnswers{
		token:        e.Token,
		source:       e.Source,
		destinations: strings.Join(e.Destinations, "\n"),
		mode:         e.Mode,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Error: %v\n", err)
		return false
	}

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("  Existing config at %s will be replaced\n", cfgPath)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Printf("  Error saving config: %v\n", err)
		return false
	}
	printOnboardSummary(cfgPath, cfg)
	return true
}
