package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// DefaultPath is used when neither --config nor $TGRELAY_CONFIG is set.
const DefaultPath = "tgrelay.config.json"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Mode:   ModeLive,
		FromTo: map[string]FlexibleStringSlice{},
		Telegram: TelegramConfig{
			AlbumWindowMS: defaultAlbumWindowMS,
			PollTimeout:   defaultPollTimeout,
			RateLimit: RateLimitConfig{
				GlobalPerSecond:  defaultGlobalPerSecond,
				PerChatPerMinute: defaultPerChatPerMinute,
			},
		},
		Relay: RelayConfig{
			QueueSize:                 256,
			MaxConcurrentDestinations: 8,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "tgrelay",
		},
	}
}

// envOverrides holds values that may only come from the environment or that
// need parsing before they are applied.
type envOverrides struct {
	Copy    string `env:"TGRELAY_COPY"`
	Forward string `env:"TGRELAY_FORWARD"`
	OTLP    string `env:"TGRELAY_OTLP_ENDPOINT"`
}

// Load reads config from a JSON5 file, then overlays env vars.
// Unlike most services the relay has nothing to do without routes, so a
// missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigurationError{Field: "path", Reason: fmt.Sprintf("config file %s not found", path)}
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigurationError{Reason: "parse config", Err: err}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() error {
	if err := env.Parse(&c.Telegram); err != nil {
		return &ConfigurationError{Field: "env", Reason: "parse telegram env", Err: err}
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return &ConfigurationError{Field: "env", Reason: "parse env", Err: err}
	}
	envBool := func(key, raw string, dst **bool) error {
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return &ConfigurationError{Field: key, Reason: fmt.Sprintf("not a boolean: %q", raw)}
		}
		*dst = &v
		return nil
	}
	if err := envBool("TGRELAY_COPY", ov.Copy, &c.Copy); err != nil {
		return err
	}
	if err := envBool("TGRELAY_FORWARD", ov.Forward, &c.Forward); err != nil {
		return err
	}
	if ov.OTLP != "" {
		c.Telemetry.Endpoint = ov.OTLP
		c.Telemetry.Enabled = true
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.FromTo == nil {
		c.FromTo = map[string]FlexibleStringSlice{}
	}
	if c.Telegram.AlbumWindowMS == 0 {
		c.Telegram.AlbumWindowMS = def.Telegram.AlbumWindowMS
	}
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = def.Telegram.PollTimeout
	}
	if c.Telegram.RateLimit.GlobalPerSecond == 0 {
		c.Telegram.RateLimit.GlobalPerSecond = def.Telegram.RateLimit.GlobalPerSecond
	}
	if c.Telegram.RateLimit.PerChatPerMinute == 0 {
		c.Telegram.RateLimit.PerChatPerMinute = def.Telegram.RateLimit.PerChatPerMinute
	}
	if c.Relay.QueueSize == 0 {
		c.Relay.QueueSize = def.Relay.QueueSize
	}
	if c.Relay.MaxConcurrentDestinations == 0 {
		c.Relay.MaxConcurrentDestinations = def.Relay.MaxConcurrentDestinations
	}
	if c.Telemetry.Protocol == "" {
		c.Telemetry.Protocol = def.Telemetry.Protocol
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
}

// Validate checks the structural rules the relay relies on.
// Chat identifiers are only resolved later, by the routing table.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Mode != ModeLive {
		return &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unsupported mode %q (only %q)", c.Mode, ModeLive)}
	}
	if len(c.FromTo) == 0 {
		return &ConfigurationError{Field: "from_to", Reason: "no routes configured"}
	}
	for src, dests := range c.FromTo {
		if strings.TrimSpace(src) == "" {
			return &ConfigurationError{Field: "from_to", Reason: "empty source identifier"}
		}
		if len(dests) == 0 {
			return &ConfigurationError{Field: "from_to." + src, Reason: "no destinations"}
		}
		for _, d := range dests {
			if strings.TrimSpace(d) == "" {
				return &ConfigurationError{Field: "from_to." + src, Reason: "empty destination identifier"}
			}
		}
	}
	if c.Telegram.Token == "" {
		return &ConfigurationError{Field: "telegram.token", Reason: "bot token missing (set it in the file or TGRELAY_TELEGRAM_TOKEN)"}
	}
	if c.Telegram.AlbumWindowMS < 0 || c.Telegram.PollTimeout < 0 ||
		c.Telegram.RateLimit.GlobalPerSecond < 0 || c.Telegram.RateLimit.PerChatPerMinute < 0 {
		return &ConfigurationError{Field: "telegram", Reason: "negative timing or rate limit value"}
	}
	if c.Relay.QueueSize < 0 || c.Relay.MaxConcurrentDestinations < 0 {
		return &ConfigurationError{Field: "relay", Reason: "negative queue size or concurrency"}
	}
	if p := c.Telemetry.Protocol; c.Telemetry.Enabled && p != "grpc" && p != "http" {
		return &ConfigurationError{Field: "telemetry.protocol", Reason: fmt.Sprintf("unknown protocol %q", p)}
	}
	return nil
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config (used to skip no-op reloads).
func (c *Config) Hash() string {
	c.mu.RLock()
	data, _ := json.Marshal(c)
	c.mu.RUnlock()
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// MaskedCopy returns a copy of the config with the bot token masked.
func (c *Config) MaskedCopy() *Config {
	cp := &Config{}
	cp.ReplaceFrom(c)
	if cp.Telegram.Token != "" {
		cp.Telegram.Token = "***"
	}
	return cp
}
