package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/titanous/json5"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON5.
// Numeric chat IDs such as -1001234567890 are kept as their decimal form.
// The json5 decoder hands over the raw array, so it is decoded as JSON5 too.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json5.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json5.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// ModeLive is the only supported run mode: relay new messages as they arrive.
const ModeLive = "live"

// Config is the root configuration for the relay.
type Config struct {
	Mode      string                         `json:"mode,omitempty"`    // "live" (default)
	Copy      *bool                          `json:"copy,omitempty"`    // re-upload instead of forward (default true)
	Forward   *bool                          `json:"forward,omitempty"` // native forward (default false)
	FromTo    map[string]FlexibleStringSlice `json:"from_to"`
	Telegram  TelegramConfig                 `json:"telegram"`
	Relay     RelayConfig                    `json:"relay,omitempty"`
	Telemetry TelemetryConfig                `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// RelayConfig tunes the dispatch core.
type RelayConfig struct {
	QueueSize                 int `json:"queue_size,omitempty"`                  // inbound event buffer (default 256)
	MaxConcurrentDestinations int `json:"max_concurrent_destinations,omitempty"` // per-event fan-out bound (default 8)
}

// TelemetryConfig configures OpenTelemetry export for delivery spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection (local collectors)
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "tgrelay")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// CopyEnabled reports the effective "copy" flag (absent = true).
func (c *Config) CopyEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Copy == nil || *c.Copy
}

// ForwardEnabled reports the effective "forward" flag (absent = false).
func (c *Config) ForwardEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Forward != nil && *c.Forward
}

// Routes returns a copy of the source → destinations mapping.
func (c *Config) Routes() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.FromTo))
	for src, dests := range c.FromTo {
		out[src] = append([]string(nil), dests...)
	}
	return out
}

// Identifiers returns every distinct chat identifier referenced by the routes, sorted.
func (c *Config) Identifiers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	for src, dests := range c.FromTo {
		seen[strings.TrimSpace(src)] = true
		for _, d := range dests {
			seen[strings.TrimSpace(d)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mode = src.Mode
	c.Copy = src.Copy
	c.Forward = src.Forward
	c.FromTo = src.FromTo
	c.Telegram = src.Telegram
	c.Relay = src.Relay
	c.Telemetry = src.Telemetry
}

// ConfigurationError reports structurally invalid or contradictory configuration.
// It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
