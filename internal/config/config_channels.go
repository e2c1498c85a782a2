package config

import "time"

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	Token         string          `json:"token"                     env:"TGRELAY_TELEGRAM_TOKEN"`
	Proxy         string          `json:"proxy,omitempty"           env:"TGRELAY_TELEGRAM_PROXY"`
	AlbumWindowMS int             `json:"album_window_ms,omitempty" env:"TGRELAY_TELEGRAM_ALBUM_WINDOW_MS"` // quiet window closing an album burst (default 500)
	PollTimeout   int             `json:"poll_timeout,omitempty"`                                          // long polling timeout in seconds (default 30)
	RateLimit     RateLimitConfig `json:"rate_limit,omitempty"`
}

// RateLimitConfig bounds outbound Bot API calls.
// Telegram allows ~30 messages/s overall and ~20 messages/min per group.
type RateLimitConfig struct {
	GlobalPerSecond  float64 `json:"global_per_second,omitempty"`   // default 25
	PerChatPerMinute int     `json:"per_chat_per_minute,omitempty"` // default 20
}

const (
	defaultAlbumWindowMS    = 500
	defaultPollTimeout      = 30
	defaultGlobalPerSecond  = 25
	defaultPerChatPerMinute = 20
)

// AlbumWindow returns the album quiet window as a duration.
func (t TelegramConfig) AlbumWindow() time.Duration {
	ms := t.AlbumWindowMS
	if ms <= 0 {
		ms = defaultAlbumWindowMS
	}
	return time.Duration(ms) * time.Millisecond
}
