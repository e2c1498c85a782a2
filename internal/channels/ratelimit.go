package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of per-chat limiters kept in memory.
	maxTrackedKeys = 4096

	// limiterIdleTTL is how long an unused per-chat limiter survives pruning.
	limiterIdleTTL = 10 * time.Minute

	// maxChatBurst bounds the per-chat burst; one full album fits in it.
	maxChatBurst = 10
)

type chatLimiter struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// DestinationLimiter paces outbound calls below the platform's flood limits:
// a global rate shared by every send plus a per-chat rate.
// Safe for concurrent use.
type DestinationLimiter struct {
	global    *rate.Limiter
	chatLimit rate.Limit
	chatBurst int

	mu    sync.Mutex
	chats map[int64]*chatLimiter
}

// NewDestinationLimiter creates a limiter. Non-positive values disable the
// corresponding limit.
func NewDestinationLimiter(globalPerSecond float64, perChatPerMinute int) *DestinationLimiter {
	l := &DestinationLimiter{
		global:    rate.NewLimiter(rate.Inf, 0),
		chatLimit: rate.Inf,
		chats:     make(map[int64]*chatLimiter),
	}
	if globalPerSecond > 0 {
		burst := max(int(globalPerSecond), 1)
		l.global = rate.NewLimiter(rate.Limit(globalPerSecond), burst)
	}
	if perChatPerMinute > 0 {
		l.chatLimit = rate.Every(time.Minute / time.Duration(perChatPerMinute))
		l.chatBurst = min(perChatPerMinute, maxChatBurst)
	}
	return l
}

// Wait blocks until n calls' worth of budget is available for chatID, or ctx
// is done. A media group counts one token per item. Requests above a limiter's
// burst are clamped to it.
func (l *DestinationLimiter) Wait(ctx context.Context, chatID int64, n int) error {
	if n <= 0 {
		n = 1
	}
	if chat := l.chat(chatID); chat != nil {
		if err := chat.WaitN(ctx, clampBurst(chat, n)); err != nil {
			return fmt.Errorf("rate limit chat %d: %w", chatID, err)
		}
	}
	if err := l.global.WaitN(ctx, clampBurst(l.global, n)); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// Tracked returns the number of per-chat limiters currently held.
func (l *DestinationLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chats)
}

func (l *DestinationLimiter) chat(chatID int64) *rate.Limiter {
	if l.chatLimit == rate.Inf {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if e, ok := l.chats[chatID]; ok {
		e.lastUsed = now
		return e.lim
	}

	// Prune idle entries when approaching the cap
	if len(l.chats) >= maxTrackedKeys {
		for k, e := range l.chats {
			if now.Sub(e.lastUsed) >= limiterIdleTTL {
				delete(l.chats, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(l.chats) >= maxTrackedKeys {
			for k := range l.chats {
				delete(l.chats, k)
				break
			}
		}
	}

	e := &chatLimiter{lim: rate.NewLimiter(l.chatLimit, l.chatBurst), lastUsed: now}
	l.chats[chatID] = e
	return e.lim
}

func clampBurst(lim *rate.Limiter, n int) int {
	if lim.Limit() == rate.Inf {
		return n
	}
	return min(n, max(lim.Burst(), 1))
}
