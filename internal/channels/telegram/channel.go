package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/tgrelay/internal/album"
	"github.com/nextlevelbuilder/tgrelay/internal/bus"
	"github.com/nextlevelbuilder/tgrelay/internal/channels"
	"github.com/nextlevelbuilder/tgrelay/internal/config"
)

// errUpdatesClosed is returned by Run when Telegram ends the update stream
// while the relay still wants updates.
var errUpdatesClosed = errors.New("telegram updates channel closed")

// stopTimeout bounds how long Stop waits for the polling goroutine.
const stopTimeout = 10 * time.Second

// Channel connects to Telegram via the Bot API using long polling.
// It implements relay.Transport.
type Channel struct {
	*channels.BaseChannel
	bot     *telego.Bot
	config  config.TelegramConfig
	limiter *channels.DestinationLimiter

	mu         sync.Mutex
	bus        *bus.MessageBus
	albums     *album.Assembler
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling goroutine exits
}

var _ channels.Channel = (*Channel)(nil)

// New creates a new Telegram channel from config.
func New(cfg config.TelegramConfig) (*Channel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram"),
		bot:         bot,
		config:      cfg,
		limiter:     channels.NewDestinationLimiter(cfg.RateLimit.GlobalPerSecond, cfg.RateLimit.PerChatPerMinute),
	}, nil
}

// Ping checks the token by calling getMe and returns the bot's username.
func (c *Channel) Ping(ctx context.Context) (string, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("telegram getMe: %w", err)
	}
	return me.Username, nil
}

// ResolveIdentifier looks up a public "@username" chat and returns its ID.
// The bot must be able to see the chat.
func (c *Channel) ResolveIdentifier(ctx context.Context, identifier string) (int64, error) {
	info, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.Username(identifier)})
	if err != nil {
		return 0, fmt.Errorf("telegram getChat %s: %w", identifier, err)
	}
	return info.ID, nil
}

// Subscribe fixes the accepted source chats and the bus inbound events are
// published to. Grouped messages are also assembled into albums.
func (c *Channel) Subscribe(sources []bus.ChatHandle, msgBus *bus.MessageBus) {
	ids := make([]int64, len(sources))
	for i, s := range sources {
		ids[i] = int64(s)
	}
	c.SetSources(ids)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = msgBus
	c.albums = album.NewAssembler(c.config.AlbumWindow(), func(g bus.MediaGroup) {
		slog.Debug("telegram album assembled", "chat_id", g.SourceChat, "group_id", g.GroupID, "items", len(g.Items))
		msgBus.PublishInbound(bus.GroupEvent(g))
	})
}

// Run polls until ctx is done or Telegram closes the update stream.
// Pending albums are flushed to the bus before it returns.
func (c *Channel) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	done := c.pollDone
	c.mu.Unlock()

	var runErr error
	select {
	case <-ctx.Done():
	case <-done:
		if ctx.Err() == nil {
			runErr = errUpdatesClosed
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := c.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus == nil {
		return errors.New("telegram channel started before Subscribe")
	}

	slog.Info("starting telegram bot (polling mode)")

	// Stop() cancels this context to cleanly shut down long polling.
	pollCtx, cancel := context.WithCancel(ctx)

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: c.config.PollTimeout,
		AllowedUpdates: []string{
			"message",
			"channel_post",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	done, msgBus, albums := c.pollDone, c.bus, c.albums
	go func() {
		defer close(done)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				c.handleUpdate(update, msgBus, albums)
			}
		}
	}()

	return nil
}

// Stop shuts down long polling, waits for the polling goroutine to exit and
// flushes albums still inside their window.
func (c *Channel) Stop(ctx context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	c.mu.Lock()
	cancel, done, albums := c.pollCancel, c.pollDone, c.albums
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Wait for the polling goroutine to fully exit so that
	// Telegram releases the getUpdates lock before a new instance starts.
	var err error
	if done != nil {
		select {
		case <-done:
			slog.Info("telegram bot stopped")
		case <-ctx.Done():
			slog.Warn("telegram polling goroutine did not exit within timeout")
			err = ctx.Err()
		}
	}

	if albums != nil {
		albums.Stop()
	}
	return err
}
