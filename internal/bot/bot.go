// Package bot serves the interactive Telegram commands: alarm management,
// watchlist, simulated portfolio, charts and settings.
package bot

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"coin-alarm-bot/internal/config"
	"coin-alarm-bot/internal/guard"
)

// Bot long-polls Telegram and dispatches updates through the guard to Handlers.
type Bot struct {
	tb       *tele.Bot
	handlers *Handlers
	logger   zerolog.Logger
}

// New connects to the Bot API and registers middleware and handlers. A nil guard
// disables flood protection.
func New(cfg config.TelegramConfig, handlers *Handlers, g *guard.Guard, logger zerolog.Logger) (*Bot, error) {
	logger = logger.With().Str("component", "telebot").Logger()

	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		URL:    cfg.APIBase,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		Client: &http.Client{Timeout: cfg.PollTimeout + cfg.RequestTimeout},
		OnError: func(err error, c tele.Context) {
			ev := logger.Error().Err(err)
			if c != nil && c.Sender() != nil {
				ev = ev.Int64("user_id", c.Sender().ID)
			}
			ev.Msg("handler failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	if g != nil {
		tb.Use(g.Middleware())
	}
	handlers.Register(tb)

	return &Bot{tb: tb, handlers: handlers, logger: logger}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.handlers.base = ctx

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.logger.Info().Str("username", b.tb.Me.Username).Msg("bot polling started")
		b.tb.Start()
	}()

	<-ctx.Done()
	b.tb.Stop()
	<-done
	b.logger.Info().Msg("bot polling stopped")
	return nil
}
