package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/guard"
	"coin-alarm-bot/internal/market"
	"coin-alarm-bot/internal/storage"
)

// UserRepository is the profile store used by the handlers.
type UserRepository interface {
	Get(ctx context.Context, userID string) (storage.Profile, error)
	Update(ctx context.Context, userID string, fn func(*storage.Profile) error) error
	Delete(ctx context.Context, userID string) error
}

// Options tune handler behaviour.
type Options struct {
	MaxAlarmsPerUser int
	RSIPeriod        int
	USDEURRate       float64
	RequestTimeout   time.Duration
	TrendingCoins    []string
}

// Handlers implements every chat command. Replies go through tele.Context so the
// handlers can be driven without a live bot.
type Handlers struct {
	alarms storage.AlarmRepository
	users  UserRepository
	// prices serves cached quotes; series serves uncached candles for charts.
	prices market.Provider
	series market.Provider
	opts   Options
	logger zerolog.Logger

	base context.Context
}

// NewHandlers wires the command handlers.
func NewHandlers(alarms storage.AlarmRepository, users UserRepository, prices, series market.Provider, opts Options, logger zerolog.Logger) *Handlers {
	if opts.RSIPeriod <= 0 {
		opts.RSIPeriod = 14
	}
	if opts.USDEURRate <= 0 {
		opts.USDEURRate = 0.9
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if series == nil {
		series = prices
	}
	coins := make([]string, 0, len(opts.TrendingCoins))
	for _, coin := range opts.TrendingCoins {
		if coin = market.NormalizeCoin(coin); coin != "" {
			coins = append(coins, coin)
		}
	}
	opts.TrendingCoins = coins
	return &Handlers{
		alarms: alarms,
		users:  users,
		prices: prices,
		series: series,
		opts:   opts,
		logger: logger.With().Str("component", "bot").Logger(),
		base:   context.Background(),
	}
}

// Register attaches every command to tb.
func (h *Handlers) Register(tb *tele.Bot) {
	tb.Handle("/start", h.Help)
	tb.Handle("/help", h.Help)
	tb.Handle("/price", h.Price, identified)
	tb.Handle("/volatility", h.Volatility)
	tb.Handle("/trending", h.Trending, identified)

	tb.Handle("/alarm", h.AddPriceAlarm, identified)
	tb.Handle("/percentalarm", h.AddPercentAlarm, identified)
	tb.Handle("/indicatoralarm", h.AddIndicatorAlarm, identified)
	tb.Handle("/watchalarm", h.AddWatchlistAlarm, identified)
	tb.Handle("/alarms", h.ListAlarms, identified)
	tb.Handle("/delalarm", h.DeleteAlarm, identified)

	tb.Handle("/watch", h.Watch, identified)
	tb.Handle("/unwatch", h.Unwatch, identified)
	tb.Handle("/watchlist", h.Watchlist, identified)

	tb.Handle("/currency", h.Currency, identified)
	tb.Handle("/buy", h.Buy, identified)
	tb.Handle("/sell", h.Sell, identified)
	tb.Handle("/portfolio", h.Portfolio, identified)
	tb.Handle("/fiat", h.Fiat, identified)
	tb.Handle("/savings", h.Savings, identified)
	tb.Handle("/budget", h.Budget, identified)
	tb.Handle("/chart", h.Chart, identified)
	tb.Handle("/reset", h.Reset, identified)
}

const helpText = `Coin alarm bot

Alarms
/alarm COIN above|below PRICE
/alarm COIN percent PCT  (move from the current price)
/percentalarm COIN PCT MINUTES [repeat]
/indicatoralarm COIN rsi_overbought|rsi_oversold VALUE [repeat]
/watchalarm COIN volatility|rsi_overbought|rsi_oversold VALUE
/alarms  /delalarm N  /delalarm all

Market
/price COIN  /chart COIN [1h|4h|1d|7d]
/volatility COIN  /trending
/watch COIN  /unwatch COIN  /watchlist

Portfolio
/fiat  /fiat deposit|withdraw AMOUNT
/buy COIN AMOUNT  /sell COIN AMOUNT  /portfolio
/savings  /savings COIN TARGET|clear
/budget  /budget AMOUNT

Settings
/currency USD|EUR  /reset CONFIRM`

// Help lists the commands.
func (h *Handlers) Help(c tele.Context) error {
	return c.Send(helpText)
}

// Price replies with the current price and 24h change.
func (h *Handlers) Price(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /price COIN")
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, "/price COIN")
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)
	currency := h.currencyOf(ctx, userID)

	price, err := h.prices.CurrentPrice(ctx, coin, currency)
	if err != nil {
		return h.marketFailure(c, coin, err)
	}
	text := fmt.Sprintf("%s: %s %s", coin, formatPrice(price), currency)
	if change, err := h.prices.PercentChange24h(ctx, coin); err == nil {
		text += fmt.Sprintf(" (%+.2f%% 24h)", change)
	}
	return c.Send(text)
}

// Currency sets the display currency.
func (h *Handlers) Currency(c tele.Context) error {
	args := c.Args()
	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	if len(args) == 0 {
		return c.Send(fmt.Sprintf("Your currency is %s. Change it with /currency USD|EUR", h.currencyOf(ctx, userID)))
	}
	currency, err := parseCurrency(args[0])
	if err != nil {
		return invalid(c, err, "/currency USD|EUR")
	}
	if err := h.users.Update(ctx, userID, func(p *storage.Profile) error {
		p.Currency = currency
		return nil
	}); err != nil {
		return h.storageFailure(c, userID, err)
	}
	return c.Send("✅ Currency set to " + currency)
}

// Reset wipes the user's alarms and profile.
func (h *Handlers) Reset(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 || args[0] != "CONFIRM" {
		return c.Send("This deletes all your alarms, your watchlist, portfolio, fiat balances, savings goals, budget and settings.\nSend /reset CONFIRM to continue.")
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	if err := h.alarms.SaveAll(ctx, userID, nil); err != nil {
		return h.storageFailure(c, userID, err)
	}
	if err := h.users.Delete(ctx, userID); err != nil {
		return h.storageFailure(c, userID, err)
	}
	h.logger.Info().Str("user_id", userID).Msg("user reset")
	return c.Send("🗑 All your data has been deleted.")
}

func (h *Handlers) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.base, h.opts.RequestTimeout)
}

func (h *Handlers) currencyOf(ctx context.Context, userID string) string {
	p, err := h.users.Get(ctx, userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load profile")
		return market.CurrencyUSD
	}
	return p.DisplayCurrency()
}

func (h *Handlers) marketFailure(c tele.Context, coin string, err error) error {
	if alarm.IsNoData(err) {
		h.logger.Debug().Err(err).Str("coin", coin).Msg("no market data")
		return c.Send(fmt.Sprintf("❌ No market data for %s. Check the ticker and try again.", coin))
	}
	h.logger.Error().Err(err).Str("coin", coin).Msg("market lookup failed")
	return c.Send("❌ Market data is unavailable right now. Please try again later.")
}

func (h *Handlers) storageFailure(c tele.Context, userID string, err error) error {
	h.logger.Error().Err(err).Str("user_id", userID).Msg("storage operation failed")
	return c.Send("❌ Could not save your data. Please try again later.")
}

// invalid answers malformed input with a retry prompt.
func invalid(c tele.Context, err error, usage string) error {
	return c.Send(fmt.Sprintf("❌ %s\nPlease try again: %s", cleanError(err), usage))
}

func cleanError(err error) string {
	if errors.Is(err, alarm.ErrInvalidAlarm) {
		return strings.TrimPrefix(err.Error(), alarm.ErrInvalidAlarm.Error()+": ")
	}
	return err.Error()
}

func senderID(c tele.Context) string {
	return guard.SenderID(c)
}

// identified refuses updates the guard would treat as anonymous, so no user
// data is ever stored under an empty id.
func identified(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if senderID(c) == "" {
			return c.Send("❌ This command needs a user account. Send it from a private chat.")
		}
		return next(c)
	}
}

func formatPrice(v float64) string {
	switch {
	case v >= 1000:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case v >= 1:
		return strconv.FormatFloat(v, 'f', 4, 64)
	default:
		return strconv.FormatFloat(v, 'f', 8, 64)
	}
}
