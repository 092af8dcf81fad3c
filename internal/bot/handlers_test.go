package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/market"
	"coin-alarm-bot/internal/storage"
)

type fakeContext struct {
	tele.Context
	args []string
	user *tele.User
	sent []interface{}
}

func (c *fakeContext) Args() []string     { return c.args }
func (c *fakeContext) Sender() *tele.User { return c.user }
func (c *fakeContext) Chat() *tele.Chat   { return nil }

func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what)
	return nil
}

func (c *fakeContext) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, c.sent)
	text, ok := c.sent[len(c.sent)-1].(string)
	require.True(t, ok, "last reply is not text: %T", c.sent[len(c.sent)-1])
	return text
}

type stubProvider struct {
	usd    map[string]float64
	rsi    map[string]float64
	change map[string]float64
}

func (p stubProvider) CurrentPrice(_ context.Context, coin, currency string) (float64, error) {
	v, ok := p.usd[coin]
	if !ok {
		return 0, fmt.Errorf("%s: %w", coin, market.ErrNoData)
	}
	if market.NormalizeCurrency(currency) == market.CurrencyEUR {
		return v * 0.9, nil
	}
	return v, nil
}

func (p stubProvider) PercentChange24h(_ context.Context, coin string) (float64, error) {
	if v, ok := p.change[coin]; ok {
		return v, nil
	}
	if _, ok := p.usd[coin]; ok {
		return 1.5, nil
	}
	return 0, market.ErrNoData
}

func (p stubProvider) HistoricalSeries(_ context.Context, coin, _ string, limit int) ([]market.PricePoint, error) {
	v, ok := p.usd[coin]
	if !ok {
		return nil, market.ErrNoData
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.PricePoint, limit)
	for i := range out {
		out[i] = market.PricePoint{Time: start.Add(time.Duration(i) * time.Minute), Price: v + float64(i)}
	}
	return out, nil
}

func (p stubProvider) Volatility24h(_ context.Context, coin string) (market.Volatility, error) {
	if coin != "BTC" {
		return market.Volatility{}, market.ErrNoData
	}
	return market.Volatility{High: 61000, Low: 59000, VolatilityPct: 3.39}, nil
}

func (p stubProvider) RSI(_ context.Context, coin string, _ int) (float64, error) {
	v, ok := p.rsi[coin]
	if !ok {
		return 0, market.ErrNoData
	}
	return v, nil
}

type fixture struct {
	h      *Handlers
	alarms *storage.FileAlarmStore
	users  *storage.UserStore
}

func newFixture(t *testing.T, maxAlarms int) fixture {
	t.Helper()
	dir := t.TempDir()
	alarms, err := storage.NewFileAlarmStore(dir)
	require.NoError(t, err)
	users, err := storage.NewUserStore(dir)
	require.NoError(t, err)

	prices := stubProvider{
		usd:    map[string]float64{"BTC": 60000, "ETH": 3000},
		rsi:    map[string]float64{"BTC": 55},
		change: map[string]float64{"BTC": -4, "ETH": 2},
	}
	h := NewHandlers(alarms, users, prices, nil, Options{
		MaxAlarmsPerUser: maxAlarms,
		TrendingCoins:    []string{"eth", "btc", "NOPE"},
	}, zerolog.Nop())
	return fixture{h: h, alarms: alarms, users: users}
}

func (f fixture) call(t *testing.T, handler func(tele.Context) error, args ...string) *fakeContext {
	t.Helper()
	c := &fakeContext{args: args, user: &tele.User{ID: 42}}
	require.NoError(t, handler(c))
	return c
}

func (f fixture) stored(t *testing.T) []alarm.Alarm {
	t.Helper()
	list, err := f.alarms.Load(context.Background(), "42")
	require.NoError(t, err)
	return list
}

func TestAddPriceAlarm(t *testing.T) {
	f := newFixture(t, 0)

	c := f.call(t, f.h.AddPriceAlarm, "btc", "below", "50000")
	require.Contains(t, c.lastText(t), "Alarm set")

	list := f.stored(t)
	require.Len(t, list, 1)
	require.Equal(t, alarm.Alarm{Coin: "BTC", Type: alarm.KindPrice, Direction: alarm.DirectionBelow, Target: 50000, Currency: "USD"}, list[0])
}

func TestAddPercentMovePriceAlarmRecordsBase(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.users.Update(context.Background(), "42", func(p *storage.Profile) error {
		p.Currency = "EUR"
		return nil
	}))

	f.call(t, f.h.AddPriceAlarm, "BTC", "percent", "5")
	list := f.stored(t)
	require.Len(t, list, 1)
	require.Equal(t, alarm.DirectionPercent, list[0].Direction)
	require.Equal(t, "EUR", list[0].Currency)
	require.InDelta(t, 54000, list[0].BasePrice, 1e-9)
}

func TestMalformedInputLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 0)

	cases := []struct {
		name    string
		handler func(tele.Context) error
		args    []string
	}{
		{"non-numeric target", f.h.AddPriceAlarm, []string{"BTC", "below", "lots"}},
		{"negative target", f.h.AddPriceAlarm, []string{"BTC", "above", "-1"}},
		{"bad direction", f.h.AddPriceAlarm, []string{"BTC", "sideways", "1"}},
		{"NaN target", f.h.AddPriceAlarm, []string{"BTC", "above", "NaN"}},
		{"infinite target", f.h.AddPriceAlarm, []string{"BTC", "below", "Inf"}},
		{"NaN rsi", f.h.AddIndicatorAlarm, []string{"BTC", "rsi_overbought", "NaN"}},
		{"NaN percent", f.h.AddPercentAlarm, []string{"ETH", "nan", "60"}},
		{"period too long", f.h.AddPercentAlarm, []string{"ETH", "5", "2000"}},
		{"bad repeat flag", f.h.AddPercentAlarm, []string{"ETH", "5", "60", "sometimes"}},
		{"rsi out of range", f.h.AddIndicatorAlarm, []string{"BTC", "rsi_oversold", "150"}},
		{"unknown indicator", f.h.AddIndicatorAlarm, []string{"BTC", "macd", "10"}},
		{"unknown watch type", f.h.AddWatchlistAlarm, []string{"BTC", "volume", "10"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := f.call(t, tc.handler, tc.args...)
			require.Contains(t, c.lastText(t), "Please try again")
			require.Empty(t, f.stored(t))
		})
	}
}

func TestUnknownCoinIsReported(t *testing.T) {
	f := newFixture(t, 0)
	c := f.call(t, f.h.AddPercentAlarm, "NOPE", "5", "60")
	require.Contains(t, c.lastText(t), "No market data for NOPE")
	require.Empty(t, f.stored(t))
}

func TestAlarmLimit(t *testing.T) {
	f := newFixture(t, 2)
	f.call(t, f.h.AddPercentAlarm, "ETH", "5", "60")
	f.call(t, f.h.AddIndicatorAlarm, "BTC", "rsi_overbought", "70", "repeat")
	c := f.call(t, f.h.AddPriceAlarm, "BTC", "above", "70000")
	require.Contains(t, c.lastText(t), "already have 2 alarms")
	require.Len(t, f.stored(t), 2)
}

func TestListAndDeleteAlarms(t *testing.T) {
	f := newFixture(t, 0)
	f.call(t, f.h.AddPriceAlarm, "BTC", "below", "50000")
	f.call(t, f.h.AddPercentAlarm, "ETH", "5", "60", "repeat")
	f.call(t, f.h.AddIndicatorAlarm, "BTC", "rsi_oversold", "30")

	c := f.call(t, f.h.ListAlarms)
	text := c.lastText(t)
	require.Contains(t, text, "1. BTC below 50000.00 USD")
	require.Contains(t, text, "2. ETH ±5.0% in 60 min repeating")
	require.Contains(t, text, "3. BTC RSI < 30.0")

	c = f.call(t, f.h.DeleteAlarm, "2")
	require.Contains(t, c.lastText(t), "Deleted: ETH")
	list := f.stored(t)
	require.Len(t, list, 2)
	require.Equal(t, alarm.KindIndicator, list[1].Type)

	c = f.call(t, f.h.DeleteAlarm, "5")
	require.Contains(t, c.lastText(t), "You have 2 alarms")
	require.Len(t, f.stored(t), 2)

	f.call(t, f.h.DeleteAlarm, "all")
	require.Empty(t, f.stored(t))
}

func TestWatchAlarmAddsCoinToWatchlist(t *testing.T) {
	f := newFixture(t, 0)
	f.call(t, f.h.AddWatchlistAlarm, "ETH", "volatility", "5")

	list := f.stored(t)
	require.Len(t, list, 1)
	require.Equal(t, alarm.KindWatchlist, list[0].Type)
	require.Equal(t, alarm.WatchVolatility, list[0].AlarmType)

	p, err := f.users.Get(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, []string{"ETH"}, p.Watchlist)

	c := f.call(t, f.h.Watchlist)
	require.Contains(t, c.lastText(t), "ETH: 3000.00 USD | +2.00%")
}

func TestPortfolioFlow(t *testing.T) {
	f := newFixture(t, 0)
	f.call(t, f.h.Fiat, "deposit", "40000")
	f.call(t, f.h.Buy, "BTC", "0.5")
	f.call(t, f.h.Buy, "ETH", "2")

	c := f.call(t, f.h.Sell, "ETH", "3")
	require.Contains(t, c.lastText(t), "insufficient holdings")

	f.call(t, f.h.Sell, "ETH", "1")
	c = f.call(t, f.h.Portfolio)
	text := c.lastText(t)
	require.Contains(t, text, "BTC: 0.5")
	require.Contains(t, text, "Total: 33000.00 USD")
	require.Contains(t, text, "P/L: +0.00 USD")
	require.Contains(t, text, "USD: 7000.00")
}

func TestCurrencyAndPrice(t *testing.T) {
	f := newFixture(t, 0)
	c := f.call(t, f.h.Currency, "chf")
	require.Contains(t, c.lastText(t), "Please try again")

	f.call(t, f.h.Currency, "eur")
	c = f.call(t, f.h.Price, "BTC")
	require.True(t, strings.HasPrefix(c.lastText(t), "BTC: 54000.00 EUR"), c.lastText(t))
}

func TestChartSendsPhoto(t *testing.T) {
	f := newFixture(t, 0)
	c := f.call(t, f.h.Chart, "BTC", "1h")
	require.Len(t, c.sent, 1)
	photo, ok := c.sent[0].(*tele.Photo)
	require.True(t, ok, "expected a photo, got %T", c.sent[0])
	require.Equal(t, "BTC USD (1h)", photo.Caption)

	c = f.call(t, f.h.Chart, "BTC", "3y")
	require.Contains(t, c.lastText(t), "Please try again")
}

func TestResetRequiresConfirmation(t *testing.T) {
	f := newFixture(t, 0)
	f.call(t, f.h.AddPriceAlarm, "BTC", "below", "50000")
	f.call(t, f.h.Watch, "BTC")
	f.call(t, f.h.Fiat, "deposit", "1000")
	f.call(t, f.h.Savings, "BTC", "1")
	f.call(t, f.h.Budget, "500")

	f.call(t, f.h.Reset)
	require.Len(t, f.stored(t), 1)

	f.call(t, f.h.Reset, "CONFIRM")
	require.Empty(t, f.stored(t))
	p, err := f.users.Get(context.Background(), "42")
	require.NoError(t, err)
	require.Empty(t, p.Watchlist)
	require.Empty(t, p.Fiat)
	require.Empty(t, p.Savings)
	require.True(t, p.Budget.Amount.IsZero())
}

func (f fixture) profile(t *testing.T) storage.Profile {
	t.Helper()
	p, err := f.users.Get(context.Background(), "42")
	require.NoError(t, err)
	return p
}

func TestBuyNeedsFiat(t *testing.T) {
	f := newFixture(t, 0)
	c := f.call(t, f.h.Buy, "BTC", "0.5")
	require.Contains(t, c.lastText(t), "insufficient funds")
	require.Contains(t, c.lastText(t), "Please try again")
	require.Empty(t, f.profile(t).Portfolio)

	f.call(t, f.h.Fiat, "deposit", "100")
	c = f.call(t, f.h.Fiat, "withdraw", "150")
	require.Contains(t, c.lastText(t), "insufficient funds")

	c = f.call(t, f.h.Fiat, "withdraw", "100")
	require.Contains(t, c.lastText(t), "Withdrew 100.00 USD")
	require.Empty(t, f.profile(t).Fiat)

	c = f.call(t, f.h.Fiat, "borrow", "10")
	require.Contains(t, c.lastText(t), "Please try again")
}

func TestBuyPaysInUserCurrency(t *testing.T) {
	f := newFixture(t, 0)
	f.call(t, f.h.Currency, "EUR")
	f.call(t, f.h.Fiat, "deposit", "1000")

	c := f.call(t, f.h.Buy, "BTC", "0.01")
	require.Contains(t, c.lastText(t), "Bought 0.01 BTC for 540.00 EUR")

	p := f.profile(t)
	require.Equal(t, "460.00", p.Fiat["EUR"].StringFixed(2))
	require.Equal(t, "540.00", p.Budget.Spent.StringFixed(2))

	c = f.call(t, f.h.Fiat)
	require.Contains(t, c.lastText(t), "EUR: 460.00")
}

func TestBudgetTracksPurchases(t *testing.T) {
	f := newFixture(t, 0)
	c := f.call(t, f.h.Budget, "-5")
	require.Contains(t, c.lastText(t), "Please try again")

	f.call(t, f.h.Budget, "1000")
	f.call(t, f.h.Fiat, "deposit", "10000")

	c = f.call(t, f.h.Buy, "BTC", "0.01")
	require.NotContains(t, c.lastText(t), "Budget exceeded")
	c = f.call(t, f.h.Buy, "BTC", "0.01")
	require.Contains(t, c.lastText(t), "Budget exceeded: spent 1200.00 of 1000.00 USD")

	c = f.call(t, f.h.Budget)
	text := c.lastText(t)
	require.Contains(t, text, "Budget: 1000.00 USD")
	require.Contains(t, text, "Spent: 1200.00 USD")
	require.Contains(t, text, "Left: 0.00 USD")

	f.call(t, f.h.Budget, "2000")
	require.Equal(t, "1200.00", f.profile(t).Budget.Spent.StringFixed(2), "resetting the amount keeps spending")
}

func TestSavingsGoalProgress(t *testing.T) {
	f := newFixture(t, 0)
	c := f.call(t, f.h.Savings, "BTC", "NaN")
	require.Contains(t, c.lastText(t), "Please try again")

	f.call(t, f.h.Savings, "btc", "1")
	f.call(t, f.h.Fiat, "deposit", "40000")
	f.call(t, f.h.Buy, "BTC", "0.5")

	c = f.call(t, f.h.Savings)
	require.Contains(t, c.lastText(t), "BTC: 0.5 / 1 (50.0%)")

	c = f.call(t, f.h.Portfolio)
	require.Contains(t, c.lastText(t), "Savings goals\nBTC: 0.5 / 1 (50.0%)")

	f.call(t, f.h.Savings, "BTC", "clear")
	require.Empty(t, f.profile(t).Savings)
}

func TestVolatilityAndTrending(t *testing.T) {
	f := newFixture(t, 0)
	c := f.call(t, f.h.Volatility, "btc")
	require.Contains(t, c.lastText(t), "BTC 24h volatility: 3.39%")

	c = f.call(t, f.h.Volatility, "ETH")
	require.Contains(t, c.lastText(t), "No market data for ETH")

	c = f.call(t, f.h.Trending)
	require.Equal(t, "🔥 Trending (24h)\n1. BTC -4.00%\n2. ETH +2.00%", c.lastText(t))
}

func TestAnonymousSenderIsRefused(t *testing.T) {
	f := newFixture(t, 0)
	called := false
	h := identified(func(tele.Context) error {
		called = true
		return nil
	})

	for _, u := range []*tele.User{nil, {ID: 0}} {
		c := &fakeContext{args: []string{"BTC", "below", "1"}, user: u}
		require.NoError(t, h(c))
		require.Contains(t, c.lastText(t), "needs a user account")
	}
	require.False(t, called)

	all, err := f.alarms.LoadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}
