package bot

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"coin-alarm-bot/internal/chart"
	"coin-alarm-bot/internal/market"
	"coin-alarm-bot/internal/storage"
)

// Watch handles /watch COIN.
func (h *Handlers) Watch(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /watch COIN")
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, "/watch COIN")
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	if _, err := h.prices.CurrentPrice(ctx, coin, ""); err != nil {
		return h.marketFailure(c, coin, err)
	}
	added := false
	if err := h.users.Update(ctx, userID, func(p *storage.Profile) error {
		added = p.Watch(coin)
		return nil
	}); err != nil {
		return h.storageFailure(c, userID, err)
	}
	if !added {
		return c.Send(coin + " is already on your watchlist.")
	}
	return c.Send("👀 " + coin + " added to your watchlist.")
}

// Unwatch handles /unwatch COIN.
func (h *Handlers) Unwatch(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /unwatch COIN")
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, "/unwatch COIN")
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	removed := false
	if err := h.users.Update(ctx, userID, func(p *storage.Profile) error {
		removed = p.Unwatch(coin)
		return nil
	}); err != nil {
		return h.storageFailure(c, userID, err)
	}
	if !removed {
		return c.Send(coin + " is not on your watchlist.")
	}
	return c.Send(coin + " removed from your watchlist.")
}

// Watchlist handles /watchlist: price, 24h change and RSI per coin.
func (h *Handlers) Watchlist(c tele.Context) error {
	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	p, err := h.users.Get(ctx, userID)
	if err != nil {
		return h.storageFailure(c, userID, err)
	}
	if len(p.Watchlist) == 0 {
		return c.Send("Your watchlist is empty. Add coins with /watch COIN.")
	}
	currency := p.DisplayCurrency()

	var b strings.Builder
	b.WriteString("👀 Watchlist\n")
	for _, coin := range p.Watchlist {
		price, err := h.prices.CurrentPrice(ctx, coin, currency)
		if err != nil {
			fmt.Fprintf(&b, "%s: no data\n", coin)
			continue
		}
		fmt.Fprintf(&b, "%s: %s %s", coin, formatPrice(price), currency)
		if change, err := h.prices.PercentChange24h(ctx, coin); err == nil {
			fmt.Fprintf(&b, " | %+.2f%%", change)
		}
		if rsi, err := h.prices.RSI(ctx, coin, h.opts.RSIPeriod); err == nil {
			fmt.Fprintf(&b, " | RSI %.1f", rsi)
		}
		b.WriteString("\n")
	}
	return c.Send(b.String())
}

// Buy handles /buy COIN AMOUNT. The cost is paid from the fiat balance in the
// user's currency and booked against the budget.
func (h *Handlers) Buy(c tele.Context) error {
	coin, amount, err := coinAmount(c.Args())
	if err != nil {
		return invalid(c, err, "/buy COIN AMOUNT")
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	price, err := h.prices.CurrentPrice(ctx, coin, market.CurrencyUSD)
	if err != nil {
		return h.marketFailure(c, coin, err)
	}
	priceUSD := decimal.NewFromFloat(price)

	var (
		currency string
		cost     decimal.Decimal
		budget   storage.Budget
	)
	err = h.users.Update(ctx, userID, func(p *storage.Profile) error {
		currency = p.DisplayCurrency()
		cost = amount.Mul(priceUSD).Mul(h.rate(currency)).Round(2)
		if err := p.Pay(currency, cost); err != nil {
			return err
		}
		p.Buy(coin, amount, priceUSD)
		budget = p.Budget
		return nil
	})
	if errors.Is(err, storage.ErrInsufficientFunds) {
		return invalid(c, err, "/fiat deposit AMOUNT, then /buy COIN AMOUNT")
	}
	if err != nil {
		return h.storageFailure(c, userID, err)
	}

	text := fmt.Sprintf("✅ Bought %s %s for %s %s", amount.String(), coin, cost.StringFixed(2), currency)
	if budget.Exceeded() {
		text += fmt.Sprintf("\n⚠️ Budget exceeded: spent %s of %s %s", budget.Spent.StringFixed(2), budget.Amount.StringFixed(2), currency)
	}
	return c.Send(text)
}

// Sell handles /sell COIN AMOUNT. Selling more than held is rejected; proceeds
// are credited to the fiat balance.
func (h *Handlers) Sell(c tele.Context) error {
	coin, amount, err := coinAmount(c.Args())
	if err != nil {
		return invalid(c, err, "/sell COIN AMOUNT")
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	price, err := h.prices.CurrentPrice(ctx, coin, market.CurrencyUSD)
	if err != nil {
		return h.marketFailure(c, coin, err)
	}
	priceUSD := decimal.NewFromFloat(price)

	var (
		currency string
		proceeds decimal.Decimal
	)
	err = h.users.Update(ctx, userID, func(p *storage.Profile) error {
		if err := p.Sell(coin, amount); err != nil {
			return err
		}
		currency = p.DisplayCurrency()
		proceeds = amount.Mul(priceUSD).Mul(h.rate(currency)).Round(2)
		p.Deposit(currency, proceeds)
		return nil
	})
	if errors.Is(err, storage.ErrInsufficientHoldings) {
		return invalid(c, err, "/sell COIN AMOUNT")
	}
	if err != nil {
		return h.storageFailure(c, userID, err)
	}
	return c.Send(fmt.Sprintf("✅ Sold %s %s for %s %s", amount.String(), coin, proceeds.StringFixed(2), currency))
}

// Portfolio handles /portfolio, valued in the user's currency, with fiat
// balances, savings goal progress and the budget.
func (h *Handlers) Portfolio(c tele.Context) error {
	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	p, err := h.users.Get(ctx, userID)
	if err != nil {
		return h.storageFailure(c, userID, err)
	}
	if len(p.Portfolio) == 0 && len(p.Fiat) == 0 {
		return c.Send("Your portfolio is empty. Deposit with /fiat deposit AMOUNT, then /buy COIN AMOUNT.")
	}
	currency := p.DisplayCurrency()
	rate := h.rate(currency)

	var b strings.Builder
	b.WriteString("💼 Portfolio\n")
	total, cost := decimal.Zero, decimal.Zero
	for _, coin := range sortedKeys(p.Portfolio) {
		holding := p.Portfolio[coin]
		price, err := h.prices.CurrentPrice(ctx, coin, currency)
		if err != nil {
			fmt.Fprintf(&b, "%s: %s (no price)\n", coin, holding.Amount.String())
			continue
		}
		value := holding.Amount.Mul(decimal.NewFromFloat(price))
		spent := holding.CostUSD.Mul(rate)
		total = total.Add(value)
		cost = cost.Add(spent)
		fmt.Fprintf(&b, "%s: %s × %s = %s %s\n", coin, holding.Amount.String(), formatPrice(price), value.StringFixed(2), currency)
	}

	pnl := total.Sub(cost)
	fmt.Fprintf(&b, "\nTotal: %s %s", total.StringFixed(2), currency)
	if cost.IsPositive() {
		pct := pnl.Div(cost).Mul(decimal.NewFromInt(100))
		fmt.Fprintf(&b, "\nP/L: %s %s (%s%%)", signed(pnl), currency, signed(pct))
	}
	if len(p.Fiat) > 0 {
		b.WriteString("\n\n💵 Fiat")
		for _, cur := range sortedKeys(p.Fiat) {
			fmt.Fprintf(&b, "\n%s: %s", cur, p.Fiat[cur].StringFixed(2))
		}
	}
	if len(p.Savings) > 0 {
		b.WriteString("\n\n🎯 Savings goals")
		writeSavings(&b, p)
	}
	if p.Budget.Amount.IsPositive() {
		fmt.Fprintf(&b, "\n\n💸 Budget: %s spent of %s %s", p.Budget.Spent.StringFixed(2), p.Budget.Amount.StringFixed(2), currency)
	}
	return c.Send(b.String())
}

// Chart handles /chart COIN [range] and replies with a PNG.
func (h *Handlers) Chart(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 || len(args) > 2 {
		return c.Send("Usage: /chart COIN [1h|4h|1d|7d]")
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, "/chart COIN [1h|4h|1d|7d]")
	}
	rangeKey := "1d"
	if len(args) == 2 {
		rangeKey = strings.ToLower(args[1])
	}
	window, ok := chart.Ranges[rangeKey]
	if !ok {
		return invalid(c, fmt.Errorf("range must be 1h, 4h, 1d or 7d"), "/chart COIN [1h|4h|1d|7d]")
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)
	currency := h.currencyOf(ctx, userID)

	points, err := h.series.HistoricalSeries(ctx, coin, window.Interval, window.Limit)
	if err != nil {
		return h.marketFailure(c, coin, err)
	}
	if currency == market.CurrencyEUR {
		converted := make([]market.PricePoint, len(points))
		for i, pt := range points {
			converted[i] = market.PricePoint{Time: pt.Time, Price: pt.Price * h.opts.USDEURRate}
		}
		points = converted
	}

	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, coin, currency, points); err != nil {
		h.logger.Error().Err(err).Str("coin", coin).Msg("chart rendering failed")
		return c.Send("❌ Could not draw the chart for " + coin)
	}
	photo := &tele.Photo{
		File:    tele.FromReader(&buf),
		Caption: fmt.Sprintf("%s %s (%s)", coin, currency, rangeKey),
	}
	return c.Send(photo)
}

func coinAmount(args []string) (string, decimal.Decimal, error) {
	if len(args) != 2 {
		return "", decimal.Zero, fmt.Errorf("expected a coin and an amount")
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return "", decimal.Zero, err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return "", decimal.Zero, err
	}
	return coin, amount, nil
}

// rate converts USD amounts into currency.
func (h *Handlers) rate(currency string) decimal.Decimal {
	if currency == market.CurrencyEUR {
		return decimal.NewFromFloat(h.opts.USDEURRate)
	}
	return decimal.NewFromInt(1)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}
