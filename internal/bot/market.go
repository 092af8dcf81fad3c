package bot

import (
	"fmt"
	"math"
	"sort"
	"strings"

	tele "gopkg.in/telebot.v3"
)

const trendingTop = 5

// Volatility handles /volatility COIN with the 24h range of hourly closes.
func (h *Handlers) Volatility(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /volatility COIN")
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, "/volatility COIN")
	}

	ctx, cancel := h.context()
	defer cancel()

	v, err := h.series.Volatility24h(ctx, coin)
	if err != nil {
		return h.marketFailure(c, coin, err)
	}
	return c.Send(fmt.Sprintf("⚡ %s 24h volatility: %.2f%%\nHigh: %s USD\nLow: %s USD",
		coin, v.VolatilityPct, formatPrice(v.High), formatPrice(v.Low)))
}

// Trending handles /trending: the configured coins with the largest absolute
// 24h change.
func (h *Handlers) Trending(c tele.Context) error {
	ctx, cancel := h.context()
	defer cancel()

	type move struct {
		coin   string
		change float64
	}
	moves := make([]move, 0, len(h.opts.TrendingCoins))
	for _, coin := range h.opts.TrendingCoins {
		change, err := h.prices.PercentChange24h(ctx, coin)
		if err != nil {
			h.logger.Debug().Err(err).Str("coin", coin).Msg("skipping coin without 24h change")
			continue
		}
		moves = append(moves, move{coin: coin, change: change})
	}
	if len(moves) == 0 {
		return c.Send("❌ Market data is unavailable right now. Please try again later.")
	}
	sort.SliceStable(moves, func(i, j int) bool {
		return math.Abs(moves[i].change) > math.Abs(moves[j].change)
	})
	if len(moves) > trendingTop {
		moves = moves[:trendingTop]
	}

	var b strings.Builder
	b.WriteString("🔥 Trending (24h)")
	for i, m := range moves {
		fmt.Fprintf(&b, "\n%d. %s %+.2f%%", i+1, m.coin, m.change)
	}
	return c.Send(b.String())
}
