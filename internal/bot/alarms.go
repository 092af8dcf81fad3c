package bot

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/storage"
)

const (
	usagePriceAlarm     = "/alarm COIN above|below PRICE or /alarm COIN percent PCT"
	usagePercentAlarm   = "/percentalarm COIN PCT MINUTES [repeat]"
	usageIndicatorAlarm = "/indicatoralarm COIN rsi_overbought|rsi_oversold VALUE [repeat]"
	usageWatchAlarm     = "/watchalarm COIN volatility|rsi_overbought|rsi_oversold VALUE"
)

// AddPriceAlarm handles /alarm.
func (h *Handlers) AddPriceAlarm(c tele.Context) error {
	args := c.Args()
	if len(args) != 3 {
		return c.Send("Usage: " + usagePriceAlarm)
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, usagePriceAlarm)
	}
	direction := strings.ToLower(args[1])
	switch direction {
	case alarm.DirectionAbove, alarm.DirectionBelow, alarm.DirectionPercent:
	default:
		return invalid(c, fmt.Errorf("direction must be above, below or percent"), usagePriceAlarm)
	}
	target, err := parsePositive(args[2], "value")
	if err != nil {
		return invalid(c, err, usagePriceAlarm)
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)
	currency := h.currencyOf(ctx, userID)

	price, err := h.prices.CurrentPrice(ctx, coin, currency)
	if err != nil {
		return h.marketFailure(c, coin, err)
	}

	base := 0.0
	if direction == alarm.DirectionPercent {
		base = price
	}
	a, err := alarm.NewPriceAlarm(coin, direction, target, currency, base)
	if err != nil {
		return invalid(c, err, usagePriceAlarm)
	}
	return h.addAlarm(ctx, c, userID, a, fmt.Sprintf("current price %s %s", formatPrice(price), currency))
}

// AddPercentAlarm handles /percentalarm.
func (h *Handlers) AddPercentAlarm(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 || len(args) > 4 {
		return c.Send("Usage: " + usagePercentAlarm)
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, usagePercentAlarm)
	}
	pct, err := parsePositive(args[1], "percent")
	if err != nil {
		return invalid(c, err, usagePercentAlarm)
	}
	period, err := parsePeriod(args[2])
	if err != nil {
		return invalid(c, err, usagePercentAlarm)
	}
	repeat, err := parseRepeat(args, 3)
	if err != nil {
		return invalid(c, err, usagePercentAlarm)
	}

	ctx, cancel := h.context()
	defer cancel()
	if _, err := h.prices.CurrentPrice(ctx, coin, ""); err != nil {
		return h.marketFailure(c, coin, err)
	}

	a, err := alarm.NewPercentAlarm(coin, pct, period, repeat)
	if err != nil {
		return invalid(c, err, usagePercentAlarm)
	}
	return h.addAlarm(ctx, c, senderID(c), a, "")
}

// AddIndicatorAlarm handles /indicatoralarm.
func (h *Handlers) AddIndicatorAlarm(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 || len(args) > 4 {
		return c.Send("Usage: " + usageIndicatorAlarm)
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, usageIndicatorAlarm)
	}
	value, err := parsePositive(args[2], "value")
	if err != nil {
		return invalid(c, err, usageIndicatorAlarm)
	}
	repeat, err := parseRepeat(args, 3)
	if err != nil {
		return invalid(c, err, usageIndicatorAlarm)
	}
	a, err := alarm.NewIndicatorAlarm(coin, strings.ToLower(args[1]), value, repeat)
	if err != nil {
		return invalid(c, err, usageIndicatorAlarm)
	}

	ctx, cancel := h.context()
	defer cancel()
	rsi, err := h.prices.RSI(ctx, coin, h.opts.RSIPeriod)
	if err != nil {
		return h.marketFailure(c, coin, err)
	}
	return h.addAlarm(ctx, c, senderID(c), a, fmt.Sprintf("RSI now %.1f", rsi))
}

// AddWatchlistAlarm handles /watchalarm. The coin joins the watchlist when missing.
func (h *Handlers) AddWatchlistAlarm(c tele.Context) error {
	args := c.Args()
	if len(args) != 3 {
		return c.Send("Usage: " + usageWatchAlarm)
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, usageWatchAlarm)
	}
	value, err := parsePositive(args[2], "value")
	if err != nil {
		return invalid(c, err, usageWatchAlarm)
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	a, err := alarm.NewWatchlistAlarm(coin, strings.ToLower(args[1]), value, h.currencyOf(ctx, userID))
	if err != nil {
		return invalid(c, err, usageWatchAlarm)
	}
	if _, err := h.prices.CurrentPrice(ctx, coin, ""); err != nil {
		return h.marketFailure(c, coin, err)
	}
	if err := h.users.Update(ctx, userID, func(p *storage.Profile) error {
		p.Watch(coin)
		return nil
	}); err != nil {
		return h.storageFailure(c, userID, err)
	}
	return h.addAlarm(ctx, c, userID, a, "")
}

// ListAlarms handles /alarms.
func (h *Handlers) ListAlarms(c tele.Context) error {
	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	alarms, err := h.alarms.Load(ctx, userID)
	if err != nil {
		return h.storageFailure(c, userID, err)
	}
	if len(alarms) == 0 {
		return c.Send("You have no alarms. Create one with /alarm, /percentalarm, /indicatoralarm or /watchalarm.")
	}

	var b strings.Builder
	b.WriteString("🔔 Your alarms:\n")
	for i, a := range alarms {
		fmt.Fprintf(&b, "%d. %s\n", i+1, alarm.Describe(a))
	}
	b.WriteString("\nDelete with /delalarm N or /delalarm all")
	return c.Send(b.String())
}

// DeleteAlarm handles /delalarm N and /delalarm all.
func (h *Handlers) DeleteAlarm(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /delalarm N or /delalarm all")
	}

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	if strings.EqualFold(args[0], "all") {
		if err := h.alarms.SaveAll(ctx, userID, nil); err != nil {
			return h.storageFailure(c, userID, err)
		}
		return c.Send("🗑 All alarms deleted.")
	}

	index, err := parseIndex(args[0])
	if err != nil {
		return invalid(c, err, "/delalarm N")
	}
	alarms, err := h.alarms.Load(ctx, userID)
	if err != nil {
		return h.storageFailure(c, userID, err)
	}
	remaining, err := alarm.RemoveAt(alarms, index)
	if err != nil {
		return c.Send(fmt.Sprintf("❌ You have %d alarms. Use a number from /alarms.", len(alarms)))
	}
	if err := h.alarms.SaveAll(ctx, userID, remaining); err != nil {
		return h.storageFailure(c, userID, err)
	}
	return c.Send("🗑 Deleted: " + alarm.Describe(alarms[index]))
}

func (h *Handlers) addAlarm(ctx context.Context, c tele.Context, userID string, a alarm.Alarm, note string) error {
	alarms, err := h.alarms.Load(ctx, userID)
	if err != nil {
		return h.storageFailure(c, userID, err)
	}
	if h.opts.MaxAlarmsPerUser > 0 && len(alarms) >= h.opts.MaxAlarmsPerUser {
		h.logger.Info().Str("user_id", userID).Int("count", len(alarms)).Msg("alarm limit reached")
		return c.Send(fmt.Sprintf("❌ You already have %d alarms. Delete one with /delalarm first.", len(alarms)))
	}

	alarms = append(alarms, a)
	if err := h.alarms.SaveAll(ctx, userID, alarms); err != nil {
		return h.storageFailure(c, userID, err)
	}
	h.logger.Info().Str("user_id", userID).Str("coin", a.Coin).Str("kind", string(a.Type)).Msg("alarm created")

	text := "✅ Alarm set: " + alarm.Describe(a)
	if note != "" {
		text += " (" + note + ")"
	}
	return c.Send(text)
}
