package alarm

import (
	"fmt"
	"strings"
)

func priceMessage(a Alarm, price float64) string {
	switch a.Direction {
	case DirectionBelow:
		return fmt.Sprintf("🔔 Alarm: %s fell below %.2f %s. Current price: %.2f %s", a.Coin, a.Target, a.Currency, price, a.Currency)
	case DirectionAbove:
		return fmt.Sprintf("🔔 Alarm: %s rose above %.2f %s. Current price: %.2f %s", a.Coin, a.Target, a.Currency, price, a.Currency)
	default:
		change := (price - a.BasePrice) / a.BasePrice * 100
		return fmt.Sprintf("🔔 Alarm: %s moved %+.2f%% from %.2f to %.2f %s (threshold ±%.1f%%)", a.Coin, change, a.BasePrice, price, a.Currency, a.Target)
	}
}

func percentMessage(a Alarm, change float64) string {
	verb := "rose"
	if change < 0 {
		verb = "fell"
	}
	return fmt.Sprintf("🔔 Percent alarm: %s %s %.2f%% within %d min", a.Coin, verb, change, a.Period)
}

func indicatorMessage(a Alarm, rsi float64) string {
	if a.Indicator == IndicatorRSIOversold {
		return fmt.Sprintf("🔔 Indicator alarm: %s RSI is below %.1f (now %.1f)", a.Coin, a.Value, rsi)
	}
	return fmt.Sprintf("🔔 Indicator alarm: %s RSI is above %.1f (now %.1f)", a.Coin, a.Value, rsi)
}

func watchlistMessage(a Alarm, observed float64) string {
	switch a.AlarmType {
	case WatchVolatility:
		return fmt.Sprintf("⚡ Watchlist alarm: %s volatility is %.2f%% (>%.1f%%)", a.Coin, observed, a.Target)
	case IndicatorRSIOversold:
		return fmt.Sprintf("📉 Watchlist alarm: %s is oversold. RSI %.1f (<%.0f)", a.Coin, observed, a.Target)
	default:
		return fmt.Sprintf("📈 Watchlist alarm: %s is overbought. RSI %.1f (>%.0f)", a.Coin, observed, a.Target)
	}
}

// Describe renders a one-line summary used by alarm listings.
func Describe(a Alarm) string {
	var b strings.Builder
	switch a.Type {
	case KindPrice:
		if a.Direction == DirectionPercent {
			fmt.Fprintf(&b, "%s moves ±%.1f%% from %.2f %s", a.Coin, a.Target, a.BasePrice, a.Currency)
		} else {
			fmt.Fprintf(&b, "%s %s %.2f %s", a.Coin, a.Direction, a.Target, a.Currency)
		}
		fmt.Fprintf(&b, " (fired %d×)", a.TriggerCount)
	case KindPercent:
		fmt.Fprintf(&b, "%s ±%.1f%% in %d min", a.Coin, a.Percent, a.Period)
	case KindIndicator:
		op := ">"
		if a.Indicator == IndicatorRSIOversold {
			op = "<"
		}
		fmt.Fprintf(&b, "%s RSI %s %.1f", a.Coin, op, a.Value)
	case KindWatchlist:
		if a.AlarmType == WatchVolatility {
			fmt.Fprintf(&b, "%s volatility > %.1f%%", a.Coin, a.Target)
		} else {
			op := ">"
			if a.AlarmType == IndicatorRSIOversold {
				op = "<"
			}
			fmt.Fprintf(&b, "%s RSI %s %.0f (watchlist)", a.Coin, op, a.Target)
		}
		fmt.Fprintf(&b, " (fired %d×)", a.TriggerCount)
	default:
		fmt.Fprintf(&b, "%s %s", a.Coin, a.Type)
	}
	if a.Type == KindPercent || a.Type == KindIndicator {
		switch {
		case a.Repeat:
			b.WriteString(" repeating")
		case a.Triggered:
			b.WriteString(" done")
		}
	}
	return b.String()
}
