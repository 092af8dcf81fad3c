package market

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoData marks a market lookup that produced nothing usable: transport failure,
// timeout, unknown symbol or an empty series. Callers treat it as "skip for now".
var ErrNoData = errors.New("market: no data")

// Supported quote currencies. Anything that is not EUR is priced in USD.
const (
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// PricePoint is one close from a candle series.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// Volatility summarises the close range over the last 24 hours.
type Volatility struct {
	High          float64
	Low           float64
	VolatilityPct float64
}

// Provider is the market data surface consumed by the alarm engine and the bot.
// Every method is fallible; an error means the value is absent.
type Provider interface {
	CurrentPrice(ctx context.Context, coin, currency string) (float64, error)
	PercentChange24h(ctx context.Context, coin string) (float64, error)
	HistoricalSeries(ctx context.Context, coin, interval string, limit int) ([]PricePoint, error)
	Volatility24h(ctx context.Context, coin string) (Volatility, error)
	RSI(ctx context.Context, coin string, period int) (float64, error)
}

// NormalizeCoin returns the canonical upper-case ticker.
func NormalizeCoin(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin))
}

// NormalizeCurrency maps user input onto a supported currency, defaulting to USD.
func NormalizeCurrency(currency string) string {
	if strings.EqualFold(strings.TrimSpace(currency), CurrencyEUR) {
		return CurrencyEUR
	}
	return CurrencyUSD
}
