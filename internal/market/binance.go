package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"coin-alarm-bot/internal/metrics"
)

const (
	tickerPricePath = "/api/v3/ticker/price"
	ticker24hPath   = "/api/v3/ticker/24hr"
	klinesPath      = "/api/v3/klines"
	quoteAsset      = "USDT"
)

// BinanceOptions parameterise the Binance REST client.
type BinanceOptions struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	USDEURRate        float64
	UserAgent         string
}

// Binance fetches prices and candles from the public Binance spot API.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	eurRate decimal.Decimal
}

// NewBinance constructs a market data client.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	eurRate := decimal.NewFromFloat(0.9)
	if opts.USDEURRate > 0 {
		eurRate = decimal.NewFromFloat(opts.USDEURRate)
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "market_binance").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		baseURL: baseURL,
		eurRate: eurRate,
	}
}

// CurrentPrice returns the last traded price in the requested currency.
func (b *Binance) CurrentPrice(ctx context.Context, coin, currency string) (float64, error) {
	symbol := symbolFor(coin)
	var res struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := b.getJSON(ctx, "price", tickerPricePath, url.Values{"symbol": {symbol}}, &res); err != nil {
		return 0, err
	}

	price, err := decimal.NewFromString(res.Price)
	if err != nil {
		return 0, fmt.Errorf("parse price %s: %w: %w", symbol, ErrNoData, err)
	}
	if NormalizeCurrency(currency) == CurrencyEUR {
		price = price.Mul(b.eurRate)
	}
	return price.InexactFloat64(), nil
}

// PercentChange24h returns the rolling 24 hour change in percent.
func (b *Binance) PercentChange24h(ctx context.Context, coin string) (float64, error) {
	symbol := symbolFor(coin)
	var res struct {
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := b.getJSON(ctx, "change_24h", ticker24hPath, url.Values{"symbol": {symbol}}, &res); err != nil {
		return 0, err
	}
	change, err := strconv.ParseFloat(res.PriceChangePercent, 64)
	if err != nil {
		return 0, fmt.Errorf("parse 24h change %s: %w: %w", symbol, ErrNoData, err)
	}
	return change, nil
}

// HistoricalSeries returns closes ordered oldest to newest.
func (b *Binance) HistoricalSeries(ctx context.Context, coin, interval string, limit int) ([]PricePoint, error) {
	symbol := symbolFor(coin)
	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows [][]json.RawMessage
	if err := b.getJSON(ctx, "klines", klinesPath, params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, ErrNoData)
	}

	points := make([]PricePoint, 0, len(rows))
	for _, row := range rows {
		point, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s: %w: %w", symbol, ErrNoData, err)
		}
		points = append(points, point)
	}
	return points, nil
}

// Volatility24h derives the close range over the last 24 hourly candles.
func (b *Binance) Volatility24h(ctx context.Context, coin string) (Volatility, error) {
	points, err := b.HistoricalSeries(ctx, coin, "1h", 24)
	if err != nil {
		return Volatility{}, err
	}
	v, ok := VolatilityOf(closesOf(points))
	if !ok {
		return Volatility{}, fmt.Errorf("volatility %s: %w", coin, ErrNoData)
	}
	return v, nil
}

// RSI computes the indicator over period+1 hourly closes.
func (b *Binance) RSI(ctx context.Context, coin string, period int) (float64, error) {
	points, err := b.HistoricalSeries(ctx, coin, "1h", period+1)
	if err != nil {
		return 0, err
	}
	value, ok := RSI(closesOf(points), period)
	if !ok {
		return 0, fmt.Errorf("rsi %s: insufficient candles (%d): %w", coin, len(points), ErrNoData)
	}
	return value, nil
}

func (b *Binance) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		metrics.MarketErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w: %w", op, ErrNoData, err)
	}

	endpoint := b.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		metrics.MarketErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w: %w", op, ErrNoData, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.MarketErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: read body: %w: %w", op, ErrNoData, err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.MarketErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w: %w", op, ErrNoData, parseHTTPError(resp.StatusCode, payload))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		metrics.MarketErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: decode: %w: %w", op, ErrNoData, err)
	}

	b.logger.Debug().Str("op", op).Str("query", params.Encode()).Msg("market request served")
	return nil
}

func parseKline(row []json.RawMessage) (PricePoint, error) {
	if len(row) < 5 {
		return PricePoint{}, fmt.Errorf("kline has %d fields", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return PricePoint{}, fmt.Errorf("kline open time: %w", err)
	}
	var closeStr string
	if err := json.Unmarshal(row[4], &closeStr); err != nil {
		return PricePoint{}, fmt.Errorf("kline close: %w", err)
	}
	closePrice, err := strconv.ParseFloat(closeStr, 64)
	if err != nil {
		return PricePoint{}, fmt.Errorf("kline close: %w", err)
	}
	return PricePoint{Time: time.UnixMilli(openTime).UTC(), Price: closePrice}, nil
}

func symbolFor(coin string) string {
	return NormalizeCoin(coin) + quoteAsset
}

type errorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Msg != "" {
		return fmt.Errorf("binance api error (%d/%d): %s", status, apiErr.Code, apiErr.Msg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("binance api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("binance api error (%d)", status)
}

var _ Provider = (*Binance)(nil)
