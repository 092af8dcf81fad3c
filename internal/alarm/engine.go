package alarm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coin-alarm-bot/internal/alerting"
	"coin-alarm-bot/internal/market"
	"coin-alarm-bot/internal/metrics"
)

// Store is the whole-collection alarm repository the engine sweeps over.
type Store interface {
	LoadAll(ctx context.Context) (map[string][]Alarm, error)
	SaveAll(ctx context.Context, userID string, alarms []Alarm) error
}

// Options tune evaluation.
type Options struct {
	// NotifyOncePerCondition applies the Triggered latch to price and watchlist
	// alarms too. Off by default: those kinds notify on every sweep while true.
	NotifyOncePerCondition bool
	RSIPeriod              int
}

// Report summarises one sweep.
type Report struct {
	ID      string
	Users   int
	Alarms  int
	Fired   int
	Skipped int
	Failed  int
}

// Engine evaluates stored alarms against live market data.
type Engine struct {
	provider market.Provider
	notifier alerting.Notifier
	store    Store
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine wires the collaborators of a sweep.
func NewEngine(provider market.Provider, notifier alerting.Notifier, store Store, opts Options, logger zerolog.Logger) *Engine {
	if opts.RSIPeriod <= 0 {
		opts.RSIPeriod = 14
	}
	return &Engine{
		provider: provider,
		notifier: notifier,
		store:    store,
		opts:     opts,
		logger:   logger.With().Str("component", "alarm_engine").Logger(),
		now:      time.Now,
	}
}

// Sweep evaluates every alarm of every user once and persists each user's list.
// Only a failure to load the alarm collection is returned; everything else is
// logged and the sweep moves on.
func (e *Engine) Sweep(ctx context.Context) (Report, error) {
	started := e.now()
	report := Report{ID: uuid.NewString()}
	logger := e.logger.With().Str("sweep_id", report.ID).Logger()

	all, err := e.store.LoadAll(ctx)
	if err != nil {
		return report, fmt.Errorf("load alarms: %w", err)
	}

	for userID, alarms := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Users++
		report.Alarms += len(alarms)

		updated, fired, skipped := e.evaluateUser(ctx, logger, userID, alarms)
		report.Fired += fired
		report.Skipped += skipped

		if err := e.store.SaveAll(ctx, userID, updated); err != nil {
			report.Failed++
			logger.Error().Err(err).Str("user_id", userID).Msg("failed to persist alarms")
		}
	}

	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	logger.Info().
		Int("users", report.Users).
		Int("alarms", report.Alarms).
		Int("fired", report.Fired).
		Int("skipped", report.Skipped).
		Dur("took", time.Since(started)).
		Msg("alarm sweep finished")
	return report, nil
}

func (e *Engine) evaluateUser(ctx context.Context, logger zerolog.Logger, userID string, alarms []Alarm) ([]Alarm, int, int) {
	updated := make([]Alarm, 0, len(alarms))
	fired, skipped := 0, 0

	for _, a := range alarms {
		next, text, err := e.evaluate(ctx, a)
		if err != nil {
			skipped++
			metrics.AlarmsSkipped.WithLabelValues(string(a.Type)).Inc()
			logger.Warn().Err(err).
				Str("user_id", userID).
				Str("coin", a.Coin).
				Str("kind", string(a.Type)).
				Msg("alarm skipped this sweep")
			updated = append(updated, a)
			continue
		}

		if text != "" {
			fired++
			metrics.AlarmsFired.WithLabelValues(string(a.Type)).Inc()
			e.deliver(ctx, logger, userID, next, text)
		}
		updated = append(updated, next)
	}
	return updated, fired, skipped
}

func (e *Engine) deliver(ctx context.Context, logger zerolog.Logger, userID string, a Alarm, text string) {
	if e.notifier == nil {
		return
	}
	note := alerting.Notification{ChatID: userID, Text: text, Kind: string(a.Type), Coin: a.Coin}
	if err := e.notifier.Notify(ctx, note); err != nil {
		metrics.NotificationsFailed.Inc()
		logger.Error().Err(err).Str("user_id", userID).Str("coin", a.Coin).Msg("failed to deliver alarm notification")
		return
	}
	logger.Info().Str("user_id", userID).Str("coin", a.Coin).Str("kind", string(a.Type)).Msg("alarm fired")
}

// evaluate returns the alarm's next state and, when it fires, the message to send.
// An error means market data was absent and the alarm must stay as it was.
func (e *Engine) evaluate(ctx context.Context, a Alarm) (Alarm, string, error) {
	switch a.Type {
	case KindPrice:
		return e.evaluatePrice(ctx, a)
	case KindPercent:
		return e.evaluatePercent(ctx, a)
	case KindIndicator:
		return e.evaluateIndicator(ctx, a)
	case KindWatchlist:
		return e.evaluateWatchlist(ctx, a)
	default:
		return a, "", fmt.Errorf("unknown alarm type %q", a.Type)
	}
}

func (e *Engine) evaluatePrice(ctx context.Context, a Alarm) (Alarm, string, error) {
	currency := market.NormalizeCurrency(a.Currency)
	price, err := e.provider.CurrentPrice(ctx, a.Coin, currency)
	if err != nil {
		return a, "", err
	}

	var hit bool
	switch a.Direction {
	case DirectionBelow:
		hit = price < a.Target
	case DirectionAbove:
		hit = price > a.Target
	case DirectionPercent:
		if a.BasePrice <= 0 {
			return a, "", fmt.Errorf("percent price alarm without base price: %w", market.ErrNoData)
		}
		hit = math.Abs((price-a.BasePrice)/a.BasePrice*100) >= a.Target
	default:
		return a, "", fmt.Errorf("unknown price direction %q", a.Direction)
	}

	a.Currency = currency
	if !e.refire(&a, hit) {
		return a, "", nil
	}
	a.TriggerCount++
	return a, priceMessage(a, price), nil
}

func (e *Engine) evaluatePercent(ctx context.Context, a Alarm) (Alarm, string, error) {
	interval, limit := market.KlineWindow(a.Period)
	points, err := e.provider.HistoricalSeries(ctx, a.Coin, interval, limit)
	if err != nil {
		return a, "", err
	}
	if len(points) < 2 {
		return a, "", fmt.Errorf("percent alarm needs two samples, got %d: %w", len(points), market.ErrNoData)
	}

	change := market.PercentChange(points)
	if !latch(&a, math.Abs(change) >= a.Percent) {
		return a, "", nil
	}
	return a, percentMessage(a, change), nil
}

func (e *Engine) evaluateIndicator(ctx context.Context, a Alarm) (Alarm, string, error) {
	if a.Indicator != IndicatorRSIOverbought && a.Indicator != IndicatorRSIOversold {
		return a, "", fmt.Errorf("unsupported indicator %q", a.Indicator)
	}
	rsi, err := e.provider.RSI(ctx, a.Coin, e.opts.RSIPeriod)
	if err != nil {
		return a, "", err
	}

	hit := rsi > a.Value
	if a.Indicator == IndicatorRSIOversold {
		hit = rsi < a.Value
	}
	if !latch(&a, hit) {
		return a, "", nil
	}
	return a, indicatorMessage(a, rsi), nil
}

func (e *Engine) evaluateWatchlist(ctx context.Context, a Alarm) (Alarm, string, error) {
	var observed float64
	var hit bool

	switch a.AlarmType {
	case WatchVolatility:
		v, err := e.provider.Volatility24h(ctx, a.Coin)
		if err != nil {
			return a, "", err
		}
		observed, hit = v.VolatilityPct, v.VolatilityPct > a.Target
	case IndicatorRSIOverbought, IndicatorRSIOversold:
		rsi, err := e.provider.RSI(ctx, a.Coin, e.opts.RSIPeriod)
		if err != nil {
			return a, "", err
		}
		observed = rsi
		if a.AlarmType == IndicatorRSIOverbought {
			hit = rsi > a.Target
		} else {
			hit = rsi < a.Target
		}
	default:
		return a, "", fmt.Errorf("unknown watchlist alarm type %q", a.AlarmType)
	}

	if !e.refire(&a, hit) {
		return a, "", nil
	}
	a.TriggerCount++
	return a, watchlistMessage(a, observed), nil
}

// refire decides whether a price or watchlist alarm notifies. Without
// NotifyOncePerCondition every sweep with a true condition fires.
func (e *Engine) refire(a *Alarm, hit bool) bool {
	if !e.opts.NotifyOncePerCondition {
		return hit
	}
	if !hit {
		a.Triggered = false
		return false
	}
	if a.Triggered {
		return false
	}
	a.Triggered = true
	return true
}

// latch implements ARMED -> FIRED -> ARMED (repeat only) for percent and
// indicator alarms. Firing sets Triggered whether or not the alarm repeats;
// only repeating alarms re-arm once the condition clears.
func latch(a *Alarm, hit bool) bool {
	if hit && !a.Triggered {
		a.Triggered = true
		return true
	}
	if !hit && a.Repeat {
		a.Triggered = false
	}
	return false
}

// IsNoData reports whether err stems from absent market data.
func IsNoData(err error) bool {
	return errors.Is(err, market.ErrNoData)
}
