package app

import (
	"context"
	"errors"
	"fmt"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/market"
	"coin-alarm-bot/internal/storage"
)

// Sweep runs one alarm sweep against live data and persists the result.
func (a *App) Sweep(ctx context.Context) (alarm.Report, error) {
	backend, err := storage.Open(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return alarm.Report{}, err
	}
	defer backend.Close()

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("telegram.bot_token not configured; fired alarms will not be delivered")
	}
	return a.newEngine(a.newProvider(), notifier, backend.Alarms).Sweep(ctx)
}

// SimulateAlert pushes a price alarm for coin through a sweep at the given price
// and delivers the resulting notification to chatID. Nothing is persisted.
func (a *App) SimulateAlert(ctx context.Context, chatID, coin string, price float64) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("telegram.bot_token must be configured to send a test notification")
	}

	a1, err := alarm.NewPriceAlarm(coin, alarm.DirectionBelow, price*1.01, market.CurrencyUSD, 0)
	if err != nil {
		return err
	}
	store := &memoryStore{alarms: map[string][]alarm.Alarm{chatID: {a1}}}
	provider := staticProvider{price: price}

	report, err := a.newEngine(provider, notifier, store).Sweep(ctx)
	if err != nil {
		return err
	}
	if report.Fired != 1 {
		return fmt.Errorf("simulated alarm did not fire (fired=%d, skipped=%d)", report.Fired, report.Skipped)
	}
	a.Logger.Info().Str("chat_id", chatID).Str("coin", a1.Coin).Msg("simulated alarm sent")
	return nil
}

type memoryStore struct {
	alarms map[string][]alarm.Alarm
}

func (s *memoryStore) LoadAll(context.Context) (map[string][]alarm.Alarm, error) {
	return s.alarms, nil
}

func (s *memoryStore) SaveAll(_ context.Context, userID string, list []alarm.Alarm) error {
	s.alarms[userID] = list
	return nil
}

// staticProvider answers every price lookup with one value.
type staticProvider struct {
	price float64
}

func (p staticProvider) CurrentPrice(context.Context, string, string) (float64, error) {
	return p.price, nil
}

func (p staticProvider) PercentChange24h(context.Context, string) (float64, error) {
	return 0, market.ErrNoData
}

func (p staticProvider) HistoricalSeries(context.Context, string, string, int) ([]market.PricePoint, error) {
	return nil, market.ErrNoData
}

func (p staticProvider) Volatility24h(context.Context, string) (market.Volatility, error) {
	return market.Volatility{}, market.ErrNoData
}

func (p staticProvider) RSI(context.Context, string, int) (float64, error) {
	return 0, market.ErrNoData
}

var (
	_ alarm.Store     = (*memoryStore)(nil)
	_ market.Provider = staticProvider{}
)
