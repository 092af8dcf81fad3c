package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/alerting"
	"coin-alarm-bot/internal/bot"
	"coin-alarm-bot/internal/config"
	"coin-alarm-bot/internal/guard"
	"coin-alarm-bot/internal/httpapi"
	"coin-alarm-bot/internal/market"
	"coin-alarm-bot/internal/service"
	"coin-alarm-bot/internal/storage"
	"coin-alarm-bot/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newProvider() *market.Binance {
	return market.NewBinance(market.BinanceOptions{
		BaseURL:           a.Config.Market.BaseURL,
		Timeout:           a.Config.Market.RequestTimeout,
		RequestsPerSecond: a.Config.Market.RequestsPerSecond,
		USDEURRate:        a.Config.Market.USDEURRate,
		UserAgent:         version.UserAgent(),
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Telegram
	if cfg.BotToken == "" {
		return nil
	}
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

func (a *App) newEngine(provider market.Provider, notifier alerting.Notifier, store alarm.Store) *alarm.Engine {
	return alarm.NewEngine(provider, notifier, store, alarm.Options{
		NotifyOncePerCondition: a.Config.Alarms.NotifyOncePerCondition,
		RSIPeriod:              a.Config.Market.RSIPeriod,
	}, a.Logger)
}

// newCachedProvider wraps live with the redis cache when configured, else memory.
func (a *App) newCachedProvider(live market.Provider, backend *storage.Backend) *market.CachedProvider {
	var cache market.Cache = market.NewMemoryCache()
	if backend.Redis != nil && a.Config.Storage.Redis.PriceCache {
		cache = market.NewRedisCache(backend.Redis, a.Config.Storage.Redis.KeyPrefix, a.Logger)
	}
	return market.NewCachedProvider(live, cache, a.Config.Market.CacheTTL)
}

// Run executes the bot, the periodic jobs and the optional HTTP listener until
// SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.RequireBot(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := storage.Open(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	live := a.newProvider()
	cached := a.newCachedProvider(live, backend)
	engine := a.newEngine(live, a.newNotifier(), backend.Alarms)
	svc := service.New(a.Config, engine, cached, backend.Users, backend.Locker, a.Logger)

	var flood *guard.Guard
	if a.Config.Guard.Enabled {
		flood = guard.New(a.Config.Guard, a.Logger)
	} else {
		a.Logger.Warn().Msg("flood guard disabled")
	}

	handlers := bot.NewHandlers(backend.Alarms, backend.Users, cached, live, bot.Options{
		MaxAlarmsPerUser: a.Config.Alarms.MaxPerUser,
		RSIPeriod:        a.Config.Market.RSIPeriod,
		USDEURRate:       a.Config.Market.USDEURRate,
		RequestTimeout:   a.Config.Telegram.RequestTimeout,
		TrendingCoins:    a.Config.Market.TrendingCoins,
	}, a.Logger)
	tgBot, err := bot.New(a.Config.Telegram, handlers, flood, a.Logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tgBot.Run(ctx) })
	g.Go(func() error { return svc.Run(ctx) })
	if addr := a.Config.HTTP.Listen; addr != "" {
		srv := httpapi.New(addr, a.healthChecks(backend), a.Logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	a.Logger.Info().
		Str("version", version.Version).
		Str("storage", a.Config.Storage.Backend).
		Dur("sweep_interval", a.Config.Scheduler.SweepInterval).
		Msg("coin alarm bot started")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("bot terminated with error")
		return err
	}

	a.Logger.Info().Msg("coin alarm bot stopped")
	return nil
}

func (a *App) healthChecks(backend *storage.Backend) map[string]httpapi.HealthFunc {
	checks := map[string]httpapi.HealthFunc{
		"alarm_store": func(ctx context.Context) error {
			_, err := backend.Alarms.LoadAll(ctx)
			return err
		},
	}
	if backend.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return backend.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// ExportOptions hold parameters for exporting a price series.
type ExportOptions struct {
	Coin      string
	Interval  string
	Limit     int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the alarms command.
type ShowOptions struct {
	UserID string
}
