package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/config"
	"coin-alarm-bot/internal/market"
	"coin-alarm-bot/internal/scheduler"
	"coin-alarm-bot/internal/storage"
)

// Sweeper runs one alarm sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (alarm.Report, error)
}

// Warmer preloads cached market values for a coin.
type Warmer interface {
	Warm(ctx context.Context, coin string, currencies []string, rsiPeriod int) error
}

// ProfileSource lists every user profile.
type ProfileSource interface {
	All(ctx context.Context) (map[string]storage.Profile, error)
}

// Service owns the periodic jobs: the alarm sweep and the price-cache refresh.
type Service struct {
	sweepScheduler *scheduler.Scheduler
	cacheScheduler *scheduler.Scheduler

	sweeper  Sweeper
	warmer   Warmer
	profiles ProfileSource
	locker   storage.AdvisoryLocker
	lockKey  int64

	rsiPeriod int
	logger    zerolog.Logger
}

// New constructs the job service. warmer and locker may be nil.
func New(cfg *config.Config, sweeper Sweeper, warmer Warmer, profiles ProfileSource, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	s := &Service{
		sweepScheduler: scheduler.New(scheduler.Options{
			Name:         "alarm_sweep",
			Interval:     cfg.Scheduler.SweepInterval,
			StartupDelay: cfg.Scheduler.StartupDelay,
		}, logger),
		sweeper:   sweeper,
		warmer:    warmer,
		profiles:  profiles,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
		rsiPeriod: cfg.Market.RSIPeriod,
		logger:    logger.With().Str("component", "service").Logger(),
	}
	if warmer != nil && profiles != nil {
		s.cacheScheduler = scheduler.New(scheduler.Options{
			Name:     "cache_refresh",
			Interval: cfg.Scheduler.CacheRefreshInterval,
		}, logger)
	}
	return s
}

// Run blocks until ctx is cancelled, driving both jobs.
func (s *Service) Run(ctx context.Context) error {
	if s.sweepScheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.sweepScheduler.Run(ctx, s.SweepTick)
	})
	if s.cacheScheduler != nil {
		g.Go(func() error {
			return s.cacheScheduler.Run(ctx, s.RefreshCache)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SweepTick runs one sweep unless another process holds the advisory lock.
func (s *Service) SweepTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip sweep because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.sweeper.Sweep(ctx)
	return err
}

// RefreshCache warms cached prices for every watched or held coin in every
// currency its users display.
func (s *Service) RefreshCache(ctx context.Context, at time.Time) error {
	if s.warmer == nil || s.profiles == nil {
		return nil
	}
	profiles, err := s.profiles.All(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	wanted := coinCurrencies(profiles)
	var errs []error
	for coin, currencies := range wanted {
		if err := s.warmer.Warm(ctx, coin, currencies, s.rsiPeriod); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Debug().Time("at", at).Int("coins", len(wanted)).Int("failed", len(errs)).Msg("price cache refreshed")
	if len(errs) > 0 {
		return fmt.Errorf("refresh %d of %d coins failed: %w", len(errs), len(wanted), errors.Join(errs...))
	}
	return nil
}

func coinCurrencies(profiles map[string]storage.Profile) map[string][]string {
	out := make(map[string][]string)
	for _, p := range profiles {
		currency := p.DisplayCurrency()
		for _, coin := range p.Coins() {
			coin = market.NormalizeCoin(coin)
			if !slices.Contains(out[coin], currency) {
				out[coin] = append(out[coin], currency)
			}
		}
	}
	for coin := range out {
		slices.Sort(out[coin])
	}
	return out
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
