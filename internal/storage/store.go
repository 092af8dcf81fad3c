package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/config"
)

// ErrNotConfigured indicates the backing client was not initialised.
var ErrNotConfigured = errors.New("storage: backend not configured")

// AlarmRepository is the alarm store used by the sweep and the chat handlers.
// Writes replace one user's whole list; there is no per-alarm update.
type AlarmRepository interface {
	alarm.Store
	Load(ctx context.Context, userID string) ([]alarm.Alarm, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend bundles the stores selected by configuration.
type Backend struct {
	Alarms AlarmRepository
	Users  *UserStore
	// Locker is set only for the postgres backend.
	Locker AdvisoryLocker
	// Redis is set when any component needs a redis client.
	Redis *redis.Client

	closers []func()
}

// Close releases every client opened by Open.
func (b *Backend) Close() {
	if b == nil {
		return
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open builds the alarm and user stores for cfg.Backend. User profiles always
// live in the data directory.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*Backend, error) {
	users, err := NewUserStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	b := &Backend{Users: users}

	if cfg.Backend == config.BackendRedis || cfg.Redis.PriceCache {
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.Redis = client
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("close redis client")
			}
		})
	}

	switch cfg.Backend {
	case config.BackendFile, "":
		alarms, err := NewFileAlarmStore(cfg.DataDir)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Alarms = alarms
	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			b.Close()
			return nil, err
		}
		pg := NewStore(pool)
		b.closers = append(b.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Alarms = pg
		b.Locker = pg
	case config.BackendRedis:
		b.Alarms = NewRedisAlarmStore(b.Redis, cfg.Redis.KeyPrefix)
	default:
		b.Close()
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	logger.Info().Str("backend", cfg.Backend).Str("data_dir", cfg.DataDir).Msg("storage opened")
	return b, nil
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// NewRedisClient connects to redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
