package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"coin-alarm-bot/internal/logging"
)

// Storage backends understood by StorageConfig.Backend.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Market    MarketConfig    `mapstructure:"market"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alarms    AlarmsConfig    `mapstructure:"alarms"`
	Guard     GuardConfig     `mapstructure:"guard"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig covers both the long-polling bot and the outbound notifier.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MarketConfig captures exchange connectivity.
type MarketConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	USDEURRate        float64       `mapstructure:"usd_eur_rate"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RSIPeriod         int           `mapstructure:"rsi_period"`
	// TrendingCoins is the universe ranked by /trending.
	TrendingCoins []string `mapstructure:"trending_coins"`
}

// StorageConfig selects where alarms and user data live.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	DataDir  string         `mapstructure:"data_dir"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig is shared by the redis alarm store and the redis price cache.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// PriceCache moves the handler-side price cache from process memory to redis.
	PriceCache bool `mapstructure:"price_cache"`
}

// SchedulerConfig governs the periodic jobs.
type SchedulerConfig struct {
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	CacheRefreshInterval time.Duration `mapstructure:"cache_refresh_interval"`
	StartupDelay         time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey      int64         `mapstructure:"advisory_lock_key"`
}

// AlarmsConfig tunes alarm evaluation.
type AlarmsConfig struct {
	// NotifyOncePerCondition latches price and watchlist alarms so they notify once
	// per crossing instead of on every sweep while the condition holds.
	NotifyOncePerCondition bool `mapstructure:"notify_once_per_condition"`
	MaxPerUser             int  `mapstructure:"max_per_user"`
}

// GuardConfig holds the flood protection thresholds.
type GuardConfig struct {
	Enabled        bool            `mapstructure:"enabled"`
	HistorySize    int             `mapstructure:"history_size"`
	BurstWindow    time.Duration   `mapstructure:"burst_window"`
	BurstThreshold int             `mapstructure:"burst_threshold"`
	WarnWindow     time.Duration   `mapstructure:"warn_window"`
	WarnThreshold  int             `mapstructure:"warn_threshold"`
	BlockWindow    time.Duration   `mapstructure:"block_window"`
	BlockThreshold int             `mapstructure:"block_threshold"`
	Escalation     []time.Duration `mapstructure:"escalation"`
}

// HTTPConfig configures the health and metrics listener. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, .env and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("COINBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "coin-alarm-bot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "10s")
	v.SetDefault("telegram.request_timeout", "10s")

	v.SetDefault("market.base_url", "https://api.binance.com")
	v.SetDefault("market.request_timeout", "5s")
	v.SetDefault("market.requests_per_second", 10.0)
	v.SetDefault("market.usd_eur_rate", 0.9)
	v.SetDefault("market.cache_ttl", "10s")
	v.SetDefault("market.rsi_period", 14)
	v.SetDefault("market.trending_coins", []string{"BTC", "ETH", "SOL", "ADA", "TON", "XRP", "DOGE", "BNB", "LTC", "MATIC"})

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.database.max_open_conns", 10)
	v.SetDefault("storage.database.max_idle_conns", 2)
	v.SetDefault("storage.database.conn_max_lifetime", "30m")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key_prefix", "coinbot")
	v.SetDefault("storage.redis.price_cache", false)

	v.SetDefault("scheduler.sweep_interval", "60s")
	v.SetDefault("scheduler.cache_refresh_interval", "10s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x636f696e))

	v.SetDefault("alarms.notify_once_per_condition", false)
	v.SetDefault("alarms.max_per_user", 50)

	v.SetDefault("guard.enabled", true)
	v.SetDefault("guard.history_size", 30)
	v.SetDefault("guard.burst_window", "1s")
	v.SetDefault("guard.burst_threshold", 3)
	v.SetDefault("guard.warn_window", "2s")
	v.SetDefault("guard.warn_threshold", 6)
	v.SetDefault("guard.block_window", "10s")
	v.SetDefault("guard.block_threshold", 30)
	v.SetDefault("guard.escalation", []string{"60s", "300s", "1200s", "3600s"})

	v.SetDefault("http.listen", "")

	v.SetDefault("export.max_data_points", 1000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval must be greater than zero")
	}
	if c.Scheduler.CacheRefreshInterval <= 0 {
		return fmt.Errorf("scheduler.cache_refresh_interval must be greater than zero")
	}
	if c.Market.USDEURRate <= 0 {
		return fmt.Errorf("market.usd_eur_rate must be greater than zero")
	}
	if c.Market.RSIPeriod < 2 {
		return fmt.Errorf("market.rsi_period must be at least 2")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the file backend")
		}
	case BackendPostgres:
		if c.Storage.Database.DSN == "" {
			return fmt.Errorf("storage.database.dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}

	if c.Guard.Enabled {
		if c.Guard.HistorySize <= 0 {
			return fmt.Errorf("guard.history_size must be greater than zero")
		}
		if c.Guard.BurstThreshold <= 0 || c.Guard.WarnThreshold <= 0 || c.Guard.BlockThreshold <= 0 {
			return fmt.Errorf("guard thresholds must be greater than zero")
		}
		if c.Guard.BlockThreshold > c.Guard.HistorySize {
			return fmt.Errorf("guard.block_threshold cannot exceed guard.history_size")
		}
		if len(c.Guard.Escalation) == 0 {
			return fmt.Errorf("guard.escalation needs at least one block duration")
		}
	}
	return nil
}

// RequireBot checks the settings needed by the long-running bot.
func (c *Config) RequireBot() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token must be configured (COINBOT_TELEGRAM_BOT_TOKEN)")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
