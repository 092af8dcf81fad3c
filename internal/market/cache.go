package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache stores short-lived float values keyed by "COIN_CURRENCY[_suffix]".
type Cache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Set(ctx context.Context, key string, value float64, ttl time.Duration)
}

type memoryEntry struct {
	value   float64
	expires time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache constructs an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns a fresh value if present.
func (c *MemoryCache) Get(_ context.Context, key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return 0, false
	}
	return entry.value, true
}

// Set stores value until ttl elapses.
func (c *MemoryCache) Set(_ context.Context, key string, value float64, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expires: c.now().Add(ttl)}
}

// RedisCache keeps cached values in redis so several bot replicas share them.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisCache wraps an existing redis client.
func NewRedisCache(client *redis.Client, prefix string, logger zerolog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "price_cache_redis").Logger(),
	}
}

// Get reads a cached value. Misses and redis errors both report false.
func (c *RedisCache) Get(ctx context.Context, key string) (float64, bool) {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("price cache read failed")
		}
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// Set writes value with an expiry.
func (c *RedisCache) Set(ctx context.Context, key string, value float64, ttl time.Duration) {
	if err := c.client.Set(ctx, c.key(key), strconv.FormatFloat(value, 'f', -1, 64), ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("price cache write failed")
	}
}

func (c *RedisCache) key(k string) string {
	return fmt.Sprintf("%s:price:%s", c.prefix, k)
}

// CachedProvider serves price, 24h change and RSI from a cache and falls back to
// the wrapped provider on a miss. Series and volatility are always live.
type CachedProvider struct {
	Provider
	cache Cache
	ttl   time.Duration
}

// NewCachedProvider wraps inner with cache.
func NewCachedProvider(inner Provider, cache Cache, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CachedProvider{Provider: inner, cache: cache, ttl: ttl}
}

// CurrentPrice returns the cached price for coin in currency.
func (p *CachedProvider) CurrentPrice(ctx context.Context, coin, currency string) (float64, error) {
	key := cacheKey(coin, NormalizeCurrency(currency), "price")
	if v, ok := p.cache.Get(ctx, key); ok {
		return v, nil
	}
	v, err := p.Provider.CurrentPrice(ctx, coin, currency)
	if err != nil {
		return 0, err
	}
	p.cache.Set(ctx, key, v, p.ttl)
	return v, nil
}

// PercentChange24h returns the cached 24h change.
func (p *CachedProvider) PercentChange24h(ctx context.Context, coin string) (float64, error) {
	key := cacheKey(coin, CurrencyUSD, "24h_change")
	if v, ok := p.cache.Get(ctx, key); ok {
		return v, nil
	}
	v, err := p.Provider.PercentChange24h(ctx, coin)
	if err != nil {
		return 0, err
	}
	p.cache.Set(ctx, key, v, p.ttl)
	return v, nil
}

// RSI returns the cached indicator value for period.
func (p *CachedProvider) RSI(ctx context.Context, coin string, period int) (float64, error) {
	key := cacheKey(coin, CurrencyUSD, "rsi_"+strconv.Itoa(period))
	if v, ok := p.cache.Get(ctx, key); ok {
		return v, nil
	}
	v, err := p.Provider.RSI(ctx, coin, period)
	if err != nil {
		return 0, err
	}
	p.cache.Set(ctx, key, v, p.ttl)
	return v, nil
}

// Warm refreshes price, change and RSI for coin regardless of cache state.
func (p *CachedProvider) Warm(ctx context.Context, coin string, currencies []string, rsiPeriod int) error {
	var errs []error
	if v, err := p.Provider.PercentChange24h(ctx, coin); err == nil {
		p.cache.Set(ctx, cacheKey(coin, CurrencyUSD, "24h_change"), v, p.ttl)
	} else {
		errs = append(errs, err)
	}
	if v, err := p.Provider.RSI(ctx, coin, rsiPeriod); err == nil {
		p.cache.Set(ctx, cacheKey(coin, CurrencyUSD, "rsi_"+strconv.Itoa(rsiPeriod)), v, p.ttl)
	} else {
		errs = append(errs, err)
	}
	for _, currency := range currencies {
		currency = NormalizeCurrency(currency)
		if v, err := p.Provider.CurrentPrice(ctx, coin, currency); err == nil {
			p.cache.Set(ctx, cacheKey(coin, currency, "price"), v, p.ttl)
		} else {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cacheKey(coin, currency, field string) string {
	return NormalizeCoin(coin) + "_" + currency + "_" + field
}

var (
	_ Provider = (*CachedProvider)(nil)
	_ Cache    = (*MemoryCache)(nil)
	_ Cache    = (*RedisCache)(nil)
)
