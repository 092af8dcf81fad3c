package market

import (
	"context"
	"testing"
	"time"
)

type countingProvider struct {
	Provider
	priceCalls int
	price      float64
}

func (p *countingProvider) CurrentPrice(ctx context.Context, coin, currency string) (float64, error) {
	p.priceCalls++
	return p.price, nil
}

func TestCachedProviderServesFromCache(t *testing.T) {
	inner := &countingProvider{price: 42}
	cache := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	p := NewCachedProvider(inner, cache, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := p.CurrentPrice(ctx, "btc", "usd")
		if err != nil || v != 42 {
			t.Fatalf("price = %v, %v", v, err)
		}
	}
	if inner.priceCalls != 1 {
		t.Fatalf("inner provider should be hit once, got %d", inner.priceCalls)
	}

	now = now.Add(11 * time.Second)
	if _, err := p.CurrentPrice(ctx, "BTC", "USD"); err != nil {
		t.Fatalf("price after expiry: %v", err)
	}
	if inner.priceCalls != 2 {
		t.Fatalf("expired entry should refetch, got %d calls", inner.priceCalls)
	}
}

func TestCachedProviderKeysByCurrency(t *testing.T) {
	inner := &countingProvider{price: 1}
	p := NewCachedProvider(inner, NewMemoryCache(), time.Minute)
	ctx := context.Background()

	_, _ = p.CurrentPrice(ctx, "ETH", "USD")
	_, _ = p.CurrentPrice(ctx, "ETH", "EUR")
	if inner.priceCalls != 2 {
		t.Fatalf("USD and EUR should be cached separately, got %d calls", inner.priceCalls)
	}
}
