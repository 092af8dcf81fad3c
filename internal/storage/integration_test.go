package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"coin-alarm-bot/internal/config"
)

// These tests talk to real servers and run only when the matching variable is set.

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("COINBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COINBOT_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	store := NewStore(pool)
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	user := "test-" + time.Now().Format("150405.000000")
	if err := store.SaveAll(ctx, user, sampleAlarms()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	defer store.SaveAll(context.Background(), user, nil)

	got, err := store.Load(ctx, user)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertAlarmsEqual(t, sampleAlarms(), got)

	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	assertAlarmsEqual(t, sampleAlarms(), all[user])

	unlock, ok, err := store.TryAdvisoryLock(ctx, 0x7e57)
	if err != nil || !ok {
		t.Fatalf("TryAdvisoryLock: ok=%v err=%v", ok, err)
	}
	unlock()
}

func TestRedisAlarmStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("COINBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("COINBOT_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, config.RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	store := NewRedisAlarmStore(client, "coinbot-test")
	defer client.Del(context.Background(), store.key)

	if err := store.SaveAll(ctx, "42", sampleAlarms()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	got, err := store.Load(ctx, "42")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertAlarmsEqual(t, sampleAlarms(), got)

	if err := store.SaveAll(ctx, "42", nil); err != nil {
		t.Fatalf("SaveAll empty: %v", err)
	}
	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, ok := all["42"]; ok {
		t.Fatal("empty save should remove the user")
	}
}
