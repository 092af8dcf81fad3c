package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"coin-alarm-bot/internal/alarm"
)

// RedisAlarmStore keeps alarms in one hash: field = user id, value = JSON list.
type RedisAlarmStore struct {
	client *redis.Client
	key    string
}

// NewRedisAlarmStore uses the hash "<prefix>:alarms".
func NewRedisAlarmStore(client *redis.Client, prefix string) *RedisAlarmStore {
	if prefix == "" {
		prefix = "coinbot"
	}
	return &RedisAlarmStore{client: client, key: prefix + ":alarms"}
}

// LoadAll returns every user's alarm list.
func (s *RedisAlarmStore) LoadAll(ctx context.Context) (map[string][]alarm.Alarm, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotConfigured
	}
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	out := make(map[string][]alarm.Alarm, len(fields))
	for userID, raw := range fields {
		alarms, err := decodeAlarms([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode alarms of %s: %w", userID, err)
		}
		out[userID] = alarms
	}
	return out, nil
}

// Load returns one user's alarms.
func (s *RedisAlarmStore) Load(ctx context.Context, userID string) ([]alarm.Alarm, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotConfigured
	}
	raw, err := s.client.HGet(ctx, s.key, userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s: %w", s.key, err)
	}
	return decodeAlarms(raw)
}

// SaveAll replaces the user's list. An empty list removes the field.
func (s *RedisAlarmStore) SaveAll(ctx context.Context, userID string, alarms []alarm.Alarm) error {
	if s == nil || s.client == nil {
		return ErrNotConfigured
	}
	if len(alarms) == 0 {
		if err := s.client.HDel(ctx, s.key, userID).Err(); err != nil {
			return fmt.Errorf("hdel %s: %w", s.key, err)
		}
		return nil
	}
	raw, err := json.Marshal(alarms)
	if err != nil {
		return fmt.Errorf("encode alarms: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, userID, raw).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", s.key, err)
	}
	return nil
}

var _ AlarmRepository = (*RedisAlarmStore)(nil)
