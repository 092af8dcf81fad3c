package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coin-alarm-bot/internal/alarm"
)

const (
	createAlarmsTableSQL = `CREATE TABLE IF NOT EXISTS user_alarms (
        user_id    TEXT PRIMARY KEY,
        alarms     JSONB NOT NULL DEFAULT '[]'::jsonb,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertAlarmsSQL = `INSERT INTO user_alarms (user_id, alarms, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (user_id) DO UPDATE
    SET alarms     = EXCLUDED.alarms,
        updated_at = EXCLUDED.updated_at;`

	deleteAlarmsSQL = `DELETE FROM user_alarms WHERE user_id = $1;`

	listAlarmsSQL = `SELECT user_id, alarms FROM user_alarms ORDER BY user_id;`

	getAlarmsSQL = `SELECT alarms FROM user_alarms WHERE user_id = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store keeps each user's alarm list as one JSONB row.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the alarm table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createAlarmsTableSQL); err != nil {
		return fmt.Errorf("create user_alarms: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session when the connection closes.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// LoadAll returns every user's alarm list.
func (s *Store) LoadAll(ctx context.Context) (map[string][]alarm.Alarm, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlarmsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list alarms: %w", queryErr)
	}
	defer rows.Close()

	out := make(map[string][]alarm.Alarm)
	for rows.Next() {
		var (
			userID string
			raw    []byte
		)
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, err
		}
		alarms, err := decodeAlarms(raw)
		if err != nil {
			return nil, fmt.Errorf("decode alarms of %s: %w", userID, err)
		}
		out[userID] = alarms
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Load returns one user's alarms; a user without a row has none.
func (s *Store) Load(ctx context.Context, userID string) ([]alarm.Alarm, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var raw []byte
	if err := pool.QueryRow(ctx, getAlarmsSQL, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alarms: %w", err)
	}
	return decodeAlarms(raw)
}

// SaveAll replaces the user's alarm list. An empty list removes the row.
func (s *Store) SaveAll(ctx context.Context, userID string, alarms []alarm.Alarm) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if len(alarms) == 0 {
		if _, err := pool.Exec(ctx, deleteAlarmsSQL, userID); err != nil {
			return fmt.Errorf("delete alarms: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(alarms)
	if err != nil {
		return fmt.Errorf("encode alarms: %w", err)
	}
	if _, err := pool.Exec(ctx, upsertAlarmsSQL, userID, raw); err != nil {
		return fmt.Errorf("upsert alarms: %w", err)
	}
	return nil
}

func decodeAlarms(raw []byte) ([]alarm.Alarm, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var alarms []alarm.Alarm
	if err := json.Unmarshal(raw, &alarms); err != nil {
		return nil, err
	}
	return alarms, nil
}

var (
	_ AlarmRepository = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
