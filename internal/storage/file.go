package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"coin-alarm-bot/internal/alarm"
)

const alarmsFile = "alarms.json"

// FileAlarmStore keeps every user's alarms in one JSON document keyed by user id.
// Each SaveAll rewrites the whole file; the mutex only prevents torn writes, so
// a writer holding a stale copy of a list still wins.
type FileAlarmStore struct {
	path string
	mu   sync.Mutex
}

// NewFileAlarmStore stores alarms under dir, creating it when needed.
func NewFileAlarmStore(dir string) (*FileAlarmStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileAlarmStore{path: filepath.Join(dir, alarmsFile)}, nil
}

// LoadAll returns every user's alarm list. A missing file is an empty store.
func (s *FileAlarmStore) LoadAll(context.Context) (map[string][]alarm.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Load returns one user's alarms.
func (s *FileAlarmStore) Load(_ context.Context, userID string) ([]alarm.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.read()
	if err != nil {
		return nil, err
	}
	return all[userID], nil
}

// SaveAll replaces the user's alarm list and rewrites the file.
func (s *FileAlarmStore) SaveAll(_ context.Context, userID string, alarms []alarm.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if len(alarms) == 0 {
		delete(all, userID)
	} else {
		all[userID] = alarms
	}
	return writeJSON(s.path, all)
}

func (s *FileAlarmStore) read() (map[string][]alarm.Alarm, error) {
	all := make(map[string][]alarm.Alarm)
	if err := readJSON(s.path, &all); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return all, nil
}

// readJSON decodes path into v, leaving v untouched when the file does not exist.
func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// writeJSON replaces path atomically via a temp file in the same directory.
func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

var _ AlarmRepository = (*FileAlarmStore)(nil)
