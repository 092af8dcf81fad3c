package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const usersFile = "users.json"

// UserStore persists profiles in one JSON file, whole-file rewrite like alarms.
type UserStore struct {
	path string
	mu   sync.Mutex
}

// NewUserStore stores profiles under dir, creating it when needed.
func NewUserStore(dir string) (*UserStore, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &UserStore{path: filepath.Join(dir, usersFile)}, nil
}

// Get returns the user's profile, zero when unknown.
func (s *UserStore) Get(_ context.Context, userID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.read()
	if err != nil {
		return Profile{}, err
	}
	return all[userID], nil
}

// All returns every stored profile.
func (s *UserStore) All(context.Context) (map[string]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update applies fn to the user's profile and persists the result. Nothing is
// written when fn fails.
func (s *UserStore) Update(_ context.Context, userID string, fn func(*Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	p := all[userID]
	if err := fn(&p); err != nil {
		return err
	}
	all[userID] = p
	return writeJSON(s.path, all)
}

// Delete forgets the user.
func (s *UserStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := all[userID]; !ok {
		return nil
	}
	delete(all, userID)
	return writeJSON(s.path, all)
}

func (s *UserStore) read() (map[string]Profile, error) {
	all := make(map[string]Profile)
	if err := readJSON(s.path, &all); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return all, nil
}
