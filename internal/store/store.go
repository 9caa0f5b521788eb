package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Store is a small persisted key-value map backing the agent's local state:
// the stable user id, the monitoring flag, and the daily stats counters.
// Values are raw JSON so callers own their own schemas.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]json.RawMessage
}

// Well-known keys.
const (
	KeyUserID        = "user_id"
	KeyIsActive      = "is_active"
	KeyTodayStats    = "today_stats"
	KeyLastStatsDate = "last_stats_date"
)

// Open loads the store from path, starting empty when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: make(map[string]json.RawMessage),
	}

	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, err
	}
	return s, nil
}

// Get unmarshals the value under key into out. Returns false when absent.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// Put stores value under key and persists the whole map to disk.
func (s *Store) Put(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return s.flushLocked()
}

// GetString is a convenience for string values; empty when absent.
func (s *Store) GetString(key string) string {
	var v string
	ok, err := s.Get(key, &v)
	if !ok || err != nil {
		return ""
	}
	return v
}

// GetBool returns the stored bool, or fallback when absent or unreadable.
func (s *Store) GetBool(key string, fallback bool) bool {
	var v bool
	ok, err := s.Get(key, &v)
	if !ok || err != nil {
		return fallback
	}
	return v
}

func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, payload, 0o644)
}
