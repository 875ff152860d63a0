package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rewired-gh/mawaqit/internal/models"
)

// SettingsStore persists the user's calculation settings.
type SettingsStore interface {
	// Load returns the saved settings, or models.DefaultSettings when none exist.
	Load() (models.SettingsSnapshot, error)
	Save(models.SettingsSnapshot) error
}

// FileSettingsStore keeps settings in a JSON file written atomically.
type FileSettingsStore struct {
	path     string
	defaults models.SettingsSnapshot
	mu       sync.Mutex
}

// NewFileSettingsStore creates a store at path, creating parent directories.
func NewFileSettingsStore(path string) (*FileSettingsStore, error) {
	if path == "" {
		return nil, errors.New("settings path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	return &FileSettingsStore{path: path, defaults: models.DefaultSettings()}, nil
}

// WithDefaults sets the settings Load returns while no file exists.
func (s *FileSettingsStore) WithDefaults(d models.SettingsSnapshot) *FileSettingsStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = d
	return s
}

// Path returns the backing file path.
func (s *FileSettingsStore) Path() string {
	return s.path
}

// Load reads the settings file or returns defaults if it does not exist.
func (s *FileSettingsStore) Load() (models.SettingsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.defaults, nil
		}
		return models.SettingsSnapshot{}, fmt.Errorf("read settings: %w", err)
	}

	var snap models.SettingsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.SettingsSnapshot{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return snap, nil
}

// Save writes the settings to disk atomically.
func (s *FileSettingsStore) Save(snap models.SettingsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// MemorySettingsStore keeps settings in memory. Used when no settings file is configured.
type MemorySettingsStore struct {
	mu       sync.Mutex
	snap     models.SettingsSnapshot
	defaults models.SettingsSnapshot
	saved    bool
}

// NewMemorySettingsStore returns an empty in-memory store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{defaults: models.DefaultSettings()}
}

// WithDefaults sets the settings Load returns before the first Save.
func (s *MemorySettingsStore) WithDefaults(d models.SettingsSnapshot) *MemorySettingsStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = d
	return s
}

// Load returns the last saved settings or defaults.
func (s *MemorySettingsStore) Load() (models.SettingsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return s.defaults, nil
	}
	return s.snap, nil
}

// Save records snap.
func (s *MemorySettingsStore) Save(snap models.SettingsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.saved = true
	return nil
}
