package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/selfrecall/selfrecall/internal/recall"
)

// RecallStore serves recall settings snapshots and persists whitelist edits.
// It implements recall.SettingsSource.
type RecallStore struct {
	mu      sync.RWMutex
	path    string
	cfg     RecallConfig
	modTime time.Time
}

var _ recall.SettingsSource = (*RecallStore)(nil)

// NewRecallStore starts from cfg. An empty path keeps whitelist edits in memory.
func NewRecallStore(cfg RecallConfig, path string) *RecallStore {
	s := &RecallStore{path: path, cfg: cfg}
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			s.modTime = info.ModTime()
		}
	}
	return s
}

func (s *RecallStore) Settings() recall.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Settings()
}

// Recall returns a copy of the current recall section.
func (s *RecallStore) Recall() RecallConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cfg
	c.GroupWhitelist = slices.Clone(s.cfg.GroupWhitelist)
	c.Admins = slices.Clone(s.cfg.Admins)
	return c
}

// SetWhitelist replaces the group whitelist and writes it back to the file.
// The file is re-read first so secrets injected from the environment are not
// persisted. A file that does not parse is left untouched and nothing changes.
func (s *RecallStore) SetWhitelist(groupIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := slices.Clone(groupIDs)
	if ids == nil {
		ids = []string{}
	}
	if s.path != "" {
		onDisk, err := loadStrict(s.path)
		if err != nil {
			return fmt.Errorf("whitelist not saved: %w", err)
		}
		onDisk.Recall.GroupWhitelist = ids
		if err := Save(onDisk, s.path); err != nil {
			return err
		}
		if info, err := os.Stat(s.path); err == nil {
			s.modTime = info.ModTime()
		}
	}
	s.cfg.GroupWhitelist = ids
	return nil
}

// Reload re-reads the recall section if the file changed since the last read.
// It reports whether anything was reloaded. A file that does not parse keeps
// the current settings and is retried on the next call.
func (s *RecallStore) Reload() (bool, error) {
	if s.path == "" {
		return false, nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat config %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !info.ModTime().After(s.modTime) {
		return false, nil
	}
	cfg, err := loadStrict(s.path)
	if err != nil {
		return false, err
	}
	s.cfg = cfg.Recall
	s.modTime = info.ModTime()
	slog.Info("config: recall settings reloaded", "path", s.path)
	return true, nil
}
