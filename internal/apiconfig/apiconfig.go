// Package apiconfig persists the delivery-channel settings and credentials
// obtained from registration.
package apiconfig

import (
	"errors"
	"io/fs"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/util"
)

// Config mirrors mod_winchance_api.json.
type Config struct {
	APIURL    string `json:"api_url"`
	Region    string `json:"region"`
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token"`
	Nickname  string `json:"nickname"`
	AccountID int64  `json:"account_id"`
}

func (c Config) HasToken() bool { return strings.TrimSpace(c.Token) != "" }

// Store guards the in-memory snapshot and writes it back on every update.
type Store struct {
	mu     sync.RWMutex
	path   string
	cur    Config
	logger *zap.Logger
}

// Open reads path over defaults. A missing or corrupt file leaves the
// defaults in place.
func Open(path string, defaults Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, cur: defaults, logger: logger}
	loaded := defaults
	if err := util.ReadJSONFile(path, &loaded); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("api_config_load_failed", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if strings.TrimSpace(loaded.APIURL) == "" {
		loaded.APIURL = defaults.APIURL
	}
	if strings.TrimSpace(loaded.Region) == "" {
		loaded.Region = defaults.Region
	}
	s.cur = loaded
	logger.Info("api_config_loaded", zap.Bool("enabled", loaded.Enabled), zap.Bool("has_token", loaded.HasToken()), zap.Int64("account_id", loaded.AccountID))
	return s
}

func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn and persists the result.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	next := s.cur
	fn(&next)
	s.cur = next
	s.mu.Unlock()
	return s.Save()
}

// Save writes the snapshot with a UTF-8 BOM, as the game-side reader expects.
func (s *Store) Save() error {
	cfg := s.Get()
	if err := util.WriteJSONFile(s.path, cfg, true); err != nil {
		s.logger.Error("api_config_save_failed", zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.logger.Info("api_config_saved", zap.String("path", s.path))
	return nil
}
