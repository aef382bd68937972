package battlectx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/util"
)

var errBadArenaName = errors.New("arena id not usable as file name")

// FileStore keeps one JSON file per arena under dir.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) path(id domain.ArenaID) (string, error) {
	name := strings.TrimSpace(id.String())
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\:`) {
		return "", errBadArenaName
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Load returns an empty Context when the file is missing or unreadable.
func (s *FileStore) Load(_ context.Context, id domain.ArenaID) Context {
	p, err := s.path(id)
	if err != nil {
		return Context{}
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("context_load_failed", zap.String("arena_id", id.String()), zap.Error(err))
		}
		return Context{}
	}
	var c Context
	if err := json.Unmarshal(b, &c); err != nil {
		s.logger.Error("context_corrupt", zap.String("arena_id", id.String()), zap.Error(err))
		return Context{}
	}
	if c == nil {
		c = Context{}
	}
	return c
}

func (s *FileStore) Save(ctx context.Context, id domain.ArenaID, fields Context) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	merged := s.Load(ctx, id).Merge(fields)
	b, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	if err := util.WriteFileAtomic(p, b); err != nil {
		return err
	}
	s.logger.Debug("context_saved", zap.String("arena_id", id.String()), zap.Int("fields", len(merged)))
	return nil
}

// Delete removes the arena's file; a missing file is not an error.
func (s *FileStore) Delete(_ context.Context, id domain.ArenaID) error {
	p, err := s.path(id)
	if err != nil {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete context: %w", err)
	}
	return nil
}
