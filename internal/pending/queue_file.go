package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/util"
)

// FileQueue stores the whole set as one JSON array, rewritten on change.
type FileQueue struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

func NewFileQueue(path string, logger *zap.Logger) *FileQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileQueue{path: path, logger: logger}
}

// load returns the stored ids. A corrupt file reads as empty and is
// replaced on the next write.
func (q *FileQueue) load() []domain.ArenaID {
	b, err := os.ReadFile(q.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			q.logger.Error("pending_load_failed", zap.String("path", q.path), zap.Error(err))
		}
		return nil
	}
	var ids []domain.ArenaID
	if err := json.Unmarshal(b, &ids); err != nil {
		q.logger.Error("pending_corrupt", zap.String("path", q.path), zap.Error(err))
		return nil
	}
	return dedupe(ids)
}

func (q *FileQueue) save(ids []domain.ArenaID) error {
	if ids == nil {
		ids = []domain.ArenaID{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	return util.WriteFileAtomic(q.path, b)
}

func (q *FileQueue) Add(_ context.Context, id domain.ArenaID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.load()
	if indexOf(ids, id) >= 0 {
		return false, nil
	}
	if err := q.save(append(ids, id)); err != nil {
		return false, err
	}
	return true, nil
}

func (q *FileQueue) Remove(_ context.Context, id domain.ArenaID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.load()
	i := indexOf(ids, id)
	if i < 0 {
		return false, nil
	}
	ids = append(ids[:i], ids[i+1:]...)
	if err := q.save(ids); err != nil {
		return false, err
	}
	return true, nil
}

func (q *FileQueue) List(_ context.Context) ([]domain.ArenaID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(), nil
}

func (q *FileQueue) Contains(_ context.Context, id domain.ArenaID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return indexOf(q.load(), id) >= 0, nil
}

func indexOf(ids []domain.ArenaID, id domain.ArenaID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func dedupe(ids []domain.ArenaID) []domain.ArenaID {
	seen := make(map[domain.ArenaID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
