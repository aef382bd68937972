// Package pending tracks arena ids whose results have not been delivered.
package pending

import (
	"context"

	"github.com/park285/winchance-agent/internal/domain"
)

// Queue is a durable ordered set of arena ids. Add and Remove are
// idempotent and report whether they changed anything.
type Queue interface {
	Add(ctx context.Context, id domain.ArenaID) (bool, error)
	Remove(ctx context.Context, id domain.ArenaID) (bool, error)
	List(ctx context.Context) ([]domain.ArenaID, error)
	Contains(ctx context.Context, id domain.ArenaID) (bool, error)
}
