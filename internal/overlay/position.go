package overlay

import (
	"errors"
	"io/fs"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/util"
)

const (
	DefaultX = 0.75
	DefaultY = 0.05
)

// Position is the label's top-left corner in normalized screen units.
type Position struct {
	X float64 `json:"posX"`
	Y float64 `json:"posY"`
}

func DefaultPosition() Position { return Position{X: DefaultX, Y: DefaultY} }

// Sanitize resets each axis outside [0,1] to its default independently.
func (p Position) Sanitize() Position {
	if p.X < 0 || p.X > 1 {
		p.X = DefaultX
	}
	if p.Y < 0 || p.Y > 1 {
		p.Y = DefaultY
	}
	return p
}

// LoadPosition never fails: a missing or corrupt file yields the default.
func LoadPosition(path string, logger *zap.Logger) Position {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := DefaultPosition()
	if err := util.ReadJSONFile(path, &p); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("overlay_position_load_failed", zap.String("path", path), zap.Error(err))
		}
		return DefaultPosition()
	}
	s := p.Sanitize()
	if s != p {
		logger.Info("overlay_position_reset", zap.Float64("x", p.X), zap.Float64("y", p.Y))
	}
	return s
}

func SavePosition(path string, p Position) error {
	return util.WriteJSONFile(path, p, false)
}
