package hostlink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/metrics"
	"github.com/park285/winchance-agent/internal/overlay"
)

// OverlaySink is the overlay.Renderer handed to the window. Draw only
// stores the frame; Run ships the newest one, so a slow bridge drops
// intermediate drag frames instead of stalling the loop.
type OverlaySink struct {
	out     Egress
	timeout time.Duration
	logger  *zap.Logger

	pending chan overlay.Frame
}

func NewOverlaySink(out Egress, logger *zap.Logger) *OverlaySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverlaySink{out: out, timeout: 2 * time.Second, logger: logger, pending: make(chan overlay.Frame, 1)}
}

func (s *OverlaySink) Draw(f overlay.Frame) {
	for {
		select {
		case s.pending <- f:
			return
		default:
		}
		select {
		case <-s.pending:
			metrics.OverlayFramesDropped.Inc()
		default:
		}
	}
}

// Run sends frames until ctx is done.
func (s *OverlaySink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-s.pending:
			s.send(ctx, f)
		}
	}
}

func (s *OverlaySink) send(ctx context.Context, f overlay.Frame) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.out.SendFrame(sctx, f); err != nil {
		metrics.OverlayFramesDropped.Inc()
		s.logger.Warn("overlay_frame_failed", zap.Bool("visible", f.Visible), zap.Error(err))
	}
}
