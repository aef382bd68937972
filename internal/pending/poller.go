package pending

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/eventloop"
	"github.com/park285/winchance-agent/internal/metrics"
)

// PollerConfig wires the poll loop to the controller.
type PollerConfig struct {
	Interval time.Duration
	// InSafeZone gates every cycle; polling stops once it reports false.
	InSafeZone func() bool
	// Query asks the host cache for one arena's result.
	Query func(id domain.ArenaID)
}

// Poller re-queries every pending arena on a fixed delay while the player
// sits in the hangar. At most one cycle chain is active; all methods must
// run on the event loop.
type Poller struct {
	ctx    context.Context
	queue  Queue
	sched  eventloop.Scheduler
	cfg    PollerConfig
	logger *zap.Logger

	active bool
	timer  eventloop.Stopper
	cycles int
}

func NewPoller(ctx context.Context, q Queue, sched eventloop.Scheduler, cfg PollerConfig, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.InSafeZone == nil {
		cfg.InSafeZone = func() bool { return true }
	}
	return &Poller{ctx: ctx, queue: q, sched: sched, cfg: cfg, logger: logger}
}

func (p *Poller) Active() bool { return p.active }

// Cycles counts completed poll passes.
func (p *Poller) Cycles() int { return p.cycles }

// Kick starts the loop unless it is already running.
func (p *Poller) Kick() {
	if p.active {
		return
	}
	p.active = true
	p.pollOnce()
}

// Stop cancels the next scheduled cycle.
func (p *Poller) Stop() {
	p.active = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller) pollOnce() {
	p.timer = nil
	if !p.active {
		return
	}
	if !p.cfg.InSafeZone() {
		p.active = false
		return
	}

	ids, err := p.queue.List(p.ctx)
	if err != nil {
		p.logger.Warn("pending_list_failed", zap.Error(err))
		p.reschedule()
		return
	}
	metrics.PendingBattles.Set(float64(len(ids)))
	if len(ids) == 0 {
		p.active = false
		return
	}

	p.logger.Info("pending_poll", zap.Int("count", len(ids)))
	for _, id := range ids {
		if p.cfg.Query != nil {
			p.cfg.Query(id)
		}
	}
	p.cycles++

	if !p.cfg.InSafeZone() {
		p.active = false
		return
	}
	left, err := p.queue.List(p.ctx)
	if err == nil && len(left) == 0 {
		p.active = false
		return
	}
	p.reschedule()
}

func (p *Poller) reschedule() {
	p.timer = p.sched.After(p.cfg.Interval, p.pollOnce)
}
