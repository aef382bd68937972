package hostlink

import (
	"sync"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/overlay"
)

// Target receives host notifications. The controller posts each one onto
// its loop, so calls may come from the WS goroutine.
type Target interface {
	OnZoneEntered(zoneID int)
	OnZoneLeft(zoneID int)
	OnBattleResults(isPlayerVehicle bool, raw *domain.RawBattleResult)
}

// Router fans stream events out to the controller and the input cache.
type Router struct {
	target Target
	input  *InputCache
	logger *zap.Logger
}

func NewRouter(target Target, input *InputCache, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{target: target, input: input, logger: logger}
}

// Attach subscribes the router to ws and returns the callback id.
func (r *Router) Attach(ws WSClient) int {
	return ws.OnEvent(r.Handle)
}

func (r *Router) Handle(ev *Event) {
	if ev == nil {
		return
	}
	switch ev.Type {
	case EventZoneEntered:
		r.target.OnZoneEntered(ev.Zone)
	case EventZoneLeft:
		r.target.OnZoneLeft(ev.Zone)
	case EventBattleResults:
		if len(ev.Result) == 0 {
			r.target.OnBattleResults(ev.IsPlayerVehicle, nil)
			return
		}
		raw, err := domain.DecodeRawBattleResult(ev.Result)
		if err != nil {
			r.logger.Error("battle_results_decode_failed", zap.Int("bytes", len(ev.Result)), zap.Error(err))
			return
		}
		r.target.OnBattleResults(ev.IsPlayerVehicle, raw)
	case EventInput:
		if ev.Input != nil && r.input != nil {
			r.input.Set(*ev.Input)
		}
	default:
		r.logger.Debug("host_event_ignored", zap.String("type", ev.Type))
	}
}

// InputCache holds the latest input frame for the overlay drag loop.
type InputCache struct {
	mu   sync.RWMutex
	st   overlay.InputState
	seen bool
}

func NewInputCache() *InputCache { return &InputCache{} }

func (c *InputCache) Set(st overlay.InputState) {
	c.mu.Lock()
	c.st = st
	c.seen = true
	c.mu.Unlock()
}

// Input returns the latest state; ok is false until a frame arrives.
func (c *InputCache) Input() (overlay.InputState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st, c.seen
}
