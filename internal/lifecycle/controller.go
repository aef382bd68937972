package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/battlectx"
	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/eventloop"
	"github.com/park285/winchance-agent/internal/metrics"
	"github.com/park285/winchance-agent/internal/pending"
	"github.com/park285/winchance-agent/internal/ratings"
	"github.com/park285/winchance-agent/internal/winchance"
	"github.com/park285/winchance-agent/pkg/battledto"
)

// Host is the game-client side the controller reads from.
type Host interface {
	// Capture reads the live battle entities. A player entity that is not
	// ready yet yields a snapshot without an arena id, not an error.
	Capture(ctx context.Context) (*domain.Snapshot, error)
	// QueryResults asks the client's results cache for one arena.
	QueryResults(ctx context.Context, id domain.ArenaID) (int, *domain.RawBattleResult, error)
	PlayerInfo(ctx context.Context) (*domain.PlayerInfo, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, raw *domain.RawBattleResult, channel string) (*battledto.BattleResult, bool)
}

// Overlay is the in-battle win-chance label.
type Overlay interface {
	Show()
	ShowEstimate(res winchance.Result)
	ShowNoData()
	Hide()
}

// API is the delivery channel's startup handshake.
type API interface {
	Enabled() bool
	TestConnection(ctx context.Context) bool
	CheckAndRegister(ctx context.Context, player func(context.Context) (*domain.PlayerInfo, error)) bool
}

type Deps struct {
	Host     Host
	Contexts battlectx.Store
	Pending  pending.Queue
	// Ratings completions must already run on the loop (see ratings.Posted).
	Ratings ratings.Lookup
	Results Reconciler
	Overlay Overlay
	API     API
	Sched   eventloop.Scheduler
	Logger  *zap.Logger
	// Spawn runs background work; defaults to eventloop.Go.
	Spawn func(name string, fn func())
}

type Config struct {
	Zones            Zones
	PollInterval     time.Duration
	SettleDelay      time.Duration
	RecaptureDelay   time.Duration
	PlayerRetryDelay time.Duration
	CaptureTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Zones:            DefaultZones(),
		PollInterval:     3 * time.Second,
		SettleDelay:      30 * time.Second,
		RecaptureDelay:   time.Second,
		PlayerRetryDelay: 5 * time.Second,
		CaptureTimeout:   2 * time.Second,
	}
}

// Controller owns the lifecycle state. Every method except the On* entry
// points and Stop must run on the event loop.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Deps
	cfg    Config
	logger *zap.Logger
	poller *pending.Poller

	state      State
	overlaySeq int
	stopped    bool

	mu      sync.Mutex
	timerID int
	timers  map[int]eventloop.Stopper
}

func New(ctx context.Context, deps Deps, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.Zones == (Zones{}) {
		cfg.Zones = def.Zones
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.RecaptureDelay <= 0 {
		cfg.RecaptureDelay = def.RecaptureDelay
	}
	if cfg.PlayerRetryDelay <= 0 {
		cfg.PlayerRetryDelay = def.PlayerRetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = def.CaptureTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Spawn == nil {
		logger := deps.Logger
		deps.Spawn = func(name string, fn func()) { eventloop.Go(logger, name, fn) }
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		ctx:    cctx,
		cancel: cancel,
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger,
		timers: make(map[int]eventloop.Stopper),
	}
	c.poller = pending.NewPoller(cctx, deps.Pending, deps.Sched, pending.PollerConfig{
		Interval:   cfg.PollInterval,
		InSafeZone: func() bool { return c.state.Phase == PhaseHangar },
		Query:      func(id domain.ArenaID) { c.Dispatch(PollDue{ID: id}) },
	}, deps.Logger.Named("poller"))
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State { return c.state }

func (c *Controller) Poller() *pending.Poller { return c.poller }

// OnZoneEntered is safe from any goroutine.
func (c *Controller) OnZoneEntered(zoneID int) {
	c.deps.Sched.Post(func() { c.Dispatch(ZoneEntered{Space: c.cfg.Zones.Space(zoneID)}) })
}

func (c *Controller) OnZoneLeft(zoneID int) {
	c.deps.Sched.Post(func() { c.Dispatch(ZoneLeft{Space: c.cfg.Zones.Space(zoneID)}) })
}

// OnBattleResults handles the push channel; safe from any goroutine.
func (c *Controller) OnBattleResults(isPlayerVehicle bool, raw *domain.RawBattleResult) {
	c.deps.Sched.Post(func() { c.Dispatch(ResultsPushed{IsPlayerVehicle: isPlayerVehicle, Result: raw}) })
}

// Dispatch runs one event through Decide and executes the actions.
func (c *Controller) Dispatch(ev Event) {
	if c.stopped {
		return
	}
	prev := c.state.Phase
	next, acts := Decide(c.state, ev)
	c.state = next
	if next.Phase != prev {
		metrics.ZoneTransitions.WithLabelValues(next.Phase.String()).Inc()
		c.logger.Info("phase_changed", zap.Stringer("from", prev), zap.Stringer("to", next.Phase))
	}
	for _, a := range acts {
		c.run(a)
	}
}

func (c *Controller) run(a Action) {
	switch a := a.(type) {
	case CaptureBattle:
		c.capture(a)
	case PersistSnapshot:
		c.persistSnapshot(a.Snapshot)
	case AddPending:
		if _, err := c.deps.Pending.Add(c.ctx, a.ID); err != nil {
			c.logger.Error("pending_add_failed", zap.String("arena_id", a.ID.String()), zap.Error(err))
			return
		}
		c.logger.Info("pending_added", zap.String("arena_id", a.ID.String()))
	case ShowOverlay:
		if c.overlaySeq == 0 && c.deps.Overlay != nil {
			c.deps.Overlay.Show()
		}
		c.overlaySeq = a.Seq
	case HideOverlay:
		if c.overlaySeq != 0 && c.deps.Overlay != nil {
			c.deps.Overlay.Hide()
		}
		c.overlaySeq = 0
	case ScheduleRetry:
		c.after(c.cfg.PlayerRetryDelay, PlayerRetry{Seq: a.Seq})
	case ScheduleSettle:
		d := c.cfg.SettleDelay
		if a.Attempt > 0 {
			d = c.cfg.RecaptureDelay
		}
		c.after(d, SettleElapsed{Seq: a.Seq, Attempt: a.Attempt})
	case FetchRatings:
		c.fetchRatings(a.Battle)
	case SaveEstimate:
		c.saveEstimate(a)
		metrics.LastWinChance.Set(a.Result.Chance)
		c.logger.Info("win_chance_estimated",
			zap.String("arena_id", a.ID.String()),
			zap.Float64("chance", a.Result.Chance),
			zap.Float64("ally_wgr", a.Result.AllyAvg),
			zap.Float64("enemy_wgr", a.Result.EnemyAvg),
			zap.Int("rated", a.Result.Rated),
		)
	case OverlayEstimate:
		if c.overlaySeq == a.Seq && c.deps.Overlay != nil {
			c.deps.Overlay.ShowEstimate(a.Result)
		}
	case OverlayNoData:
		c.logger.Warn("ratings_unavailable", zap.Int("battle", a.Seq))
		if c.overlaySeq == a.Seq && c.deps.Overlay != nil {
			c.deps.Overlay.ShowNoData()
		}
	case KickPoller:
		c.poller.Kick()
	case InitAPI:
		c.initAPI()
	case QueryCache:
		c.queryCache(a.ID)
	case Purge:
		c.purge(a.ID)
	case ReconcileCached:
		c.reconcileCached(a)
	case ReconcilePushed:
		c.reconcilePushed(a.Result)
	case Skip:
		c.logger.Info("step_skipped", zap.String("arena_id", a.ID.String()), zap.String("reason", a.Reason))
	}
}

// capture reads the host synchronously; the entities are gone once the
// player leaves the battle.
func (c *Controller) capture(a CaptureBattle) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.CaptureTimeout)
	snap, err := c.deps.Host.Capture(ctx)
	cancel()
	if err != nil {
		c.logger.Warn("capture_failed", zap.Int("battle", a.Seq), zap.Error(err))
		snap = nil
	}
	if snap != nil && snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	c.Dispatch(Captured{Seq: a.Seq, Purpose: a.Purpose, Attempt: a.Attempt, Snapshot: snap})
}

func (c *Controller) persistSnapshot(snap *domain.Snapshot) {
	fields := battlectx.VehicleFields(snap.Vehicle, snap.MapName)
	fields[battlectx.KeyCapturedAt] = snap.TakenAt.UTC().Format(time.RFC3339)
	if err := c.deps.Contexts.Save(c.ctx, snap.ArenaID, fields); err != nil {
		c.logger.Error("context_save_failed", zap.String("arena_id", snap.ArenaID.String()), zap.Error(err))
		return
	}
	c.logger.Info("battle_captured",
		zap.String("arena_id", snap.ArenaID.String()),
		zap.Int("team", snap.Team),
		zap.String("map", snap.MapName),
		zap.Int("participants", len(snap.Participants)),
	)
}

func (c *Controller) fetchRatings(b Battle) {
	ids := winchance.AccountIDs(b.Participants, b.Team)
	c.logger.Info("ratings_requested", zap.String("arena_id", b.ArenaID.String()), zap.Int("accounts", len(ids)))
	if c.deps.Ratings == nil {
		c.Dispatch(RatingsFetched{Seq: b.Seq, Battle: b})
		return
	}
	c.deps.Ratings.FetchAsync(c.ctx, ids, func(m map[int64]float64) {
		c.Dispatch(RatingsFetched{Seq: b.Seq, Battle: b, Ratings: m})
	})
}

func (c *Controller) initAPI() {
	api := c.deps.API
	if api == nil || !api.Enabled() {
		c.logger.Info("api_delivery_disabled")
		return
	}
	c.logger.Info("api_init_started")
	c.deps.Spawn("api-init", func() {
		ok := api.TestConnection(c.ctx)
		if ok {
			api.CheckAndRegister(c.ctx, c.deps.Host.PlayerInfo)
		} else {
			c.logger.Warn("api_unavailable_retry_next_hangar")
		}
		c.deps.Sched.Post(func() { c.Dispatch(APIReady{OK: ok}) })
	})
}

func (c *Controller) queryCache(id domain.ArenaID) {
	c.deps.Spawn("cache-query", func() {
		code, res, err := c.deps.Host.QueryResults(c.ctx, id)
		switch {
		case err != nil:
			metrics.CacheQueries.WithLabelValues("error").Inc()
			c.logger.Debug("cache_query_failed", zap.String("arena_id", id.String()), zap.Error(err))
		case res.Empty():
			metrics.CacheQueries.WithLabelValues("miss").Inc()
		}
		c.deps.Sched.Post(func() { c.Dispatch(CacheReplied{ID: id, Code: code, Result: res, Err: err}) })
	})
}

func (c *Controller) purge(id domain.ArenaID) {
	metrics.PendingPurged.Inc()
	c.logger.Error("pending_invalid_arena_purged", zap.String("arena_id", id.String()))
	if _, err := c.deps.Pending.Remove(c.ctx, id); err != nil {
		c.logger.Error("pending_remove_failed", zap.String("arena_id", id.String()), zap.Error(err))
	}
	if err := c.deps.Contexts.Delete(c.ctx, id); err != nil {
		c.logger.Warn("context_delete_failed", zap.String("arena_id", id.String()), zap.Error(err))
	}
}

// saveEstimate merges the estimate only while the battle still awaits its
// result; once delivered, the context is gone and must stay gone.
func (c *Controller) saveEstimate(a SaveEstimate) {
	ok, err := c.deps.Pending.Contains(c.ctx, a.ID)
	if err != nil {
		c.logger.Error("pending_lookup_failed", zap.String("arena_id", a.ID.String()), zap.Error(err))
		return
	}
	if !ok {
		c.logger.Info("estimate_skipped_not_pending", zap.String("arena_id", a.ID.String()))
		return
	}
	fields := battlectx.EstimateFields(a.Result.Chance, a.Result.AllyAvg, a.Result.EnemyAvg)
	if err := c.deps.Contexts.Save(c.ctx, a.ID, fields); err != nil {
		c.logger.Error("context_save_failed", zap.String("arena_id", a.ID.String()), zap.Error(err))
	}
}

func (c *Controller) reconcileCached(a ReconcileCached) {
	switch a.Code {
	case 0, 1:
		metrics.CacheQueries.WithLabelValues("hit").Inc()
	default:
		metrics.CacheQueries.WithLabelValues("hit_odd_code").Inc()
		c.logger.Warn("cache_result_unexpected_code", zap.String("arena_id", a.ID.String()), zap.Int("code", a.Code))
	}
	removed, err := c.deps.Pending.Remove(c.ctx, a.ID)
	if err != nil {
		c.logger.Error("pending_remove_failed", zap.String("arena_id", a.ID.String()), zap.Error(err))
		return
	}
	if !removed {
		c.logger.Info("cache_result_no_longer_pending", zap.String("arena_id", a.ID.String()))
		return
	}
	if a.Result != nil && a.Result.ArenaID == "" {
		a.Result.ArenaID = a.ID
	}
	c.deps.Results.Reconcile(c.ctx, a.Result, "cache")
}

func (c *Controller) reconcilePushed(raw *domain.RawBattleResult) {
	c.deps.Results.Reconcile(c.ctx, raw, "push")
	if _, err := c.deps.Pending.Remove(c.ctx, raw.ArenaID); err != nil {
		c.logger.Error("pending_remove_failed", zap.String("arena_id", raw.ArenaID.String()), zap.Error(err))
	}
}

func (c *Controller) after(d time.Duration, ev Event) {
	c.mu.Lock()
	c.timerID++
	id := c.timerID
	c.mu.Unlock()

	st := c.deps.Sched.After(d, func() {
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()
		c.Dispatch(ev)
	})
	c.mu.Lock()
	c.timers[id] = st
	c.mu.Unlock()
}

// Stop tears the controller down: timers, poller, overlay. Must run on the
// loop.
func (c *Controller) Stop() {
	if c.stopped {
		return
	}
	c.stopped = true
	c.cancel()
	c.poller.Stop()

	c.mu.Lock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()

	if c.overlaySeq != 0 && c.deps.Overlay != nil {
		c.deps.Overlay.Hide()
	}
	c.overlaySeq = 0
	c.logger.Info("controller_stopped")
}
