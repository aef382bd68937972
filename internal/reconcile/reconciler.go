// Package reconcile turns a raw end-of-battle payload plus the stored
// battle context into the record sent to the collection service.
package reconcile

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/battlectx"
	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/eventloop"
	"github.com/park285/winchance-agent/internal/metrics"
	"github.com/park285/winchance-agent/pkg/battledto"
)

const unknown = "Unknown"

// Deliverer launches delivery. onSuccess fires only after the service
// accepted the record; there is no failure signal.
type Deliverer interface {
	SendBattleResult(rec *battledto.BattleResult, onSuccess func())
	SendRawBattleResult(raw battledto.RawBattle)
}

// Names resolves what the context did not record.
type Names interface {
	MapName(arenaTypeID int64) (string, bool)
	Vehicle(cd int64) (domain.Vehicle, bool)
}

type Recorder interface {
	Record(ctx context.Context, rec *battledto.BattleResult) error
}

// Dequeuer is the slice of the pending queue the reconciler touches.
type Dequeuer interface {
	Remove(ctx context.Context, id domain.ArenaID) (bool, error)
}

type Options struct {
	SendRaw    bool
	IncludeRaw bool
	Location   *time.Location
	Now        func() time.Time
}

type Reconciler struct {
	store   battlectx.Store
	out     Deliverer
	sched   eventloop.Scheduler
	names   Names
	archive Recorder
	pending Dequeuer
	opts    Options
	logger  *zap.Logger

	mu        sync.Mutex
	handedOff map[domain.ArenaID]struct{}
}

type Option func(*Reconciler)

func WithNames(n Names) Option { return func(r *Reconciler) { r.names = n } }

func WithArchive(a Recorder) Option { return func(r *Reconciler) { r.archive = a } }

// WithPending dequeues the arena again once delivery is confirmed.
func WithPending(q Dequeuer) Option { return func(r *Reconciler) { r.pending = q } }

func WithOptions(o Options) Option { return func(r *Reconciler) { r.opts = o } }

func WithLogger(l *zap.Logger) Option { return func(r *Reconciler) { r.logger = l } }

func New(store battlectx.Store, out Deliverer, sched eventloop.Scheduler, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     store,
		out:       out,
		sched:     sched,
		logger:    zap.NewNop(),
		handedOff: make(map[domain.ArenaID]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.opts.Location == nil {
		r.opts.Location = time.Local
	}
	if r.opts.Now == nil {
		r.opts.Now = time.Now
	}
	return r
}

// Reconcile builds and hands off the record for raw. It returns false for
// empty payloads and for arenas already handed off in this session.
func (r *Reconciler) Reconcile(ctx context.Context, raw *domain.RawBattleResult, channel string) (*battledto.BattleResult, bool) {
	if raw.Empty() {
		return nil, false
	}
	id := raw.ArenaID
	if !r.claim(id) {
		metrics.ResultsDuplicate.Inc()
		r.logger.Info("result_duplicate_skipped", zap.String("arena_id", string(id)), zap.String("channel", channel))
		return nil, false
	}

	bctx := r.store.Load(ctx, id)
	rec := r.Build(raw, bctx)
	metrics.ResultsReconciled.WithLabelValues(channel).Inc()
	r.logger.Info("result_reconciled",
		zap.String("arena_id", rec.ArenaUniqueID),
		zap.String("channel", channel),
		zap.String("result", rec.Result),
		zap.String("map", rec.MapName),
		zap.String("tank", rec.Tank.Name),
		zap.Int64("damage", rec.DamageDealt),
		zap.Float64("win_chance", rec.WinChance),
		zap.Bool("had_context", len(bctx) > 0),
	)

	if r.archive != nil {
		if err := r.archive.Record(ctx, rec); err != nil {
			r.logger.Warn("result_archive_failed", zap.String("arena_id", rec.ArenaUniqueID), zap.Error(err))
		}
	}

	if r.out == nil {
		return rec, true
	}
	r.out.SendBattleResult(rec, func() {
		// 루프가 이미 닫혔으면 (종료 중) 여기서 바로 정리
		if !r.sched.Post(func() { r.delivered(id) }) {
			r.delivered(id)
		}
	})
	if r.opts.SendRaw {
		r.out.SendRawBattleResult(battledto.RawBattle{
			BattleID:   json.Number(id),
			AccountID:  raw.AccountID(),
			BattleTime: rec.BattleTime,
			RawJSON:    string(raw.RawJSON()),
		})
	}
	return rec, true
}

func (r *Reconciler) claim(id domain.ArenaID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handedOff[id]; ok {
		return false
	}
	r.handedOff[id] = struct{}{}
	return true
}

// delivered runs on the loop after the service accepted the record, or
// inline once the loop has closed.
func (r *Reconciler) delivered(id domain.ArenaID) {
	ctx := context.Background()
	if err := r.store.Delete(ctx, id); err != nil {
		r.logger.Warn("context_delete_failed", zap.String("arena_id", string(id)), zap.Error(err))
	}
	if r.pending != nil {
		if _, err := r.pending.Remove(ctx, id); err != nil {
			r.logger.Warn("pending_remove_failed", zap.String("arena_id", string(id)), zap.Error(err))
		}
	}
	r.logger.Info("result_delivered", zap.String("arena_id", string(id)))
}

// Build assembles the record. Context values win; the raw result and the
// name catalog fill the gaps; rating fields default to zero.
func (r *Reconciler) Build(raw *domain.RawBattleResult, c battlectx.Context) *battledto.BattleResult {
	common := raw.Common
	cd, personal, _ := raw.PlayerBlock()
	team := raw.PlayerTeam()
	winner := common.WinnerTeam.Int()

	rec := &battledto.BattleResult{
		ArenaUniqueID: string(raw.ArenaID),
		BattleTime:    r.battleTime(common),
		Duration:      common.Duration.Int64(),
		MapName:       r.mapName(c, common.ArenaTypeID.Int64()),
		BattleType:    common.BonusType.Int(),
		Team:          team,
		WinnerTeam:    winner,
		Result:        string(domain.OutcomeFor(winner, team)),

		DamageDealt:    personal.DamageDealt.Int64(),
		DamageAssisted: personal.DamageAssisted(),
		DamageBlocked:  personal.DamageBlockedByArmor.Int64(),
		Kills:          personal.Kills.Int64(),
		Spotted:        personal.Spotted.Int64(),
		Experience:     personal.OriginalXP.Int64(),
		Credits:        personal.OriginalCredits.Int64(),
		Shots:          personal.Shots.Int64(),
		Hits:           personal.DirectEnemyHits.Int64(),
		Penetrations:   personal.PiercingEnemyHits.Int64(),

		WinChance: c.Float(battlectx.KeyWinChance),
		AllyWgr:   c.Float(battlectx.KeyAllyWgr),
		EnemyWgr:  c.Float(battlectx.KeyEnemyWgr),

		Tank: r.tank(c, cd),
	}
	if r.opts.IncludeRaw {
		rec.RawResult = json.RawMessage(raw.RawJSON())
	}
	return rec
}

func (r *Reconciler) battleTime(common domain.CommonResult) string {
	if created := common.ArenaCreateTime.Int64(); created > 0 {
		end := time.Unix(created+common.Duration.Int64(), 0)
		return end.In(r.opts.Location).Format(battledto.BattleTimeLayout)
	}
	return r.opts.Now().In(r.opts.Location).Format(battledto.BattleTimeLayout)
}

func (r *Reconciler) mapName(c battlectx.Context, arenaTypeID int64) string {
	if s := strings.TrimSpace(c.String(battlectx.KeyMapName)); s != "" && s != unknown {
		return s
	}
	if r.names != nil {
		if s, ok := r.names.MapName(arenaTypeID); ok {
			return s
		}
	}
	return unknown
}

func (r *Reconciler) tank(c battlectx.Context, cd int64) battledto.Tank {
	t := battledto.Tank{
		TankID: c.Int(battlectx.KeyTankID),
		Name:   stringOr(c, battlectx.KeyTankName, unknown),
		Tier:   int(c.Int(battlectx.KeyTankTier)),
		Type:   stringOr(c, battlectx.KeyTankType, "unknown"),
		Nation: stringOr(c, battlectx.KeyTankNation, "unknown"),
	}
	if t.TankID != 0 || cd == 0 {
		return t
	}
	t.TankID = cd
	if r.names != nil {
		if v, ok := r.names.Vehicle(cd); ok {
			t.Name = v.DisplayName()
			t.Tier = v.Tier
			t.Type = v.ClassTag()
			t.Nation = v.Nation()
		}
	}
	return t
}

func stringOr(c battlectx.Context, key, def string) string {
	if s := strings.TrimSpace(c.String(key)); s != "" {
		return s
	}
	return def
}
