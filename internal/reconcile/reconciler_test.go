package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/winchance-agent/internal/battlectx"
	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/eventloop"
	"github.com/park285/winchance-agent/pkg/battledto"
)

const sampleResult = `{
  "arenaUniqueID": 106839217628331580,
  "common": {"winnerTeam": 1, "duration": 400, "arenaCreateTime": 1700000000, "arenaTypeID": 65537, "bonusType": 1},
  "personal": {
    "avatar": {"team": 1, "accountDBID": 500123},
    "10785": {"damageDealt": 2450, "damageAssistedRadio": 300, "damageAssistedTrack": 120, "damageAssistedStun": 5,
              "damageBlockedByArmor": 900, "kills": 2, "spotted": 3, "originalXP": 812, "originalCredits": 31000,
              "shots": 9, "directEnemyHits": 7, "piercingEnemyHits": 6}
  }
}`

type sent struct {
	rec       *battledto.BattleResult
	onSuccess func()
}

type fakeDeliverer struct {
	results []sent
	raws    []battledto.RawBattle
}

func (f *fakeDeliverer) SendBattleResult(rec *battledto.BattleResult, onSuccess func()) {
	f.results = append(f.results, sent{rec: rec, onSuccess: onSuccess})
}

func (f *fakeDeliverer) SendRawBattleResult(raw battledto.RawBattle) { f.raws = append(f.raws, raw) }

type fakeNames struct{}

func (fakeNames) MapName(id int64) (string, bool) {
	if id&0xFFFF == 1 {
		return "Karelia", true
	}
	return "", false
}

func (fakeNames) Vehicle(cd int64) (domain.Vehicle, bool) {
	if cd == 10785 {
		return domain.Vehicle{ID: cd, Name: "germany:G04_PzVI_Tiger_I", Label: "Tiger I", Tier: 7, Tags: []string{"heavyTank"}}, true
	}
	return domain.Vehicle{}, false
}

type fakeArchive struct {
	got []string
	err error
}

func (a *fakeArchive) Record(_ context.Context, rec *battledto.BattleResult) error {
	a.got = append(a.got, rec.ArenaUniqueID)
	return a.err
}

type fakePending struct{ removed []domain.ArenaID }

func (p *fakePending) Remove(_ context.Context, id domain.ArenaID) (bool, error) {
	p.removed = append(p.removed, id)
	return true, nil
}

type fixture struct {
	store   *battlectx.FileStore
	out     *fakeDeliverer
	sched   *eventloop.Manual
	pending *fakePending
	archive *fakeArchive
	r       *Reconciler
}

func newFixture(t *testing.T, o Options) *fixture {
	t.Helper()
	f := &fixture{
		store:   battlectx.NewFileStore(t.TempDir(), nil),
		out:     &fakeDeliverer{},
		sched:   eventloop.NewManual(),
		pending: &fakePending{},
		archive: &fakeArchive{},
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	f.r = New(f.store, f.out, f.sched,
		WithNames(fakeNames{}),
		WithArchive(f.archive),
		WithPending(f.pending),
		WithOptions(o),
	)
	return f
}

func decode(t *testing.T, s string) *domain.RawBattleResult {
	t.Helper()
	r, err := domain.DecodeRawBattleResult([]byte(s))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return r
}

func TestReconcileWithStoredContext(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	id := domain.ArenaID("106839217628331580")

	v := &domain.Vehicle{ID: 10785, Name: "germany:G04_PzVI_Tiger_I", Label: "Tiger I", Tier: 7, Tags: []string{"heavyTank"}}
	if err := f.store.Save(ctx, id, battlectx.VehicleFields(v, "Himmelsdorf")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.store.Save(ctx, id, battlectx.EstimateFields(61.5, 5684, 5160)); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, ok := f.r.Reconcile(ctx, decode(t, sampleResult), "cache")
	if !ok {
		t.Fatalf("expected reconciliation")
	}
	if rec.ArenaUniqueID != string(id) || rec.Result != "win" || rec.Team != 1 || rec.WinnerTeam != 1 {
		t.Fatalf("identity/outcome: %+v", rec)
	}
	if rec.MapName != "Himmelsdorf" {
		t.Fatalf("context map name must win: %q", rec.MapName)
	}
	if rec.Tank != (battledto.Tank{TankID: 10785, Name: "Tiger I", Tier: 7, Type: "heavyTank", Nation: "germany"}) {
		t.Fatalf("tank=%+v", rec.Tank)
	}
	if rec.WinChance != 61.5 || rec.AllyWgr != 5684 || rec.EnemyWgr != 5160 {
		t.Fatalf("estimate fields: %+v", rec)
	}
	if rec.BattleTime != time.Unix(1700000400, 0).UTC().Format(battledto.BattleTimeLayout) {
		t.Fatalf("battle time=%q", rec.BattleTime)
	}
	if rec.DamageAssisted != 425 || rec.Penetrations != 6 || rec.Credits != 31000 || rec.BattleType != 1 {
		t.Fatalf("stats: %+v", rec)
	}
	if rec.RawResult != nil {
		t.Fatalf("raw result must be omitted by default")
	}
	if len(f.out.results) != 1 || len(f.out.raws) != 0 || len(f.archive.got) != 1 {
		t.Fatalf("handoff: results=%d raws=%d archived=%d", len(f.out.results), len(f.out.raws), len(f.archive.got))
	}

	// context survives until delivery is confirmed
	if !f.store.Load(ctx, id).Has(battlectx.KeyWinChance) {
		t.Fatalf("context deleted before confirmation")
	}
	f.out.results[0].onSuccess()
	f.sched.Drain()
	if len(f.store.Load(ctx, id)) != 0 {
		t.Fatalf("context must be deleted after delivery")
	}
	if len(f.pending.removed) != 1 || f.pending.removed[0] != id {
		t.Fatalf("pending removals=%v", f.pending.removed)
	}
}

func TestReconcileWithoutContextFallsBack(t *testing.T) {
	f := newFixture(t, Options{SendRaw: true, IncludeRaw: true})
	rec, ok := f.r.Reconcile(context.Background(), decode(t, sampleResult), "push")
	if !ok {
		t.Fatalf("expected reconciliation")
	}
	if rec.MapName != "Karelia" {
		t.Fatalf("catalog map name=%q", rec.MapName)
	}
	if rec.Tank.TankID != 10785 || rec.Tank.Name != "Tiger I" || rec.Tank.Tier != 7 {
		t.Fatalf("catalog tank=%+v", rec.Tank)
	}
	if rec.WinChance != 0 || rec.AllyWgr != 0 || rec.EnemyWgr != 0 {
		t.Fatalf("missing estimate must default to zero: %+v", rec)
	}
	if string(rec.RawResult) != sampleResult {
		t.Fatalf("raw result not embedded")
	}
	if len(f.out.raws) != 1 {
		t.Fatalf("raw sends=%d", len(f.out.raws))
	}
	raw := f.out.raws[0]
	if raw.BattleID.String() != "106839217628331580" || raw.AccountID != 500123 || raw.RawJSON != sampleResult || raw.BattleTime != rec.BattleTime {
		t.Fatalf("raw payload=%+v", raw)
	}
}

func TestReconcileUnknownMapAndOutcomes(t *testing.T) {
	cases := []struct {
		body   string
		result string
	}{
		{`{"arenaUniqueID": 1, "common": {"winnerTeam": 0, "arenaTypeID": 99}}`, "draw"},
		{`{"arenaUniqueID": 2, "common": {"winnerTeam": 2}, "personal": {"avatar": {"team": 2}}}`, "win"},
		{`{"arenaUniqueID": 3, "common": {"winnerTeam": 2}, "personal": {"5": {"avatar": {"team": 1}}}}`, "lose"},
	}
	for _, tc := range cases {
		f := newFixture(t, Options{Now: func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }})
		rec, ok := f.r.Reconcile(context.Background(), decode(t, tc.body), "cache")
		if !ok {
			t.Fatalf("%s: not reconciled", tc.body)
		}
		if rec.Result != tc.result {
			t.Fatalf("%s: result=%s want %s", tc.body, rec.Result, tc.result)
		}
		if rec.MapName != "Unknown" {
			t.Fatalf("%s: map=%q", tc.body, rec.MapName)
		}
		if rec.BattleTime != "2026-03-04T05:06:07" {
			t.Fatalf("%s: battle time=%q", tc.body, rec.BattleTime)
		}
	}
}

func TestReconcileSkipsDuplicatesAndEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	if _, ok := f.r.Reconcile(ctx, decode(t, sampleResult), "push"); !ok {
		t.Fatalf("first arrival must reconcile")
	}
	if _, ok := f.r.Reconcile(ctx, decode(t, sampleResult), "cache"); ok {
		t.Fatalf("second arrival must be skipped")
	}
	if _, ok := f.r.Reconcile(ctx, decode(t, `{}`), "push"); ok {
		t.Fatalf("empty payload must be skipped")
	}
	if _, ok := f.r.Reconcile(ctx, nil, "push"); ok {
		t.Fatalf("nil payload must be skipped")
	}
	if len(f.out.results) != 1 {
		t.Fatalf("deliveries=%d", len(f.out.results))
	}
}

func TestArchiveFailureDoesNotBlockDelivery(t *testing.T) {
	f := newFixture(t, Options{})
	f.archive.err = errors.New("db down")
	if _, ok := f.r.Reconcile(context.Background(), decode(t, sampleResult), "cache"); !ok {
		t.Fatalf("expected reconciliation")
	}
	if len(f.out.results) != 1 {
		t.Fatalf("delivery skipped after archive failure")
	}
}

type closedScheduler struct{}

func (closedScheduler) Post(func()) bool { return false }

func (closedScheduler) After(time.Duration, func()) eventloop.Stopper { return nil }

func TestDeliveryAfterLoopClosedStillCleansUp(t *testing.T) {
	store := battlectx.NewFileStore(t.TempDir(), nil)
	out := &fakeDeliverer{}
	pend := &fakePending{}
	r := New(store, out, closedScheduler{}, WithPending(pend), WithOptions(Options{Location: time.UTC}))
	ctx := context.Background()
	id := domain.ArenaID("106839217628331580")
	if err := store.Save(ctx, id, battlectx.Context{battlectx.KeyMapName: "Himmelsdorf"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, ok := r.Reconcile(ctx, decode(t, sampleResult), "push"); !ok {
		t.Fatalf("expected reconciliation")
	}
	out.results[0].onSuccess()

	if c := store.Load(ctx, id); len(c) != 0 {
		t.Fatalf("context left after shutdown delivery: %v", c)
	}
	if len(pend.removed) != 1 || pend.removed[0] != id {
		t.Fatalf("dequeued=%v", pend.removed)
	}
}
