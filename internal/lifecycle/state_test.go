package lifecycle

import (
	"testing"

	"github.com/park285/winchance-agent/internal/domain"
)

func TestDecideHangarStartsPollerAndAPIOnce(t *testing.T) {
	s, acts := Decide(State{}, ZoneEntered{Space: SpaceHangar})
	if s.Phase != PhaseHangar || !s.APIStarted {
		t.Fatalf("state=%+v", s)
	}
	if len(acts) != 2 {
		t.Fatalf("acts=%#v", acts)
	}
	if _, ok := acts[0].(KickPoller); !ok {
		t.Fatalf("first action=%T", acts[0])
	}
	if _, ok := acts[1].(InitAPI); !ok {
		t.Fatalf("second action=%T", acts[1])
	}

	s, acts = Decide(s, ZoneEntered{Space: SpaceHangar})
	if len(acts) != 1 {
		t.Fatalf("api init must run once per session: %#v", acts)
	}

	s, _ = Decide(s, APIReady{OK: false})
	if s.APIStarted {
		t.Fatalf("failed init must allow a retry")
	}
	_, acts = Decide(s, ZoneEntered{Space: SpaceHangar})
	if len(acts) != 2 {
		t.Fatalf("expected api retry: %#v", acts)
	}
}

func TestDecideBattleEntryCapturesFirst(t *testing.T) {
	s, acts := Decide(State{Phase: PhaseLoading}, ZoneEntered{Space: SpaceBattle})
	if s.Phase != PhaseInBattle || s.Seq != 1 || s.Battle == nil || s.Battle.Seq != 1 {
		t.Fatalf("state=%+v", s)
	}
	if len(acts) != 1 {
		t.Fatalf("acts=%#v", acts)
	}
	if c, ok := acts[0].(CaptureBattle); !ok || c.Purpose != CaptureEntry || c.Seq != 1 {
		t.Fatalf("action=%#v", acts[0])
	}
}

func TestDecideCapturedReady(t *testing.T) {
	s, _ := Decide(State{}, ZoneEntered{Space: SpaceBattle})
	snap := &domain.Snapshot{ArenaID: "77", Team: 2, Participants: []domain.Participant{{AccountID: 1, Team: 2}}}
	s, acts := Decide(s, Captured{Seq: 1, Purpose: CaptureEntry, Snapshot: snap})

	if s.Battle.ArenaID != "77" || s.Battle.Team != 2 || len(s.Battle.Participants) != 1 {
		t.Fatalf("battle=%+v", s.Battle)
	}
	want := []string{"PersistSnapshot", "AddPending", "ShowOverlay", "ScheduleSettle"}
	if len(acts) != len(want) {
		t.Fatalf("acts=%#v", acts)
	}
	for i, a := range acts {
		if got := actionName(a); got != want[i] {
			t.Fatalf("action %d=%s want %s", i, got, want[i])
		}
	}
}

func TestDecideCapturedNotReadySchedulesRetry(t *testing.T) {
	s, _ := Decide(State{}, ZoneEntered{Space: SpaceBattle})
	s, acts := Decide(s, Captured{Seq: 1, Purpose: CaptureEntry, Snapshot: &domain.Snapshot{}})
	want := []string{"ShowOverlay", "ScheduleRetry", "ScheduleSettle"}
	if len(acts) != len(want) {
		t.Fatalf("acts=%#v", acts)
	}
	for i, a := range acts {
		if got := actionName(a); got != want[i] {
			t.Fatalf("action %d=%s want %s", i, got, want[i])
		}
	}

	_, acts = Decide(s, PlayerRetry{Seq: 1})
	if len(acts) != 1 || actionName(acts[0]) != "CaptureBattle" {
		t.Fatalf("retry acts=%#v", acts)
	}
	_, acts = Decide(s, PlayerRetry{Seq: 0})
	if len(acts) != 0 {
		t.Fatalf("stale retry must be ignored: %#v", acts)
	}
}

func TestDecideSettleRecapturesUntilLimit(t *testing.T) {
	s, _ := Decide(State{}, ZoneEntered{Space: SpaceBattle})
	s, _ = Decide(s, Captured{Seq: 1, Purpose: CaptureEntry, Snapshot: &domain.Snapshot{ArenaID: "5"}})

	_, acts := Decide(s, SettleElapsed{Seq: 1})
	if c, ok := acts[0].(CaptureBattle); !ok || c.Purpose != CaptureSettle {
		t.Fatalf("acts=%#v", acts)
	}

	_, acts = Decide(s, Captured{Seq: 1, Purpose: CaptureSettle, Attempt: 3, Snapshot: &domain.Snapshot{ArenaID: "5"}})
	if ss, ok := acts[0].(ScheduleSettle); !ok || ss.Attempt != 4 {
		t.Fatalf("acts=%#v", acts)
	}

	_, acts = Decide(s, Captured{Seq: 1, Purpose: CaptureSettle, Attempt: MaxRecaptures, Snapshot: &domain.Snapshot{ArenaID: "5"}})
	if actionName(acts[0]) != "Skip" {
		t.Fatalf("acts=%#v", acts)
	}

	roster := []domain.Participant{{AccountID: 9, Team: 1}}
	_, acts = Decide(s, Captured{Seq: 1, Purpose: CaptureSettle, Attempt: 2, Snapshot: &domain.Snapshot{ArenaID: "5", Participants: roster}})
	f, ok := acts[0].(FetchRatings)
	if !ok || f.Battle.ArenaID != "5" || len(f.Battle.Participants) != 1 {
		t.Fatalf("acts=%#v", acts)
	}
}

func TestDecideSettleAfterLeavingUsesCapturedRoster(t *testing.T) {
	s, _ := Decide(State{}, ZoneEntered{Space: SpaceBattle})
	roster := []domain.Participant{{AccountID: 9, Team: 1}, {AccountID: 10, Team: 2}}
	s, _ = Decide(s, Captured{Seq: 1, Purpose: CaptureEntry, Snapshot: &domain.Snapshot{ArenaID: "5", Team: 1, Participants: roster}})
	s, acts := Decide(s, ZoneLeft{Space: SpaceBattle})
	if s.Phase != PhaseUnknown || actionName(acts[0]) != "HideOverlay" {
		t.Fatalf("leave: state=%+v acts=%#v", s, acts)
	}
	_, acts = Decide(s, SettleElapsed{Seq: 1})
	if f, ok := acts[0].(FetchRatings); !ok || f.Battle.ArenaID != "5" {
		t.Fatalf("acts=%#v", acts)
	}
	// a later battle supersedes the old settle timer
	s2, _ := Decide(s, ZoneEntered{Space: SpaceBattle})
	_, acts = Decide(s2, SettleElapsed{Seq: 1})
	if actionName(acts[0]) != "Skip" {
		t.Fatalf("superseded settle acts=%#v", acts)
	}
}

func TestDecideRatings(t *testing.T) {
	b := Battle{Seq: 1, ArenaID: "5", Team: 1, Participants: []domain.Participant{{AccountID: 1, Team: 1}, {AccountID: 2, Team: 2}}}
	_, acts := Decide(State{}, RatingsFetched{Seq: 1, Battle: b})
	if len(acts) != 1 || actionName(acts[0]) != "OverlayNoData" {
		t.Fatalf("empty ratings acts=%#v", acts)
	}
	_, acts = Decide(State{}, RatingsFetched{Seq: 1, Battle: b, Ratings: map[int64]float64{1: 3000, 2: 1000}})
	save, ok := acts[0].(SaveEstimate)
	if !ok || save.ID != "5" || save.Result.Chance != 75 {
		t.Fatalf("acts=%#v", acts)
	}
}

func TestDecideCacheAndPush(t *testing.T) {
	for _, id := range []domain.ArenaID{"-1", "10000000000000000000000000", "1e25", "0"} {
		_, acts := Decide(State{}, PollDue{ID: id})
		if len(acts) != 1 || actionName(acts[0]) != "Purge" {
			t.Fatalf("%s: acts=%#v", id, acts)
		}
	}
	_, acts := Decide(State{}, PollDue{ID: "12"})
	if actionName(acts[0]) != "QueryCache" {
		t.Fatalf("acts=%#v", acts)
	}

	raw := &domain.RawBattleResult{ArenaID: "12"}
	if _, acts := Decide(State{}, CacheReplied{ID: "12"}); len(acts) != 0 {
		t.Fatalf("empty reply must keep pending: %#v", acts)
	}
	if _, acts := Decide(State{}, CacheReplied{ID: "12", Code: 1, Result: raw}); actionName(acts[0]) != "ReconcileCached" {
		t.Fatalf("acts=%#v", acts)
	}
	if _, acts := Decide(State{}, ResultsPushed{IsPlayerVehicle: false, Result: raw}); len(acts) != 0 {
		t.Fatalf("non-player result must be ignored")
	}
	if _, acts := Decide(State{Phase: PhaseInBattle}, ResultsPushed{IsPlayerVehicle: true, Result: raw}); actionName(acts[0]) != "ReconcilePushed" {
		t.Fatalf("push must be processed in any state: %#v", acts)
	}
}

func TestZonesSpace(t *testing.T) {
	z := DefaultZones()
	if z.Space(3) != SpaceHangar || z.Space(4) != SpaceLoading || z.Space(5) != SpaceBattle || z.Space(15) != SpaceOther {
		t.Fatalf("zone mapping broken")
	}
}

func actionName(a Action) string {
	switch a.(type) {
	case CaptureBattle:
		return "CaptureBattle"
	case PersistSnapshot:
		return "PersistSnapshot"
	case AddPending:
		return "AddPending"
	case ShowOverlay:
		return "ShowOverlay"
	case HideOverlay:
		return "HideOverlay"
	case ScheduleRetry:
		return "ScheduleRetry"
	case ScheduleSettle:
		return "ScheduleSettle"
	case FetchRatings:
		return "FetchRatings"
	case SaveEstimate:
		return "SaveEstimate"
	case OverlayEstimate:
		return "OverlayEstimate"
	case OverlayNoData:
		return "OverlayNoData"
	case KickPoller:
		return "KickPoller"
	case InitAPI:
		return "InitAPI"
	case QueryCache:
		return "QueryCache"
	case Purge:
		return "Purge"
	case ReconcileCached:
		return "ReconcileCached"
	case ReconcilePushed:
		return "ReconcilePushed"
	case Skip:
		return "Skip"
	default:
		return "?"
	}
}
