// Package lifecycle tracks where the player is (hangar, loading, battle) and
// drives capture, rating lookup, polling and reconciliation from it.
//
// Decide is the pure transition function; Controller performs the actions it
// returns on the event loop.
package lifecycle

import (
	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/winchance"
)

type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseHangar
	PhaseLoading
	PhaseInBattle
)

func (p Phase) String() string {
	switch p {
	case PhaseHangar:
		return "hangar"
	case PhaseLoading:
		return "loading"
	case PhaseInBattle:
		return "in_battle"
	default:
		return "unknown"
	}
}

// Space is a zone id already mapped through Zones.
type Space int

const (
	SpaceOther Space = iota
	SpaceHangar
	SpaceLoading
	SpaceBattle
)

// Zones maps host zone ids to spaces.
type Zones struct {
	Hangar  int
	Loading int
	Battle  int
}

func DefaultZones() Zones {
	return Zones{Hangar: domain.ZoneHangar, Loading: domain.ZoneLoading, Battle: domain.ZoneBattle}
}

func (z Zones) Space(zoneID int) Space {
	switch zoneID {
	case z.Hangar:
		return SpaceHangar
	case z.Battle:
		return SpaceBattle
	case z.Loading:
		return SpaceLoading
	default:
		return SpaceOther
	}
}

// MaxRecaptures bounds the 1s re-capture retries at settle time.
const MaxRecaptures = 10

// Battle is what the controller knows about the current battle. Seq
// identifies the battle-zone entry it came from.
type Battle struct {
	Seq          int
	ArenaID      domain.ArenaID
	Team         int
	Participants []domain.Participant
}

// State is the controller's whole decision input besides the event.
type State struct {
	Phase      Phase
	APIStarted bool
	Seq        int
	Battle     *Battle
}

// CapturePurpose says why a snapshot was taken.
type CapturePurpose int

const (
	CaptureEntry CapturePurpose = iota
	CapturePlayerRetry
	CaptureSettle
)

type Event interface{ event() }

type (
	ZoneEntered struct{ Space Space }
	ZoneLeft    struct{ Space Space }

	// Captured carries a snapshot taken by the CaptureBattle action.
	Captured struct {
		Seq      int
		Purpose  CapturePurpose
		Attempt  int
		Snapshot *domain.Snapshot
	}
	PlayerRetry   struct{ Seq int }
	SettleElapsed struct {
		Seq     int
		Attempt int
	}
	RatingsFetched struct {
		Seq     int
		Battle  Battle
		Ratings map[int64]float64
	}

	// PollDue is raised by the poller for each pending id.
	PollDue      struct{ ID domain.ArenaID }
	CacheReplied struct {
		ID     domain.ArenaID
		Code   int
		Result *domain.RawBattleResult
		Err    error
	}
	ResultsPushed struct {
		IsPlayerVehicle bool
		Result          *domain.RawBattleResult
	}
	APIReady struct{ OK bool }
)

func (ZoneEntered) event()    {}
func (ZoneLeft) event()       {}
func (Captured) event()       {}
func (PlayerRetry) event()    {}
func (SettleElapsed) event()  {}
func (RatingsFetched) event() {}
func (PollDue) event()        {}
func (CacheReplied) event()   {}
func (ResultsPushed) event()  {}
func (APIReady) event()       {}

type Action interface{ action() }

type (
	CaptureBattle struct {
		Seq     int
		Purpose CapturePurpose
		Attempt int
	}
	// PersistSnapshot writes the vehicle/map fields for the arena.
	PersistSnapshot struct{ Snapshot *domain.Snapshot }
	AddPending      struct{ ID domain.ArenaID }
	ShowOverlay     struct{ Seq int }
	HideOverlay     struct{}
	ScheduleRetry   struct{ Seq int }
	// ScheduleSettle waits the settle delay, or the re-capture delay when
	// Attempt > 0.
	ScheduleSettle struct {
		Seq     int
		Attempt int
	}
	FetchRatings struct{ Battle Battle }
	SaveEstimate struct {
		ID     domain.ArenaID
		Result winchance.Result
	}
	OverlayEstimate struct {
		Seq    int
		Result winchance.Result
	}
	OverlayNoData struct{ Seq int }
	KickPoller    struct{}
	InitAPI       struct{}
	QueryCache    struct{ ID domain.ArenaID }
	// Purge drops an invalid id from the queue and the context store.
	Purge struct{ ID domain.ArenaID }
	// ReconcileCached dequeues first and reconciles only if the id was
	// still pending.
	ReconcileCached struct {
		ID     domain.ArenaID
		Code   int
		Result *domain.RawBattleResult
	}
	// ReconcilePushed reconciles, then dequeues.
	ReconcilePushed struct{ Result *domain.RawBattleResult }
	Skip            struct {
		ID     domain.ArenaID
		Reason string
	}
)

func (CaptureBattle) action()   {}
func (PersistSnapshot) action() {}
func (AddPending) action()      {}
func (ShowOverlay) action()     {}
func (HideOverlay) action()     {}
func (ScheduleRetry) action()   {}
func (ScheduleSettle) action()  {}
func (FetchRatings) action()    {}
func (SaveEstimate) action()    {}
func (OverlayEstimate) action() {}
func (OverlayNoData) action()   {}
func (KickPoller) action()      {}
func (InitAPI) action()         {}
func (QueryCache) action()      {}
func (Purge) action()           {}
func (ReconcileCached) action() {}
func (ReconcilePushed) action() {}
func (Skip) action()            {}

// Decide returns the next state and the actions to run, in order.
func Decide(s State, ev Event) (State, []Action) {
	switch e := ev.(type) {
	case ZoneEntered:
		return onZoneEntered(s, e)
	case ZoneLeft:
		return onZoneLeft(s, e)
	case Captured:
		return onCaptured(s, e)
	case PlayerRetry:
		if s.Phase != PhaseInBattle || e.Seq != s.Seq {
			return s, nil
		}
		if s.Battle != nil && s.Battle.ArenaID != "" {
			return s, nil
		}
		return s, []Action{CaptureBattle{Seq: e.Seq, Purpose: CapturePlayerRetry}}
	case SettleElapsed:
		return onSettle(s, e)
	case RatingsFetched:
		return onRatings(s, e)
	case PollDue:
		if !e.ID.Valid() {
			return s, []Action{Purge{ID: e.ID}}
		}
		return s, []Action{QueryCache{ID: e.ID}}
	case CacheReplied:
		if e.Err != nil || e.Result.Empty() {
			return s, nil
		}
		return s, []Action{ReconcileCached{ID: e.ID, Code: e.Code, Result: e.Result}}
	case ResultsPushed:
		if !e.IsPlayerVehicle || e.Result.Empty() {
			return s, nil
		}
		return s, []Action{ReconcilePushed{Result: e.Result}}
	case APIReady:
		if !e.OK {
			s.APIStarted = false
		}
		return s, nil
	default:
		return s, nil
	}
}

func onZoneEntered(s State, e ZoneEntered) (State, []Action) {
	switch e.Space {
	case SpaceBattle:
		s.Phase = PhaseInBattle
		s.Seq++
		s.Battle = &Battle{Seq: s.Seq}
		return s, []Action{CaptureBattle{Seq: s.Seq, Purpose: CaptureEntry}}
	case SpaceHangar:
		s.Phase = PhaseHangar
		acts := []Action{KickPoller{}}
		if !s.APIStarted {
			s.APIStarted = true
			acts = append(acts, InitAPI{})
		}
		return s, acts
	case SpaceLoading:
		s.Phase = PhaseLoading
		return s, nil
	default:
		return s, nil
	}
}

func onZoneLeft(s State, e ZoneLeft) (State, []Action) {
	switch e.Space {
	case SpaceBattle:
		if s.Phase == PhaseInBattle {
			s.Phase = PhaseUnknown
		}
		return s, []Action{HideOverlay{}}
	case SpaceHangar:
		if s.Phase == PhaseHangar {
			s.Phase = PhaseUnknown
		}
	case SpaceLoading:
		if s.Phase == PhaseLoading {
			s.Phase = PhaseUnknown
		}
	}
	return s, nil
}

func onCaptured(s State, e Captured) (State, []Action) {
	if s.Battle == nil || s.Battle.Seq != e.Seq {
		return s, []Action{Skip{Reason: "battle superseded"}}
	}
	b := *s.Battle
	snap := e.Snapshot
	var acts []Action

	if snap.PlayerReady() && b.ArenaID == "" {
		b.ArenaID = snap.ArenaID
		b.Team = snap.Team
		acts = append(acts, PersistSnapshot{Snapshot: snap}, AddPending{ID: snap.ArenaID})
	}
	if snap != nil && snap.ArenaID == b.ArenaID && len(b.Participants) == 0 && len(snap.Participants) > 0 {
		b.Participants = snap.Participants
	}
	s.Battle = &b

	switch e.Purpose {
	case CaptureEntry:
		acts = append(acts, ShowOverlay{Seq: e.Seq})
		if b.ArenaID == "" {
			acts = append(acts, ScheduleRetry{Seq: e.Seq})
		}
		acts = append(acts, ScheduleSettle{Seq: e.Seq})
	case CaptureSettle:
		switch {
		case b.ArenaID != "" && len(b.Participants) > 0:
			acts = append(acts, FetchRatings{Battle: b})
		case e.Attempt < MaxRecaptures && s.Phase == PhaseInBattle:
			acts = append(acts, ScheduleSettle{Seq: e.Seq, Attempt: e.Attempt + 1})
		default:
			acts = append(acts, Skip{ID: b.ArenaID, Reason: "player not ready"})
		}
	}
	return s, acts
}

func onSettle(s State, e SettleElapsed) (State, []Action) {
	if s.Battle == nil || s.Battle.Seq != e.Seq {
		return s, []Action{Skip{Reason: "battle superseded"}}
	}
	b := *s.Battle
	if b.ArenaID != "" && len(b.Participants) > 0 {
		return s, []Action{FetchRatings{Battle: b}}
	}
	if s.Phase != PhaseInBattle {
		return s, []Action{Skip{ID: b.ArenaID, Reason: "left battle before roster was captured"}}
	}
	return s, []Action{CaptureBattle{Seq: e.Seq, Purpose: CaptureSettle, Attempt: e.Attempt}}
}

func onRatings(s State, e RatingsFetched) (State, []Action) {
	if len(e.Ratings) == 0 {
		return s, []Action{OverlayNoData{Seq: e.Seq}}
	}
	res := winchance.Compute(e.Battle.Participants, e.Battle.Team, e.Ratings)
	return s, []Action{
		SaveEstimate{ID: e.Battle.ArenaID, Result: res},
		OverlayEstimate{Seq: e.Seq, Result: res},
	}
}
