package domain

import (
	"strings"
	"time"
)

// Zone ids reported by the host on GUI space changes.
const (
	ZoneHangar  = 3
	ZoneLoading = 4
	ZoneBattle  = 5
)

// Vehicle describes the player's vehicle as captured at battle start.
type Vehicle struct {
	ID    int64    `json:"id"`   // compact descriptor
	Name  string   `json:"name"` // technical name, e.g. germany:G04_PzVI_Tiger_I
	Label string   `json:"label"`
	Tier  int      `json:"tier"`
	Tags  []string `json:"tags,omitempty"`
}

// ClassTag returns the vehicle class (heavyTank, SPG, ...).
func (v Vehicle) ClassTag() string { return ClassTag(v.Tags) }

// Nation returns the nation prefix of the technical name.
func (v Vehicle) Nation() string { return NationOf(v.Name) }

// DisplayName prefers the localized label over the technical name.
func (v Vehicle) DisplayName() string {
	if s := strings.TrimSpace(v.Label); s != "" {
		return s
	}
	if s := strings.TrimSpace(v.Name); s != "" {
		return s
	}
	return "Unknown"
}

// ClassTag picks the first tag naming a vehicle class, falling back to the
// first tag at all.
func ClassTag(tags []string) string {
	for _, t := range tags {
		if strings.Contains(t, "Tank") || strings.Contains(t, "SPG") {
			return t
		}
	}
	if len(tags) > 0 && strings.TrimSpace(tags[0]) != "" {
		return tags[0]
	}
	return "unknown"
}

// NationOf extracts "germany" from "germany:G04_PzVI_Tiger_I".
func NationOf(name string) string {
	i := strings.Index(name, ":")
	if i <= 0 {
		return "unknown"
	}
	return name[:i]
}

// Participant is one roster entry of the arena.
type Participant struct {
	AccountID int64 `json:"accountDBID"`
	Team      int   `json:"team"`
}

// Snapshot is the state of the live battle entities at one instant.
// Taken once on battle entry; fields the host could not supply stay zero.
type Snapshot struct {
	ArenaID      ArenaID       `json:"arenaUniqueID"`
	AccountID    int64         `json:"accountDBID,omitempty"`
	Team         int           `json:"team"`
	Vehicle      *Vehicle      `json:"vehicle,omitempty"`
	MapName      string        `json:"mapName,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	TakenAt      time.Time     `json:"-"`
}

// PlayerReady reports whether the player entity carried an arena id.
func (s *Snapshot) PlayerReady() bool { return s != nil && s.ArenaID != "" }

// PlayerInfo identifies the logged-in account for API registration.
type PlayerInfo struct {
	AccountID int64  `json:"accountDBID"`
	Nickname  string `json:"name"`
	Realm     string `json:"realm"`
}

// Outcome of a finished battle from the player's point of view.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	OutcomeDraw Outcome = "draw"
)

// OutcomeFor compares the winning team to the player's team; 0 is a draw.
func OutcomeFor(winnerTeam, playerTeam int) Outcome {
	switch {
	case winnerTeam == 0:
		return OutcomeDraw
	case winnerTeam == playerTeam:
		return OutcomeWin
	default:
		return OutcomeLose
	}
}
