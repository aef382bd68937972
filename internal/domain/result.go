package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

const personalAvatarKey = "avatar"

// CommonResult holds the arena-wide facts of a finished battle.
type CommonResult struct {
	WinnerTeam      FlexInt `json:"winnerTeam"`
	Duration        FlexInt `json:"duration"`
	ArenaCreateTime FlexInt `json:"arenaCreateTime"`
	ArenaTypeID     FlexInt `json:"arenaTypeID"`
	BonusType       FlexInt `json:"bonusType"`
}

type AvatarResult struct {
	Team      FlexInt `json:"team"`
	AccountID FlexInt `json:"accountDBID"`
}

// PersonalResult is the player's per-vehicle performance block.
type PersonalResult struct {
	Avatar *AvatarResult `json:"avatar,omitempty"`

	DamageDealt          FlexInt `json:"damageDealt"`
	DamageAssistedRadio  FlexInt `json:"damageAssistedRadio"`
	DamageAssistedTrack  FlexInt `json:"damageAssistedTrack"`
	DamageAssistedStun   FlexInt `json:"damageAssistedStun"`
	DamageBlockedByArmor FlexInt `json:"damageBlockedByArmor"`
	Kills                FlexInt `json:"kills"`
	Spotted              FlexInt `json:"spotted"`
	OriginalXP           FlexInt `json:"originalXP"`
	OriginalCredits      FlexInt `json:"originalCredits"`
	Shots                FlexInt `json:"shots"`
	DirectEnemyHits      FlexInt `json:"directEnemyHits"`
	PiercingEnemyHits    FlexInt `json:"piercingEnemyHits"`
}

// DamageAssisted sums radio, track and stun assistance.
func (p PersonalResult) DamageAssisted() int64 {
	return p.DamageAssistedRadio.Int64() + p.DamageAssistedTrack.Int64() + p.DamageAssistedStun.Int64()
}

// RawBattleResult is the host's end-of-battle payload. Only the fields the
// reconciler reads are typed; the rosters stay raw.
type RawBattleResult struct {
	ArenaID  ArenaID                    `json:"arenaUniqueID"`
	Common   CommonResult               `json:"common"`
	Personal map[string]json.RawMessage `json:"personal,omitempty"`
	Players  json.RawMessage            `json:"players,omitempty"`
	Vehicles json.RawMessage            `json:"vehicles,omitempty"`

	raw []byte
}

// DecodeRawBattleResult parses b and keeps a copy of it for audit.
func DecodeRawBattleResult(b []byte) (*RawBattleResult, error) {
	var r RawBattleResult
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode battle result: %w", err)
	}
	r.raw = append([]byte(nil), b...)
	return &r, nil
}

// Empty reports a payload carrying nothing usable.
func (r *RawBattleResult) Empty() bool {
	return r == nil || (r.ArenaID == "" && len(r.Personal) == 0 && r.Common == CommonResult{})
}

// RawJSON returns the bytes the result was decoded from.
func (r *RawBattleResult) RawJSON() []byte {
	if r == nil {
		return nil
	}
	if len(r.raw) > 0 {
		return r.raw
	}
	b, _ := json.Marshal(r)
	return b
}

// PlayerBlock returns the vehicle compact descriptor and personal block of
// the first vehicle entry in personal.
func (r *RawBattleResult) PlayerBlock() (int64, PersonalResult, bool) {
	var p PersonalResult
	if r == nil || len(r.Personal) == 0 {
		return 0, p, false
	}
	keys := make([]string, 0, len(r.Personal))
	for k := range r.Personal {
		if k == personalAvatarKey {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return 0, p, false
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.ParseInt(keys[i], 10, 64)
		b, errB := strconv.ParseInt(keys[j], 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	if err := json.Unmarshal(r.Personal[keys[0]], &p); err != nil {
		return 0, PersonalResult{}, false
	}
	cd, _ := strconv.ParseInt(keys[0], 10, 64)
	return cd, p, true
}

func (r *RawBattleResult) avatar() *AvatarResult {
	if r == nil {
		return nil
	}
	raw, ok := r.Personal[personalAvatarKey]
	if !ok {
		return nil
	}
	var a AvatarResult
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil
	}
	return &a
}

// PlayerTeam reads the team from the vehicle block's avatar, then the
// top-level avatar, and defaults to 1.
func (r *RawBattleResult) PlayerTeam() int {
	if _, p, ok := r.PlayerBlock(); ok && p.Avatar != nil {
		return p.Avatar.Team.Int()
	}
	if a := r.avatar(); a != nil {
		return a.Team.Int()
	}
	return 1
}

// AccountID is the player's account as recorded by the top-level avatar.
func (r *RawBattleResult) AccountID() int64 {
	if a := r.avatar(); a != nil {
		return a.AccountID.Int64()
	}
	return 0
}
