package battledto

import "encoding/json"

// BattleTimeLayout is the local wall-clock format the collection API expects.
const BattleTimeLayout = "2006-01-02T15:04:05"

type Tank struct {
	TankID int64  `json:"TankId"`
	Name   string `json:"Name"`
	Tier   int    `json:"Tier"`
	Type   string `json:"Type"`
	Nation string `json:"Nation"`
}

// BattleResult is the canonical record of one finished battle.
type BattleResult struct {
	ArenaUniqueID string `json:"ArenaUniqueId"`
	BattleTime    string `json:"BattleTime"`
	Duration      int64  `json:"Duration"`
	MapName       string `json:"MapName"`
	BattleType    int    `json:"BattleType"`
	Team          int    `json:"Team"`
	WinnerTeam    int    `json:"WinnerTeam"`
	Result        string `json:"Result"`

	DamageDealt    int64 `json:"DamageDealt"`
	DamageAssisted int64 `json:"DamageAssisted"`
	DamageBlocked  int64 `json:"DamageBlocked"`
	Kills          int64 `json:"Kills"`
	Spotted        int64 `json:"Spotted"`
	Experience     int64 `json:"Experience"`
	Credits        int64 `json:"Credits"`
	Shots          int64 `json:"Shots"`
	Hits           int64 `json:"Hits"`
	Penetrations   int64 `json:"Penetrations"`

	WinChance float64 `json:"WinChance"`
	AllyWgr   float64 `json:"AllyWgr"`
	EnemyWgr  float64 `json:"EnemyWgr"`

	Tank Tank `json:"Tank"`

	RawResult json.RawMessage `json:"RawResult,omitempty"`
}

// RawBattle is the audit payload of /api/BattlesRaw.
type RawBattle struct {
	BattleID   json.Number `json:"battleId"`
	AccountID  int64       `json:"accountId"`
	BattleTime string      `json:"battleTime"`
	RawJSON    string      `json:"rawJson"`
}
