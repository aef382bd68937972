// Package battlectx persists the facts gathered about one arena between
// battle start and result delivery.
package battlectx

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/park285/winchance-agent/internal/domain"
)

// Context field names. They are also the persisted JSON keys.
const (
	KeyTankID     = "TankId"
	KeyTankName   = "TankName"
	KeyTankTier   = "TankTier"
	KeyTankType   = "TankType"
	KeyTankNation = "TankNation"
	KeyMapName    = "MapName"
	KeyWinChance  = "WinChance"
	KeyAllyWgr    = "AllyWgr"
	KeyEnemyWgr   = "EnemyWgr"
	KeyCapturedAt = "CapturedAt"
)

// Store holds one Context per arena. Save overlays fields onto what is
// already stored; it never drops keys it was not given.
type Store interface {
	Load(ctx context.Context, id domain.ArenaID) Context
	Save(ctx context.Context, id domain.ArenaID, fields Context) error
	Delete(ctx context.Context, id domain.ArenaID) error
}

// Context is a shallow key/value document.
type Context map[string]any

// Merge overlays src onto c; src wins on collisions.
func (c Context) Merge(src Context) Context {
	if c == nil {
		c = Context{}
	}
	for k, v := range src {
		c[k] = v
	}
	return c
}

func (c Context) Has(key string) bool {
	_, ok := c[key]
	return ok
}

func (c Context) Float(key string) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	default:
		return 0
	}
}

func (c Context) Int(key string) int64 {
	switch v := c[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return int64(f)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	default:
		return 0
	}
}

func (c Context) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return strings.Trim(string(b), `"`)
	}
}

// VehicleFields returns the context fields describing the captured vehicle
// and map.
func VehicleFields(v *domain.Vehicle, mapName string) Context {
	c := Context{}
	if v != nil {
		c[KeyTankID] = v.ID
		c[KeyTankName] = v.DisplayName()
		c[KeyTankTier] = v.Tier
		c[KeyTankType] = v.ClassTag()
		c[KeyTankNation] = v.Nation()
	}
	if strings.TrimSpace(mapName) != "" {
		c[KeyMapName] = mapName
	}
	return c
}

// EstimateFields returns the context fields written once ratings arrive.
func EstimateFields(chance, allyAvg, enemyAvg float64) Context {
	return Context{
		KeyWinChance: chance,
		KeyAllyWgr:   allyAvg,
		KeyEnemyWgr:  enemyAvg,
	}
}
