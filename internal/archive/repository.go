// Package archive keeps a local Postgres history of reconciled battles.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/winchance-agent/pkg/battledto"
)

var ErrNoDatabaseURL = errors.New("DATABASE_URL is required")

const schema = `CREATE TABLE IF NOT EXISTS battle_results (
	arena_id        TEXT PRIMARY KEY,
	battle_time     TEXT NOT NULL,
	duration_s      BIGINT NOT NULL,
	map_name        TEXT NOT NULL,
	battle_type     INTEGER NOT NULL,
	team            INTEGER NOT NULL,
	winner_team     INTEGER NOT NULL,
	result          TEXT NOT NULL,
	tank_id         BIGINT NOT NULL,
	tank_name       TEXT NOT NULL,
	tank_tier       INTEGER NOT NULL,
	damage_dealt    BIGINT NOT NULL,
	damage_assisted BIGINT NOT NULL,
	kills           BIGINT NOT NULL,
	experience      BIGINT NOT NULL,
	win_chance      DOUBLE PRECISION NOT NULL,
	ally_wgr        DOUBLE PRECISION NOT NULL,
	enemy_wgr       DOUBLE PRECISION NOT NULL,
	recorded_at     TIMESTAMPTZ NOT NULL
)`

const insertResult = `INSERT INTO battle_results (
	arena_id, battle_time, duration_s, map_name, battle_type,
	team, winner_team, result,
	tank_id, tank_name, tank_tier,
	damage_dealt, damage_assisted, kills, experience,
	win_chance, ally_wgr, enemy_wgr, recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
) ON CONFLICT (arena_id) DO NOTHING`

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrNoDatabaseURL
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	r := &Repository{db: db, now: time.Now}
	if err := r.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create battle_results: %w", err)
	}
	return nil
}

// Record stores rec once; a second record for the same arena is ignored.
func (r *Repository) Record(ctx context.Context, rec *battledto.BattleResult) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, insertResult, recordArgs(rec, r.now())...); err != nil {
		return fmt.Errorf("insert battle %s: %w", rec.ArenaUniqueID, err)
	}
	return nil
}

func recordArgs(rec *battledto.BattleResult, at time.Time) []any {
	return []any{
		strings.TrimSpace(rec.ArenaUniqueID), rec.BattleTime, rec.Duration, rec.MapName, rec.BattleType,
		rec.Team, rec.WinnerTeam, rec.Result,
		rec.Tank.TankID, rec.Tank.Name, rec.Tank.Tier,
		rec.DamageDealt, rec.DamageAssisted, rec.Kills, rec.Experience,
		rec.WinChance, rec.AllyWgr, rec.EnemyWgr, at.UTC(),
	}
}
