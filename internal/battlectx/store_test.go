package battlectx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/winchance-agent/internal/domain"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, nil), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"file":  NewFileStore(filepath.Join(t.TempDir(), "battle_context"), nil),
		"redis": rs,
	}
}

func TestSaveMergesPartialWrites(t *testing.T) {
	ctx := context.Background()
	id := domain.ArenaID("106839217628331580")
	for name, s := range stores(t) {
		if err := s.Save(ctx, id, Context{"a": 1}); err != nil {
			t.Fatalf("%s: save a: %v", name, err)
		}
		if err := s.Save(ctx, id, Context{"b": 2}); err != nil {
			t.Fatalf("%s: save b: %v", name, err)
		}
		got := s.Load(ctx, id)
		if got.Int("a") != 1 || got.Int("b") != 2 || len(got) != 2 {
			t.Fatalf("%s: merged context=%v", name, got)
		}
		if err := s.Save(ctx, id, Context{"a": 5}); err != nil {
			t.Fatalf("%s: overwrite a: %v", name, err)
		}
		got = s.Load(ctx, id)
		if got.Int("a") != 5 || got.Int("b") != 2 {
			t.Fatalf("%s: new value must win: %v", name, got)
		}
	}
}

func TestVehicleThenEstimateFieldsSurvive(t *testing.T) {
	ctx := context.Background()
	id := domain.ArenaID("42")
	for name, s := range stores(t) {
		v := &domain.Vehicle{ID: 5137, Name: "germany:G04_PzVI_Tiger_I", Label: "Tiger I", Tier: 7, Tags: []string{"heavyTank"}}
		if err := s.Save(ctx, id, VehicleFields(v, "Fjords")); err != nil {
			t.Fatalf("%s: save vehicle: %v", name, err)
		}
		got := s.Load(ctx, id)
		if got.String(KeyTankName) != "Tiger I" || got.String(KeyMapName) != "Fjords" {
			t.Fatalf("%s: vehicle context=%v", name, got)
		}
		if got.Has(KeyWinChance) {
			t.Fatalf("%s: estimate must not exist yet", name)
		}
		if err := s.Save(ctx, id, EstimateFields(63.2, 5684, 5160)); err != nil {
			t.Fatalf("%s: save estimate: %v", name, err)
		}
		got = s.Load(ctx, id)
		if got.Float(KeyWinChance) != 63.2 || got.String(KeyTankName) != "Tiger I" || got.String(KeyTankNation) != "germany" {
			t.Fatalf("%s: merged context=%v", name, got)
		}
		if got.Int(KeyTankTier) != 7 || got.String(KeyTankType) != "heavyTank" {
			t.Fatalf("%s: tier/type=%v", name, got)
		}
	}
}

func TestLoadMissingAndDeleteAbsent(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		if got := s.Load(ctx, "777"); len(got) != 0 {
			t.Fatalf("%s: expected empty context, got %v", name, got)
		}
		if err := s.Delete(ctx, "777"); err != nil {
			t.Fatalf("%s: delete absent: %v", name, err)
		}
		_ = s.Save(ctx, "778", Context{"x": "y"})
		if err := s.Delete(ctx, "778"); err != nil {
			t.Fatalf("%s: delete: %v", name, err)
		}
		if got := s.Load(ctx, "778"); len(got) != 0 {
			t.Fatalf("%s: context survived delete: %v", name, got)
		}
	}
}

func TestFileStoreCorruptFileReadsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, nil)
	if err := os.WriteFile(filepath.Join(dir, "55.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := s.Load(context.Background(), "55"); len(got) != 0 {
		t.Fatalf("expected empty context, got %v", got)
	}
	if err := s.Save(context.Background(), "55", Context{"a": 1}); err != nil {
		t.Fatalf("save over corrupt file: %v", err)
	}
	if got := s.Load(context.Background(), "55"); got.Int("a") != 1 {
		t.Fatalf("context=%v", got)
	}
}

func TestFileStoreRejectsPathLikeIDs(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	if err := s.Save(context.Background(), "../escape", Context{"a": 1}); err == nil {
		t.Fatalf("expected error for path-like id")
	}
	if err := s.Delete(context.Background(), "../escape"); err != nil {
		t.Fatalf("delete of unusable id should be a no-op: %v", err)
	}
}

func TestRedisStoreSetsTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	if err := s.Save(context.Background(), "9", Context{"a": 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("winchance:ctx:9"); ttl <= 0 {
		t.Fatalf("expected ttl, got %v", ttl)
	}
}
