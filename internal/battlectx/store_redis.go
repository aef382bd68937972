package battlectx

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/domain"
)

const ttlContext = 7 * 24 * time.Hour

// RedisStore keeps each arena's context in its own hash; HSET is the merge.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisStore(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, logger: logger}
}

func (s *RedisStore) key(id domain.ArenaID) string {
	return "winchance:ctx:" + strings.TrimSpace(id.String())
}

func (s *RedisStore) Load(ctx context.Context, id domain.ArenaID) Context {
	raw, err := s.rdb.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		s.logger.Error("context_load_failed", zap.String("arena_id", id.String()), zap.Error(err))
		return Context{}
	}
	c := make(Context, len(raw))
	for field, v := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			s.logger.Warn("context_field_corrupt", zap.String("arena_id", id.String()), zap.String("field", field))
			continue
		}
		c[field] = decoded
	}
	return c
}

func (s *RedisStore) Save(ctx context.Context, id domain.ArenaID, fields Context) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		values[k] = string(b)
	}
	key := s.key(id)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, ttlContext)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id domain.ArenaID) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}
