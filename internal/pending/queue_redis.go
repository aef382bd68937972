package pending

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/winchance-agent/internal/domain"
)

const keyPending = "winchance:pending"

// RedisQueue keeps the set in a sorted set scored by insertion time.
type RedisQueue struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, now: time.Now}
}

func (q *RedisQueue) Add(ctx context.Context, id domain.ArenaID) (bool, error) {
	n, err := q.rdb.ZAddNX(ctx, keyPending, redis.Z{
		Score:  float64(q.now().UnixNano()),
		Member: id.String(),
	}).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *RedisQueue) Remove(ctx context.Context, id domain.ArenaID) (bool, error) {
	n, err := q.rdb.ZRem(ctx, keyPending, id.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *RedisQueue) List(ctx context.Context) ([]domain.ArenaID, error) {
	members, err := q.rdb.ZRange(ctx, keyPending, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]domain.ArenaID, 0, len(members))
	for _, m := range members {
		ids = append(ids, domain.ArenaID(m))
	}
	return ids, nil
}

func (q *RedisQueue) Contains(ctx context.Context, id domain.ArenaID) (bool, error) {
	_, err := q.rdb.ZScore(ctx, keyPending, id.String()).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
