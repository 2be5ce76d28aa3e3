package jobwaiter

import (
	"context"
	"math"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

// RedisStore keeps completion lists in redis so that workers in other processes can notify.
type RedisStore struct {
	db      redis.UniversalClient
	listTTL time.Duration
}

func NewRedisStore(db redis.UniversalClient, listTTL time.Duration) *RedisStore {
	if listTTL <= 0 {
		listTTL = DefaultListTTL
	}
	return &RedisStore{db: db, listTTL: listTTL}
}

func (s *RedisStore) Notify(_ context.Context, key string, jobID string) error {
	pipe := s.db.TxPipeline()
	pipe.LPush(key, jobID)
	pipe.Expire(key, s.listTTL)
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "notifying waiter %s of job %s", key, jobID)
	}
	return nil
}

// Pop uses BLPOP. Redis blocking timeouts have a resolution of one second, so the timeout is rounded up;
// a zero timeout would block forever and is never sent.
func (s *RedisStore) Pop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	seconds := math.Ceil(timeout.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	result, err := s.db.BLPop(time.Duration(seconds)*time.Second, key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.Wrapf(err, "waiting on %s", key)
	}
	// BLPOP replies with [key, value]
	if len(result) != 2 {
		return "", false, errors.Errorf("unexpected BLPOP reply %v", result)
	}
	return result[1], true, nil
}
