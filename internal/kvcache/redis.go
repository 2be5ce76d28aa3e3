package kvcache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const writeIfGreaterScript = `
local current = tonumber(redis.call('GET', KEYS[1]))
local value = tonumber(ARGV[1])
if current == nil or value > current then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return 1
end
return 0
`

// RedisCache is a Cache shared by every process pointing at the same redis.
type RedisCache struct {
	db     redis.UniversalClient
	prefix string
}

func NewRedisCache(db redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{db: db, prefix: prefix}
}

func (c *RedisCache) key(key string) string {
	return c.prefix + key
}

func (c *RedisCache) client(ctx context.Context) redis.Cmdable {
	switch db := c.db.(type) {
	case *redis.Client:
		return db.WithContext(ctx)
	case *redis.ClusterClient:
		return db.WithContext(ctx)
	default:
		return c.db
	}
}

func (c *RedisCache) Read(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client(ctx).Get(c.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.WithStack(err)
	}
	return value, true, nil
}

func (c *RedisCache) ReadInteger(ctx context.Context, key string) (int64, bool, error) {
	value, ok, err := c.Read(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "value of %s is not an integer", key)
	}
	return i, true, nil
}

func (c *RedisCache) Write(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.client(ctx).Set(c.key(key), value, ttlOrDefault(ttl)).Err(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (c *RedisCache) WriteMultiple(ctx context.Context, mapping map[string]interface{}, ttl time.Duration) error {
	if len(mapping) == 0 {
		return nil
	}
	pipe := c.client(ctx).Pipeline()
	for key, value := range mapping {
		pipe.Set(c.key(key), value, ttlOrDefault(ttl))
	}
	if _, err := pipe.Exec(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (c *RedisCache) WriteIfGreater(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	millis := ttlOrDefault(ttl).Milliseconds()
	if millis < 1 {
		millis = 1
	}
	result, err := c.client(ctx).Eval(writeIfGreaterScript, []string{c.key(key)}, value, millis).Result()
	if err != nil {
		return false, errors.WithStack(err)
	}
	written, ok := result.(int64)
	if !ok {
		return false, errors.Errorf("unexpected reply %v from write-if-greater script", result)
	}
	return written == 1, nil
}

func (c *RedisCache) Increment(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error) {
	pipe := c.client(ctx).TxPipeline()
	incr := pipe.IncrBy(c.key(key), by)
	pipe.Expire(c.key(key), ttlOrDefault(ttl))
	if _, err := pipe.Exec(); err != nil {
		return 0, errors.WithStack(err)
	}
	return incr.Val(), nil
}

func (c *RedisCache) SetAdd(ctx context.Context, setKey string, member string, ttl time.Duration) error {
	pipe := c.client(ctx).TxPipeline()
	pipe.SAdd(c.key(setKey), member)
	pipe.Expire(c.key(setKey), ttlOrDefault(ttl))
	if _, err := pipe.Exec(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (c *RedisCache) SetIncludes(ctx context.Context, setKey string, member string) (bool, error) {
	included, err := c.client(ctx).SIsMember(c.key(setKey), member).Result()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return included, nil
}

func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client(ctx).Expire(c.key(key), ttlOrDefault(ttl)).Err(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
