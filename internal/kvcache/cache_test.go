package kvcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRedisCache(t *testing.T, action func(c *RedisCache, server *miniredis.Miniredis)) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	action(NewRedisCache(client, DefaultPrefix), server)
}

// forEachBackend runs the same contract test against both Cache implementations.
func forEachBackend(t *testing.T, test func(t *testing.T, c Cache)) {
	t.Run("redis", func(t *testing.T) {
		withRedisCache(t, func(c *RedisCache, _ *miniredis.Miniredis) {
			test(t, c)
		})
	})
	t.Run("memory", func(t *testing.T) {
		test(t, NewInMemoryCache(DefaultPrefix))
	})
}

func TestCache_ReadIntegerAbsent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		_, ok, err := c.ReadInteger(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCache_WriteAndRead(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		require.NoError(t, c.Write(ctx, "answer", 42, time.Minute))

		value, ok, err := c.ReadInteger(ctx, "answer")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(42), value)
	})
}

func TestCache_ReadIntegerOfNonInteger(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		require.NoError(t, c.Write(ctx, "name", "octocat", time.Minute))
		_, _, err := c.ReadInteger(ctx, "name")
		assert.Error(t, err)
	})
}

func TestCache_WriteMultiple(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		require.NoError(t, c.WriteMultiple(ctx, map[string]interface{}{"a": 1, "b": "two"}, time.Minute))

		a, ok, err := c.ReadInteger(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), a)

		b, ok, err := c.Read(ctx, "b")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "two", b)

		assert.NoError(t, c.WriteMultiple(ctx, nil, time.Minute))
	})
}

func TestCache_WriteIfGreater(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()

		written, err := c.WriteIfGreater(ctx, "page", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, written)

		written, err = c.WriteIfGreater(ctx, "page", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, written)

		written, err = c.WriteIfGreater(ctx, "page", 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, written)

		written, err = c.WriteIfGreater(ctx, "page", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, written)

		value, _, err := c.ReadInteger(ctx, "page")
		require.NoError(t, err)
		assert.Equal(t, int64(5), value)
	})
}

func TestCache_WriteIfGreaterConcurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := int64(1); i <= 50; i++ {
			wg.Add(1)
			go func(page int64) {
				defer wg.Done()
				_, err := c.WriteIfGreater(ctx, "page", page, time.Minute)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		value, _, err := c.ReadInteger(ctx, "page")
		require.NoError(t, err)
		assert.Equal(t, int64(50), value)
	})
}

func TestCache_Increment(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		value, err := c.Increment(ctx, "counter", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), value)

		value, err = c.Increment(ctx, "counter", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(5), value)
	})
}

func TestCache_Sets(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		included, err := c.SetIncludes(ctx, "set", "10")
		require.NoError(t, err)
		assert.False(t, included)

		require.NoError(t, c.SetAdd(ctx, "set", "10", time.Minute))
		require.NoError(t, c.SetAdd(ctx, "set", "10", time.Minute))

		included, err = c.SetIncludes(ctx, "set", "10")
		require.NoError(t, err)
		assert.True(t, included)

		included, err = c.SetIncludes(ctx, "set", "11")
		require.NoError(t, err)
		assert.False(t, included)
	})
}

func TestCache_ExpireMissingKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Cache) {
		assert.NoError(t, c.Expire(context.Background(), "missing", time.Minute))
	})
}

func TestRedisCache_KeysArePrefixedAndExpire(t *testing.T) {
	withRedisCache(t, func(c *RedisCache, server *miniredis.Miniredis) {
		ctx := context.Background()
		require.NoError(t, c.SetAdd(ctx, "set", "1", 0))

		assert.True(t, server.Exists(DefaultPrefix+"set"))
		assert.Equal(t, DefaultTimeout, server.TTL(DefaultPrefix+"set"))

		require.NoError(t, c.Expire(ctx, "set", ShorterTimeout))
		assert.Equal(t, ShorterTimeout, server.TTL(DefaultPrefix+"set"))

		server.FastForward(ShorterTimeout + time.Second)
		included, err := c.SetIncludes(ctx, "set", "1")
		require.NoError(t, err)
		assert.False(t, included)
	})
}

func TestRedisCache_WriteIfGreaterSetsTtl(t *testing.T) {
	withRedisCache(t, func(c *RedisCache, server *miniredis.Miniredis) {
		_, err := c.WriteIfGreater(context.Background(), "page", 3, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, server.TTL(DefaultPrefix+"page"))
	})
}

func TestRedisCache_WriteIfGreaterSubSecondTtl(t *testing.T) {
	withRedisCache(t, func(c *RedisCache, server *miniredis.Miniredis) {
		written, err := c.WriteIfGreater(context.Background(), "page", 3, 500*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, 500*time.Millisecond, server.TTL(DefaultPrefix+"page"))

		server.FastForward(time.Second)
		_, found, err := c.ReadInteger(context.Background(), "page")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestNew(t *testing.T) {
	c, err := New(InMemoryBackend, nil, "x:")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryCache{}, c)

	_, err = New(RedisBackend, nil, "x:")
	assert.Error(t, err)

	_, err = New("etcd", nil, "x:")
	assert.Error(t, err)
}
