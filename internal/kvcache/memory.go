package kvcache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// InMemoryCache is a process local Cache. It gives the same single key guarantees as RedisCache
// but only within one process, so it is only suitable for sequential imports and tests.
type InMemoryCache struct {
	store  *gocache.Cache
	prefix string
	// go-cache is safe for concurrent use, but read-modify-write operations need to be atomic as a whole.
	mu sync.Mutex
}

func NewInMemoryCache(prefix string) *InMemoryCache {
	return &InMemoryCache{
		store:  gocache.New(DefaultTimeout, time.Minute),
		prefix: prefix,
	}
}

func (c *InMemoryCache) key(key string) string {
	return c.prefix + key
}

func (c *InMemoryCache) Read(_ context.Context, key string) (string, bool, error) {
	value, ok := c.store.Get(c.key(key))
	if !ok {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", false, errors.Errorf("value of %s is not a string", key)
	}
	return s, true, nil
}

func (c *InMemoryCache) ReadInteger(ctx context.Context, key string) (int64, bool, error) {
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

func (c *InMemoryCache) Write(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(c.key(key), fmt.Sprint(value), ttlOrDefault(ttl))
	return nil
}

func (c *InMemoryCache) WriteMultiple(ctx context.Context, mapping map[string]interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, value := range mapping {
		c.store.Set(c.key(key), fmt.Sprint(value), ttlOrDefault(ttl))
	}
	return nil
}

func (c *InMemoryCache) WriteIfGreater(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok, err := c.ReadInteger(ctx, key)
	if err != nil {
		return false, err
	}
	if ok && value <= current {
		return false, nil
	}
	c.store.Set(c.key(key), strconv.FormatInt(value, 10), ttlOrDefault(ttl))
	return true, nil
}

func (c *InMemoryCache) Increment(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, _, err := c.ReadInteger(ctx, key)
	if err != nil {
		return 0, err
	}
	current += by
	c.store.Set(c.key(key), strconv.FormatInt(current, 10), ttlOrDefault(ttl))
	return current, nil
}

func (c *InMemoryCache) SetAdd(_ context.Context, setKey string, member string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	members, err := c.set(setKey)
	if err != nil {
		return err
	}
	if members == nil {
		members = map[string]struct{}{}
	}
	members[member] = struct{}{}
	c.store.Set(c.key(setKey), members, ttlOrDefault(ttl))
	return nil
}

func (c *InMemoryCache) SetIncludes(_ context.Context, setKey string, member string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members, err := c.set(setKey)
	if err != nil {
		return false, err
	}
	_, ok := members[member]
	return ok, nil
}

func (c *InMemoryCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.store.Get(c.key(key))
	if !ok {
		return nil
	}
	c.store.Set(c.key(key), value, ttlOrDefault(ttl))
	return nil
}

func (c *InMemoryCache) set(setKey string) (map[string]struct{}, error) {
	value, ok := c.store.Get(c.key(setKey))
	if !ok {
		return nil, nil
	}
	members, ok := value.(map[string]struct{})
	if !ok {
		return nil, errors.Errorf("value of %s is not a set", setKey)
	}
	return members, nil
}
