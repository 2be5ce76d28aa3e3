// Package kvcache is the shared key/value and set store used to coordinate import runs across processes.
//
// Every operation is a single atomic primitive on one key, so callers never need client side locking.
// No ordering is guaranteed across different keys.
package kvcache

import (
	"context"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/G-Research/importscheduler/internal/common/importerrors"
)

const (
	// DefaultTimeout is the expiry applied to keys written without an explicit ttl.
	DefaultTimeout = 24 * time.Hour
	// ShorterTimeout is used once a run no longer needs its data but stragglers may still read it.
	ShorterTimeout = 15 * time.Minute
	// DefaultPrefix namespaces every key written by the importer.
	DefaultPrefix = "cache:importer:"
)

// Backend selects the Cache implementation.
type Backend string

const (
	RedisBackend    Backend = "redis"
	InMemoryBackend Backend = "memory"
)

type Cache interface {
	// Read returns the raw value stored at key, or false if there is none.
	Read(ctx context.Context, key string) (string, bool, error)
	// ReadInteger returns the integer stored at key, or false if there is none.
	ReadInteger(ctx context.Context, key string) (int64, bool, error)
	Write(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// WriteMultiple sets every key of mapping in a single round trip.
	WriteMultiple(ctx context.Context, mapping map[string]interface{}, ttl time.Duration) error
	// WriteIfGreater stores value only if it is greater than the integer currently stored at key,
	// or if the key is absent. It reports whether the value was stored.
	WriteIfGreater(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error)
	Increment(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error)
	SetAdd(ctx context.Context, setKey string, member string, ttl time.Duration) error
	SetIncludes(ctx context.Context, setKey string, member string) (bool, error)
	// Expire sets the time to live of key. Expiring a missing key is not an error.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTimeout
	}
	return ttl
}

// New returns the Cache for backend. db is only used, and must be non-nil, for RedisBackend.
func New(backend Backend, db redis.UniversalClient, prefix string) (Cache, error) {
	switch backend {
	case RedisBackend:
		if db == nil {
			return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
				Name:    "cache.backend",
				Value:   string(backend),
				Message: "redis backend requires a redis client",
			})
		}
		return NewRedisCache(db, prefix), nil
	case InMemoryBackend:
		return NewInMemoryCache(prefix), nil
	default:
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
			Name:    "cache.backend",
			Value:   string(backend),
			Message: "must be one of redis, memory",
		})
	}
}
