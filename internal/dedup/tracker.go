// Package dedup marks external objects as already scheduled so that overlapping or retried import runs
// schedule each object at most once in the common case.
//
// Checking and marking are two separate operations. Two runs can both observe an object as unmarked and
// both schedule it; the downstream import is idempotent on the external id, which absorbs that race.
package dedup

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/G-Research/importscheduler/internal/kvcache"
)

const (
	cacheKey = "importer/already-imported/%s/%s"
	// DefaultMemoSize is the number of marked ids a tracker remembers locally.
	DefaultMemoSize = 10000
)

type Tracker struct {
	cache  kvcache.Cache
	setKey string
	// ids this tracker has seen marked, so repeated checks within a run skip the cache
	marked *lru.Cache
}

func New(cache kvcache.Cache, sourceID string, collection string) *Tracker {
	marked, err := lru.New(DefaultMemoSize)
	if err != nil {
		panic(errors.WithStack(err).Error())
	}
	return &Tracker{cache: cache, setKey: CacheKey(sourceID, collection), marked: marked}
}

// CacheKey is the kvcache set key holding the marked ids for sourceID and collection.
func CacheKey(sourceID string, collection string) string {
	return fmt.Sprintf(cacheKey, sourceID, collection)
}

func (t *Tracker) AlreadyMarked(ctx context.Context, id string) (bool, error) {
	if t.marked.Contains(id) {
		return true, nil
	}
	included, err := t.cache.SetIncludes(ctx, t.setKey, id)
	if err != nil {
		return false, errors.Wrapf(err, "checking whether %s was already imported", id)
	}
	if included {
		t.marked.Add(id, struct{}{})
	}
	return included, nil
}

// Mark records id as scheduled. Marking an id more than once is harmless.
func (t *Tracker) Mark(ctx context.Context, id string) error {
	if err := t.cache.SetAdd(ctx, t.setKey, id, kvcache.DefaultTimeout); err != nil {
		return errors.Wrapf(err, "marking %s as imported", id)
	}
	t.marked.Add(id, struct{}{})
	return nil
}

// Release shortens the lifetime of the marks once the run is finished. They are not deleted outright so that
// a trailing duplicate run still skips everything while it catches up.
func (t *Tracker) Release(ctx context.Context, ttl time.Duration) error {
	if err := t.cache.Expire(ctx, t.setKey, ttl); err != nil {
		return errors.Wrap(err, "releasing already imported cache")
	}
	t.marked.Purge()
	return nil
}
