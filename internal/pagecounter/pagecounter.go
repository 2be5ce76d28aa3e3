// Package pagecounter records, per source and collection, the last page an import run started consuming,
// so that a relaunched run resumes there instead of at the first page.
package pagecounter

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/G-Research/importscheduler/internal/kvcache"
)

const (
	// FirstPage is the page a run starts at when nothing has been recorded.
	FirstPage = 1
	cacheKey  = "importer/page-counter/%s/%s"
)

type PageCounter struct {
	cache kvcache.Cache
	key   string
}

func New(cache kvcache.Cache, sourceID string, collection string) *PageCounter {
	return &PageCounter{cache: cache, key: CacheKey(sourceID, collection)}
}

// CacheKey is the kvcache key of the checkpoint for sourceID and collection.
func CacheKey(sourceID string, collection string) string {
	return fmt.Sprintf(cacheKey, sourceID, collection)
}

// Current returns the last recorded page, or FirstPage if none was recorded.
func (p *PageCounter) Current(ctx context.Context) (int, error) {
	page, ok, err := p.cache.ReadInteger(ctx, p.key)
	if err != nil {
		return 0, errors.Wrap(err, "reading page counter")
	}
	if !ok {
		return FirstPage, nil
	}
	return int(page), nil
}

// Set advances the checkpoint to page. It returns false, and leaves the checkpoint unchanged, if page is not
// greater than the stored value: some other run is already at or past this page.
func (p *PageCounter) Set(ctx context.Context, page int) (bool, error) {
	advanced, err := p.cache.WriteIfGreater(ctx, p.key, int64(page), kvcache.DefaultTimeout)
	if err != nil {
		return false, errors.Wrapf(err, "advancing page counter to %d", page)
	}
	return advanced, nil
}
