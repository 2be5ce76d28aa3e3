// Package metrics counts the objects each import fetched and imported.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/G-Research/importscheduler/internal/kvcache"
)

type Operation string

const (
	Fetched  Operation = "fetched"
	Imported Operation = "imported"
)

// ObjectCounter counts per source and object type, both in Prometheus and in the shared cache. The cache
// copy is what operators read back per source; Prometheus only carries the object type.
type ObjectCounter struct {
	cache   kvcache.Cache
	objects *prometheus.CounterVec
}

func NewObjectCounter(cache kvcache.Cache, registerer prometheus.Registerer) *ObjectCounter {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	return &ObjectCounter{
		cache: cache,
		objects: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_objects_total",
				Help: "Number of objects fetched from the remote API or imported",
			},
			[]string{"object_type", "operation"},
		),
	}
}

func CacheKey(sourceID string, objectType string, operation Operation) string {
	return fmt.Sprintf("importer/object-counter/%s/%s/%s", sourceID, objectType, operation)
}

func (c *ObjectCounter) Increment(ctx context.Context, sourceID string, objectType string, operation Operation) error {
	c.objects.WithLabelValues(objectType, string(operation)).Inc()
	_, err := c.cache.Increment(ctx, CacheKey(sourceID, objectType, operation), 1, kvcache.DefaultTimeout)
	return err
}

// Count returns the cached count, zero if nothing was counted in the last day.
func (c *ObjectCounter) Count(ctx context.Context, sourceID string, objectType string, operation Operation) (int64, error) {
	count, _, err := c.cache.ReadInteger(ctx, CacheKey(sourceID, objectType, operation))
	return count, err
}
