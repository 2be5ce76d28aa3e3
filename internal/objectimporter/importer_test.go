package objectimporter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/importscheduler/internal/kvcache"
	"github.com/G-Research/importscheduler/internal/metrics"
	"github.com/G-Research/importscheduler/internal/representation"
	"github.com/G-Research/importscheduler/internal/workqueue"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string]representation.Representation
}

func (s *memoryStore) UpsertObject(_ context.Context, sourceID string, _ string, r representation.Representation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[sourceID+"/"+string(r.Kind())+"/"+r.ExternalID()] = r
	return nil
}

func TestImport_IsIdempotentAndCounted(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{objects: map[string]representation.Representation{}}
	counter := metrics.NewObjectCounter(kvcache.NewInMemoryCache(""), nil)
	importer := New(store, counter)

	require.NoError(t, importer.Import(ctx, "1", "issues", &representation.Issue{IID: 5}))
	job := workqueue.Job{SourceID: "1", Collection: "issues"}
	require.NoError(t, importer.Process(ctx, job, &representation.Issue{IID: 5}))

	assert.Len(t, store.objects, 1)
	imported, err := counter.Count(ctx, "1", "issue", metrics.Imported)
	require.NoError(t, err)
	assert.Equal(t, int64(2), imported)
}

func TestImport_RejectsObjectWithoutIdentifier(t *testing.T) {
	store := &memoryStore{objects: map[string]representation.Representation{}}
	importer := New(store, metrics.NewObjectCounter(kvcache.NewInMemoryCache(""), nil))

	assert.Error(t, importer.Import(context.Background(), "1", "issues", &representation.Issue{}))
	assert.Empty(t, store.objects)
}
