// Package objectimporter imports a single object into the local store. The same code runs inline during a
// sequential import and in workers during a parallel one.
package objectimporter

import (
	"context"

	"github.com/pkg/errors"

	"github.com/G-Research/importscheduler/internal/metrics"
	"github.com/G-Research/importscheduler/internal/representation"
	"github.com/G-Research/importscheduler/internal/workqueue"
)

// ObjectStore persists one object. Storing the same object twice must leave a single copy.
type ObjectStore interface {
	UpsertObject(ctx context.Context, sourceID string, collection string, r representation.Representation) error
}

type Importer struct {
	store   ObjectStore
	counter *metrics.ObjectCounter
}

func New(store ObjectStore, counter *metrics.ObjectCounter) *Importer {
	return &Importer{store: store, counter: counter}
}

func (i *Importer) Import(ctx context.Context, sourceID string, collection string, r representation.Representation) error {
	if r.ExternalID() == "" || r.ExternalID() == "0" {
		return errors.Errorf("%s in %s has no identifier", r.Kind(), collection)
	}
	if err := i.store.UpsertObject(ctx, sourceID, collection, r); err != nil {
		return err
	}
	return i.counter.Increment(ctx, sourceID, string(r.Kind()), metrics.Imported)
}

// Process runs a job taken from a work queue.
func (i *Importer) Process(ctx context.Context, job workqueue.Job, r representation.Representation) error {
	return i.Import(ctx, job.SourceID, job.Collection, r)
}
