package importer

import (
	"context"

	"github.com/G-Research/importscheduler/internal/common/importerrors"
	"github.com/G-Research/importscheduler/internal/importer/configuration"
	"github.com/G-Research/importscheduler/internal/importstore"
	"github.com/G-Research/importscheduler/internal/metrics"
	"github.com/G-Research/importscheduler/internal/pagecounter"
	"github.com/G-Research/importscheduler/internal/scheduler"
)

type CollectionStatus struct {
	Name     string
	Importer string
	// Page is the furthest page any run has started.
	Page     int
	Fetched  int64
	Imported int64
	Stored   int64
}

type Status struct {
	// State is nil if the source was never imported.
	State       *importstore.State
	Collections []CollectionStatus
	Failures    []importstore.FailureRecord
	// Job counts are only reported for the redis queue.
	ReadyJobs     int64
	ScheduledJobs int64
}

// Status reports the progress of the import of source.
func (a *App) Status(ctx context.Context, source scheduler.Source) (*Status, error) {
	status := &Status{}
	state, err := a.store.GetState(ctx, source.ID)
	if err == nil {
		status.State = &state
	} else if !importerrors.IsNotFound(err) {
		return nil, err
	}

	for _, c := range a.config.Collections {
		collection := CollectionStatus{Name: c.Name, Importer: c.Importer}
		if collection.Page, err = pagecounter.New(a.cache, source.ID, c.Name).Current(ctx); err != nil {
			return nil, err
		}
		if collection.Fetched, err = a.counter.Count(ctx, source.ID, string(c.Kind), metrics.Fetched); err != nil {
			return nil, err
		}
		if collection.Imported, err = a.counter.Count(ctx, source.ID, string(c.Kind), metrics.Imported); err != nil {
			return nil, err
		}
		if collection.Stored, err = a.store.CountObjects(ctx, source.ID, c.Name); err != nil {
			return nil, err
		}
		status.Collections = append(status.Collections, collection)
	}

	if status.Failures, err = a.store.ListFailures(ctx, source.ID); err != nil {
		return nil, err
	}
	if a.config.Queue.Backend == configuration.RedisQueue {
		if status.ReadyJobs, status.ScheduledJobs, err = a.queue.Lengths(ctx); err != nil {
			return nil, err
		}
	}
	return status, nil
}
