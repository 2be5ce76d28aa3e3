package scheduler

import (
	"time"

	"github.com/G-Research/importscheduler/internal/pager"
	"github.com/G-Research/importscheduler/internal/representation"
)

// BulkInitialDelay is how long the first batch of a bulk submission waits before it becomes runnable.
const BulkInitialDelay = time.Second

// BatchConfig spreads a parallel run's jobs over time: Size jobs become runnable every Delay.
type BatchConfig struct {
	Size  int           `validate:"gte=1"`
	Delay time.Duration `validate:"gte=0"`
}

// DefaultBatch is the usual preset for collections large enough to need spreading out.
var DefaultBatch = BatchConfig{Size: 1000, Delay: time.Minute}

// Collection describes one remote collection and how its objects are scheduled.
type Collection struct {
	// Name is the collection as the pager knows it, e.g. "issues". It also scopes the checkpoint and the
	// dedup set.
	Name string
	// Importer names this scheduler type in logs and failure reports.
	Importer string
	Kind     representation.Kind
	// Options are passed to the pager on every request.
	Options pager.Options
	// AbortOnFailure marks the whole import as failed, not just this collection, when the run fails.
	AbortOnFailure bool
	// Batch, if set, makes a parallel run submit everything as one bulk submission spread out in batches.
	// Otherwise each object is submitted on its own as soon as it is accepted.
	Batch *BatchConfig
}

// Source identifies what is being imported.
type Source struct {
	// ID is the local identifier of the import target. Cache keys and stored objects are scoped by it.
	ID string
	// Ref identifies the remote repository, e.g. "octocat/hello-world".
	Ref string
}
