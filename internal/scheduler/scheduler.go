// Package scheduler pages through a remote collection and imports every object in it, either inline or by
// dispatching jobs to workers.
//
// A run is resumable and may overlap with other runs for the same source and collection. Runs converge
// through two pieces of shared state: a checkpoint of the furthest page any run has started, which only
// ever advances, and a set of object ids that were already scheduled. Neither is a lock, so an object can
// occasionally be scheduled twice; importing an object is idempotent, which makes that harmless.
package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/importscheduler/internal/common/importerrors"
	"github.com/G-Research/importscheduler/internal/common/logging"
	"github.com/G-Research/importscheduler/internal/common/util"
	"github.com/G-Research/importscheduler/internal/dedup"
	"github.com/G-Research/importscheduler/internal/jobwaiter"
	"github.com/G-Research/importscheduler/internal/kvcache"
	"github.com/G-Research/importscheduler/internal/metrics"
	"github.com/G-Research/importscheduler/internal/pagecounter"
	"github.com/G-Research/importscheduler/internal/pager"
	"github.com/G-Research/importscheduler/internal/representation"
	"github.com/G-Research/importscheduler/internal/workqueue"
)

// ObjectImporter imports one object inline.
type ObjectImporter interface {
	Import(ctx context.Context, sourceID string, collection string, r representation.Representation) error
}

// FailureReporter records a failed run. failImport asks for the whole import of sourceID to be marked failed.
type FailureReporter interface {
	Track(ctx context.Context, sourceID string, errorSource string, err error, failImport bool) error
}

type Dependencies struct {
	Cache kvcache.Cache
	Pager pager.Pager
	// Submitter and Waiters are only used by parallel runs.
	Submitter workqueue.Submitter
	Waiters   jobwaiter.Store
	// Importer is only used by sequential runs.
	Importer ObjectImporter
	// Failures and Counter are optional.
	Failures FailureReporter
	Counter  *metrics.ObjectCounter
}

type Option func(*Scheduler)

// WithParallel selects between dispatching objects to workers and importing them inline.
func WithParallel(parallel bool) Option {
	return func(s *Scheduler) { s.parallel = parallel }
}

// WithWaitTimeout makes a parallel run wait up to timeout for its jobs before returning.
// By default the run returns as soon as everything is dispatched and leaves waiting to the caller.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) { s.waitTimeout = timeout }
}

// Result describes a run. Waiter is nil for sequential runs.
type Result struct {
	Waiter *jobwaiter.Waiter
	// Finished holds the ids of jobs that reported back while the run was waiting.
	Finished       []string
	Imported       int
	Scheduled      int
	SkippedPages   int
	SkippedObjects int
}

// Scheduler runs the import of one collection of one source. A Scheduler is used for a single run.
type Scheduler struct {
	source      Source
	collection  Collection
	deps        Dependencies
	convert     representation.Converter
	parallel    bool
	waitTimeout time.Duration

	counter *pagecounter.PageCounter
	tracker *dedup.Tracker
	state   State
	logger  *log.Entry

	// objects accepted for the pending bulk submission, by external id
	pending    []workqueue.Job
	pendingIDs map[string]bool
	// jobs bulk submitted so far, so later submissions continue the batch schedule
	bulkSubmitted int
}

func New(source Source, collection Collection, deps Dependencies, options ...Option) (*Scheduler, error) {
	convert, err := representation.ConverterFor(collection.Kind)
	if err != nil {
		return nil, err
	}
	if collection.Name == "" {
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{Name: "collection.Name", Value: "", Message: "must not be empty"})
	}
	if collection.Importer == "" {
		collection.Importer = collection.Name
	}
	s := &Scheduler{
		source:     source,
		collection: collection,
		deps:       deps,
		convert:    convert,
		parallel:   true,
		counter:    pagecounter.New(deps.Cache, source.ID, collection.Name),
		tracker:    dedup.New(deps.Cache, source.ID, collection.Name),
		logger:     logging.NullEntry(),
		pendingIDs: map[string]bool{},
	}
	for _, option := range options {
		option(s)
	}
	if s.parallel && (deps.Submitter == nil || deps.Waiters == nil) {
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
			Name:    "dependencies",
			Value:   collection.Name,
			Message: "a parallel run needs a submitter and a waiter store",
		})
	}
	if !s.parallel && deps.Importer == nil {
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
			Name:    "dependencies",
			Value:   collection.Name,
			Message: "a sequential run needs an object importer",
		})
	}
	return s, nil
}

// State returns the state the run is in, or ended in.
func (s *Scheduler) State() State {
	return s.state
}

// Execute runs the import. A failed run is reported to the FailureReporter and its error returned; it is
// not retried. The checkpoint and the dedup set are left as they were at the point of failure, so the run
// can simply be relaunched.
func (s *Scheduler) Execute(ctx context.Context) (*Result, error) {
	s.logger = log.WithFields(log.Fields{
		"source_id":  s.source.ID,
		"collection": s.collection.Name,
		"importer":   s.collection.Importer,
		"parallel":   s.parallel,
		"run_id":     util.NewRunId(),
	})
	s.logger.Info("starting importer")

	result, err := s.run(ctx)
	if err != nil {
		s.transition(Failed)
		if s.deps.Failures != nil {
			if trackErr := s.deps.Failures.Track(ctx, s.source.ID, s.collection.Importer, err, s.collection.AbortOnFailure); trackErr != nil {
				logging.WithStacktrace(s.logger, trackErr).Error("failed to record import failure")
			}
		} else {
			logging.WithStacktrace(s.logger, err).Error("importer failed")
		}
		return result, err
	}

	s.logger.WithFields(log.Fields{
		"imported":        result.Imported,
		"scheduled":       result.Scheduled,
		"skipped_pages":   result.SkippedPages,
		"skipped_objects": result.SkippedObjects,
	}).Info("importer finished")
	return result, nil
}

func (s *Scheduler) run(ctx context.Context) (*Result, error) {
	s.transition(Starting)
	resumePage, err := s.counter.Current(ctx)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if s.parallel {
		result.Waiter = jobwaiter.New()
	}

	s.transition(Paging)
	options := s.collection.Options.Merge(pager.Options{"page": strconv.Itoa(resumePage)})
	err = s.deps.Pager.EachPage(ctx, s.collection.Name, s.source.Ref, options, func(page pager.Page) error {
		accepted, err := s.acceptPage(ctx, page.Number, resumePage)
		if err != nil {
			return err
		}
		if !accepted {
			s.logger.WithField("page", page.Number).Debug("skipping page, another run is further ahead")
			result.SkippedPages++
			return nil
		}
		for _, raw := range page.Objects {
			if err := s.handleObject(ctx, raw, result); err != nil {
				return err
			}
		}
		// everything accepted from this page is dispatched and marked before the checkpoint can move on
		if err := s.flush(ctx, result); err != nil {
			return err
		}
		s.transition(Paging)
		return nil
	})
	if err != nil {
		return result, err
	}
	if err := s.flush(ctx, result); err != nil {
		return result, err
	}

	s.transition(Draining)
	if s.parallel && s.waitTimeout > 0 {
		finished, err := result.Waiter.Wait(ctx, s.deps.Waiters, s.waitTimeout)
		result.Finished = finished
		if err != nil {
			return result, err
		}
		if result.Waiter.JobsRemaining > 0 {
			s.logger.WithField("jobs_remaining", result.Waiter.JobsRemaining).Info("timed out waiting for jobs, they may still be running")
		}
	}

	s.transition(Finished)
	if err := s.tracker.Release(ctx, kvcache.ShorterTimeout); err != nil {
		return result, err
	}
	return result, nil
}

// acceptPage advances the checkpoint to page. A page that does not advance it was already started by some
// run and is skipped, except for the page this run resumed from while the checkpoint still points at it:
// that page may have been cut short by a crash, and its objects are filtered individually instead.
func (s *Scheduler) acceptPage(ctx context.Context, page int, resumePage int) (bool, error) {
	advanced, err := s.counter.Set(ctx, page)
	if err != nil || advanced {
		return advanced, err
	}
	if page != resumePage {
		return false, nil
	}
	current, err := s.counter.Current(ctx)
	if err != nil {
		return false, err
	}
	return current == page, nil
}

func (s *Scheduler) handleObject(ctx context.Context, raw representation.Raw, result *Result) error {
	s.transition(Filtering)
	r, err := s.convert(raw)
	if err != nil {
		return err
	}
	id := r.ExternalID()
	marked, err := s.tracker.AlreadyMarked(ctx, id)
	if err != nil {
		return err
	}
	if marked || s.pendingIDs[id] {
		result.SkippedObjects++
		return nil
	}
	if s.deps.Counter != nil {
		if err := s.deps.Counter.Increment(ctx, s.source.ID, string(r.Kind()), metrics.Fetched); err != nil {
			return err
		}
	}

	if !s.parallel {
		s.transition(InlineExecuting)
		if err := s.deps.Importer.Import(ctx, s.source.ID, s.collection.Name, r); err != nil {
			return err
		}
		result.Imported++
		return s.tracker.Mark(ctx, id)
	}

	s.transition(Dispatching)
	job, err := workqueue.NewJob(s.source.ID, s.source.Ref, s.collection.Name, result.Waiter.Key, r)
	if err != nil {
		return err
	}
	if s.collection.Batch != nil {
		s.pending = append(s.pending, job)
		s.pendingIDs[id] = true
		if len(s.pending) >= s.collection.Batch.Size {
			return s.flush(ctx, result)
		}
		return nil
	}
	result.Waiter.Add(1)
	if err := s.deps.Submitter.Submit(ctx, job); err != nil {
		return err
	}
	result.Scheduled++
	return s.tracker.Mark(ctx, id)
}

// flush submits the jobs accumulated for a batched run and marks their objects. A run flushes at least once
// per page, so the batch schedule is carried over from one flush to the next.
func (s *Scheduler) flush(ctx context.Context, result *Result) error {
	if len(s.pending) == 0 {
		return nil
	}
	s.transition(Dispatching)
	result.Waiter.Add(len(s.pending))
	options := workqueue.BulkOptions{
		InitialDelay: BulkInitialDelay,
		BatchSize:    s.collection.Batch.Size,
		BatchDelay:   s.collection.Batch.Delay,
		Offset:       s.bulkSubmitted,
	}
	if err := s.deps.Submitter.BulkSubmit(ctx, s.pending, options); err != nil {
		return err
	}
	result.Scheduled += len(s.pending)
	s.bulkSubmitted += len(s.pending)
	for id := range s.pendingIDs {
		if err := s.tracker.Mark(ctx, id); err != nil {
			return err
		}
	}
	s.pending = nil
	s.pendingIDs = map[string]bool{}
	return nil
}

func (s *Scheduler) transition(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.logger.WithField("state", state).Trace("state changed")
}
