// Package importer wires the scheduler and its collaborators into the importer application.
package importer

import (
	"context"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/avast/retry-go"
	"github.com/go-redis/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/importscheduler/internal/common/importerrors"
	"github.com/G-Research/importscheduler/internal/importer/configuration"
	"github.com/G-Research/importscheduler/internal/importstore"
	"github.com/G-Research/importscheduler/internal/jobwaiter"
	"github.com/G-Research/importscheduler/internal/kvcache"
	"github.com/G-Research/importscheduler/internal/metrics"
	"github.com/G-Research/importscheduler/internal/objectimporter"
	"github.com/G-Research/importscheduler/internal/pager"
	"github.com/G-Research/importscheduler/internal/pulsarqueue"
	"github.com/G-Research/importscheduler/internal/scheduler"
	"github.com/G-Research/importscheduler/internal/workqueue"
)

type App struct {
	config     configuration.ImporterConfig
	registerer prometheus.Registerer

	db       redis.UniversalClient
	cache    kvcache.Cache
	store    *importstore.Store
	failures *importstore.FailureService
	counter  *metrics.ObjectCounter
	waiters  *jobwaiter.RedisStore
	pager    pager.Pager
	importer *objectimporter.Importer
	queue    *workqueue.RedisQueue
	pool     *workqueue.Pool

	pulsarClient   pulsar.Client
	pulsarProducer pulsar.Producer
}

// New connects to everything the configuration names and creates any missing tables. Whatever was already
// opened is closed again when New fails.
func New(ctx context.Context, config configuration.ImporterConfig, registerer prometheus.Registerer) (app *App, err error) {
	if config.Cache.Prefix == "" {
		config.Cache.Prefix = kvcache.DefaultPrefix
	}
	db := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
	defer func() {
		if err != nil {
			closeAndLog(db, "redis client")
		}
	}()
	cache, err := kvcache.New(config.Cache.Backend, db, config.Cache.Prefix)
	if err != nil {
		return nil, err
	}
	githubPager, err := pager.NewHTTPPager(config.Pager, nil)
	if err != nil {
		return nil, err
	}
	store, err := importstore.Open(config.Database)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			closeAndLog(store, "import store")
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	app = &App{
		config:     config,
		registerer: registerer,
		db:         db,
		cache:      cache,
		store:      store,
		failures:   importstore.NewFailureService(store, registerer),
		counter:    metrics.NewObjectCounter(cache, registerer),
		waiters:    jobwaiter.NewRedisStore(db, jobwaiter.DefaultListTTL),
		pager:      githubPager,
		queue:      workqueue.NewRedisQueue(db, config.Queue.Name, clock.RealClock{}),
	}
	app.importer = objectimporter.New(store, app.counter)
	app.pool = workqueue.NewPool(config.Workers, app.queue, app.importer, app.waiters, registerer)

	if config.Queue.Backend == configuration.PulsarQueue {
		if config.Pulsar == nil {
			return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
				Name:    "pulsar",
				Value:   nil,
				Message: "required when the queue backend is pulsar",
			})
		}
		app.pulsarClient, err = pulsarqueue.NewClient(*config.Pulsar)
		if err != nil {
			return nil, err
		}
	}
	return app, nil
}

type closer interface {
	Close() error
}

func closeAndLog(c closer, name string) {
	if err := c.Close(); err != nil {
		log.WithError(err).Warnf("error closing %s", name)
	}
}

func (a *App) Close() {
	if a.pulsarProducer != nil {
		a.pulsarProducer.Close()
	}
	if a.pulsarClient != nil {
		a.pulsarClient.Close()
	}
	closeAndLog(a.store, "import store")
	closeAndLog(a.db, "redis client")
}

func (a *App) submitter() (workqueue.Submitter, error) {
	if a.config.Queue.Backend != configuration.PulsarQueue {
		return a.queue, nil
	}
	if a.pulsarProducer == nil {
		producer, err := a.pulsarClient.CreateProducer(pulsar.ProducerOptions{Topic: a.config.Pulsar.JobTopic})
		if err != nil {
			return nil, errors.Wrapf(err, "creating producer for %s", a.config.Pulsar.JobTopic)
		}
		a.pulsarProducer = producer
	}
	return pulsarqueue.NewSubmitter(a.pulsarProducer), nil
}

// Collections returns the configured collections named in names, in configuration order. No names selects
// every collection.
func (a *App) Collections(names []string) ([]configuration.CollectionConfig, error) {
	if len(names) == 0 {
		return a.config.Collections, nil
	}
	selected := make([]configuration.CollectionConfig, 0, len(names))
	for _, name := range names {
		found := false
		for _, c := range a.config.Collections {
			if c.Name == name {
				selected = append(selected, c)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.WithStack(&importerrors.ErrNotFound{Type: "collection", Value: name})
		}
	}
	return selected, nil
}

// Schedule imports the named collections of source one after the other. A failed collection does not stop
// the ones after it unless it is configured to abort the whole import. The import is only recorded as
// finished once no collection failed and no dispatched job is still outstanding.
func (a *App) Schedule(ctx context.Context, source scheduler.Source, names []string) (map[string]*scheduler.Result, error) {
	collections, err := a.Collections(names)
	if err != nil {
		return nil, err
	}
	if err := a.store.SetState(ctx, source.ID, importstore.StatusStarted, ""); err != nil {
		return nil, err
	}

	results := map[string]*scheduler.Result{}
	var result *multierror.Error
	for _, c := range collections {
		r, err := a.ScheduleCollection(ctx, source, c)
		results[c.Name] = r
		if err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "importing %s", c.Name))
			if c.AbortOnFailure {
				return results, result.ErrorOrNil()
			}
		}
	}
	if result.ErrorOrNil() != nil {
		return results, result.ErrorOrNil()
	}
	if remaining := jobsRemaining(results); remaining > 0 {
		log.WithFields(log.Fields{"source_id": source.ID, "jobs_remaining": remaining}).Info("import dispatched, jobs still running")
		return results, nil
	}
	return results, a.store.SetState(ctx, source.ID, importstore.StatusFinished, "")
}

func jobsRemaining(results map[string]*scheduler.Result) int {
	remaining := 0
	for _, r := range results {
		if r != nil && r.Waiter != nil {
			remaining += r.Waiter.JobsRemaining
		}
	}
	return remaining
}

// ScheduleCollection runs one collection, relaunching it according to the relaunch policy. Each attempt is
// a fresh run that resumes from where the previous one stopped.
func (a *App) ScheduleCollection(ctx context.Context, source scheduler.Source, c configuration.CollectionConfig) (*scheduler.Result, error) {
	deps := scheduler.Dependencies{
		Cache:    a.cache,
		Pager:    a.pager,
		Importer: a.importer,
		Waiters:  a.waiters,
		Failures: a.failures,
		Counter:  a.counter,
	}
	if a.config.Parallel {
		submitter, err := a.submitter()
		if err != nil {
			return nil, err
		}
		deps.Submitter = submitter
	}

	attempts := a.config.Relaunch.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var result *scheduler.Result
	err := retry.Do(
		func() error {
			s, err := scheduler.New(source, c.Collection(), deps,
				scheduler.WithParallel(a.config.Parallel),
				scheduler.WithWaitTimeout(a.config.WaitTimeout))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			result, err = s.Execute(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(a.config.Relaunch.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithFields(log.Fields{
				"source_id":  source.ID,
				"collection": c.Name,
				"attempt":    n + 1,
			}).WithError(err).Warn("relaunching importer")
		}),
	)
	return result, err
}

// Notify reports jobID as finished to the waiter at key.
func (a *App) Notify(ctx context.Context, key string, jobID string) error {
	return a.waiters.Notify(ctx, key, jobID)
}

// Wait waits up to timeout for remaining jobs to report to the waiter at key.
func (a *App) Wait(ctx context.Context, key string, remaining int, timeout time.Duration) ([]string, error) {
	return jobwaiter.Wait(ctx, a.waiters, key, remaining, timeout)
}
