package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/G-Research/importscheduler/internal/common/logging"
	"github.com/G-Research/importscheduler/internal/jobwaiter"
	"github.com/G-Research/importscheduler/internal/representation"
)

// Processor imports the object carried by a job. It must be safe to call concurrently and more than once
// for the same object.
type Processor interface {
	Process(ctx context.Context, job Job, r representation.Representation) error
}

type Dequeuer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error)
}

type PoolConfig struct {
	Workers     int           `validate:"gte=1"`
	PollTimeout time.Duration `validate:"gte=0"`
	// RatePerSecond bounds how many jobs are processed per second across all workers; zero is unbounded.
	RatePerSecond float64 `validate:"gte=0"`
	Burst         int     `validate:"gte=0"`
}

// Pool runs jobs from a Dequeuer on a fixed number of workers. Every job that was attempted notifies its
// waiter, whether or not it succeeded, so one failing object never holds a waiter until its timeout.
type Pool struct {
	config    PoolConfig
	queue     Dequeuer
	processor Processor
	notifier  jobwaiter.Notifier
	limiter   *rate.Limiter
	duration  *prometheus.HistogramVec
}

func NewPool(config PoolConfig, queue Dequeuer, processor Processor, notifier jobwaiter.Notifier, registerer prometheus.Registerer) *Pool {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 5 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = config.Workers
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	return &Pool{
		config:    config,
		queue:     queue,
		processor: processor,
		notifier:  notifier,
		limiter:   limiter,
		duration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "importer_job_processing_seconds",
				Help:    "Time taken to process one import job",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 15),
			},
			[]string{"collection", "outcome"},
		),
	}
}

// Run processes jobs until ctx is cancelled or dequeuing fails.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.config.Workers; i++ {
		worker := i
		g.Go(func() error {
			return p.work(ctx, worker)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) work(ctx context.Context, worker int) error {
	logger := log.WithField("worker", worker)
	logger.Debug("worker started")
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}
		job, ok, err := p.queue.Dequeue(ctx, p.config.PollTimeout)
		if ok {
			// the job is off the queue now, so it is finished even if shutdown has begun meanwhile
			p.handleHeld(ctx, logger, job)
		}
		if ctx.Err() != nil {
			logger.Debug("worker stopped")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *Pool) handleHeld(ctx context.Context, logger *log.Entry, job Job) {
	held, cancel := HeldContext(ctx, ShutdownGracePeriod)
	defer cancel()
	if err := p.Handle(held, job); err != nil {
		logging.WithStacktrace(logger.WithFields(log.Fields{
			"job_id":     job.ID,
			"source_id":  job.SourceID,
			"collection": job.Collection,
		}), err).Error("import job failed")
	}
}

// ShutdownGracePeriod bounds how long a job already taken off the queue may keep running once shutdown has
// begun.
const ShutdownGracePeriod = 30 * time.Second

// HeldContext returns the context to run a job under once it has been received. It is not cancelled
// together with ctx but only grace after ctx is done, or when the returned CancelFunc is called.
func HeldContext(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	held, cancel := context.WithCancel(context.Background())
	released := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-released:
			return
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-released:
		}
	}()
	var once sync.Once
	return held, func() {
		once.Do(func() { close(released) })
		cancel()
	}
}

// Handle decodes and processes job, then notifies the job's waiter. Errors from both steps are returned
// together.
func (p *Pool) Handle(ctx context.Context, job Job) error {
	start := time.Now()
	var result *multierror.Error
	r, err := representation.Decode(job.Payload)
	if err == nil {
		err = p.processor.Process(ctx, job, r)
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		result = multierror.Append(result, errors.WithMessagef(err, "processing job %s", job.ID))
	}
	p.duration.WithLabelValues(job.Collection, outcome).Observe(time.Since(start).Seconds())

	if job.WaiterKey != "" {
		if err := p.notifier.Notify(ctx, job.WaiterKey, job.ID); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "notifying waiter of job %s", job.ID))
		}
	}
	return result.ErrorOrNil()
}
