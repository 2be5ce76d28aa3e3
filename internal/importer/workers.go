package importer

import (
	"context"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/importscheduler/internal/common/logging"
	"github.com/G-Research/importscheduler/internal/common/task"
	"github.com/G-Research/importscheduler/internal/importer/configuration"
	"github.com/G-Research/importscheduler/internal/pulsarqueue"
)

const taskShutdownTimeout = 5 * time.Second

// RunWorkers processes import jobs until ctx is cancelled.
func (a *App) RunWorkers(ctx context.Context) error {
	if a.config.Queue.Backend == configuration.PulsarQueue {
		return a.runPulsarWorkers(ctx)
	}

	taskManager := task.NewBackgroundTaskManager("importer_", a.registerer)
	taskManager.Register(a.promoteScheduledJobs, a.config.Queue.PromoteInterval, "promote_scheduled_jobs")
	defer func() {
		if timedOut := taskManager.StopAll(taskShutdownTimeout); timedOut {
			log.Warn("timed out waiting for background tasks to stop")
		}
	}()

	log.WithField("workers", a.config.Workers.Workers).Info("starting workers")
	return a.pool.Run(ctx)
}

func (a *App) promoteScheduledJobs(ctx context.Context) {
	moved, err := a.queue.Promote(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Warn("failed to promote scheduled jobs")
		}
		return
	}
	if moved > 0 {
		log.WithField("jobs", moved).Debug("promoted scheduled jobs")
	}
}

// runPulsarWorkers runs one consumer per configured worker on a shared subscription.
func (a *App) runPulsarWorkers(ctx context.Context) error {
	consumer, err := a.pulsarClient.Subscribe(pulsar.ConsumerOptions{
		Topic:            a.config.Pulsar.JobTopic,
		SubscriptionName: a.config.Pulsar.SubscriptionName,
		Type:             pulsar.Shared,
	})
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s", a.config.Pulsar.JobTopic)
	}
	defer consumer.Close()

	workers := a.config.Workers.Workers
	if workers < 1 {
		workers = 1
	}
	log.WithField("workers", workers).Info("starting pulsar workers")
	done := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			done <- pulsarqueue.NewConsumer(consumer, a.pool, a.config.Pulsar.ReceiveTimeout).Run(ctx)
		}()
	}
	var result error
	for i := 0; i < workers; i++ {
		if err := <-done; err != nil && result == nil {
			result = err
		}
	}
	return result
}
