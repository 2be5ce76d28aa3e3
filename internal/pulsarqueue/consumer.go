package pulsarqueue

import (
	"context"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/importscheduler/internal/common/logging"
	"github.com/G-Research/importscheduler/internal/workqueue"
)

const defaultReceiveTimeout = 5 * time.Second

// Handler runs one job. *workqueue.Pool is a Handler.
type Handler interface {
	Handle(ctx context.Context, job workqueue.Job) error
}

// Consumer receives jobs from a subscription and hands them to a Handler one at a time.
// Every received message is acknowledged once handled, successful or not: a failed object is recorded by
// the handler, and redelivery would notify its waiter twice. The exception is a job still running when the
// shutdown grace period runs out; it is negatively acknowledged so that another consumer runs it.
type Consumer struct {
	consumer       pulsar.Consumer
	handler        Handler
	receiveTimeout time.Duration
	gracePeriod    time.Duration
}

func NewConsumer(consumer pulsar.Consumer, handler Handler, receiveTimeout time.Duration) *Consumer {
	if receiveTimeout <= 0 {
		receiveTimeout = defaultReceiveTimeout
	}
	return &Consumer{
		consumer:       consumer,
		handler:        handler,
		receiveTimeout: receiveTimeout,
		gracePeriod:    workqueue.ShutdownGracePeriod,
	}
}

// Run handles messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down pulsar job consumer")
			return nil
		default:
		}

		receiveCtx, cancel := context.WithTimeout(ctx, c.receiveTimeout)
		msg, err := c.consumer.Receive(receiveCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && receiveCtx.Err() == nil {
				logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Warn("pulsar receive failed")
			}
			continue
		}

		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg pulsar.Message) {
	logger := log.WithField("message_id", msg.ID())
	job, err := workqueue.DecodeJob(msg.Payload())
	if err != nil {
		logging.WithStacktrace(logger, err).Error("discarding undecodable job")
		c.consumer.Ack(msg)
		return
	}
	logger = logger.WithFields(log.Fields{
		"job_id":     job.ID,
		"source_id":  job.SourceID,
		"collection": job.Collection,
	})
	held, cancel := workqueue.HeldContext(ctx, c.gracePeriod)
	defer cancel()
	if err := c.handler.Handle(held, job); err != nil {
		if held.Err() != nil {
			logger.Warn("job interrupted by shutdown, returning it for redelivery")
			c.consumer.Nack(msg)
			return
		}
		logging.WithStacktrace(logger, err).Error("import job failed")
	}
	c.consumer.Ack(msg)
}
