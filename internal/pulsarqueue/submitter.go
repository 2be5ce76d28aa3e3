package pulsarqueue

import (
	"context"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/importscheduler/internal/workqueue"
)

const collectionProperty = "collection"

// Submitter publishes jobs to a Pulsar topic. Messages are keyed by source id.
type Submitter struct {
	producer pulsar.Producer
}

func NewSubmitter(producer pulsar.Producer) *Submitter {
	return &Submitter{producer: producer}
}

func message(job workqueue.Job) (*pulsar.ProducerMessage, error) {
	payload, err := workqueue.EncodeJob(job)
	if err != nil {
		return nil, err
	}
	return &pulsar.ProducerMessage{
		Payload:    payload,
		Key:        job.SourceID,
		Properties: map[string]string{collectionProperty: job.Collection},
	}, nil
}

func (s *Submitter) Submit(ctx context.Context, job workqueue.Job) error {
	msg, err := message(job)
	if err != nil {
		return err
	}
	if _, err := s.producer.Send(ctx, msg); err != nil {
		return errors.Wrapf(err, "publishing job %s", job.ID)
	}
	return nil
}

// BulkSubmit publishes every job asynchronously with its batch's delay and waits for all sends to complete.
func (s *Submitter) BulkSubmit(ctx context.Context, jobs []workqueue.Job, options workqueue.BulkOptions) error {
	batches, delays := options.Schedule(jobs)

	var mu sync.Mutex
	var result *multierror.Error
	wg := sync.WaitGroup{}
	for i, batch := range batches {
		for _, job := range batch {
			msg, err := message(job)
			if err != nil {
				return err
			}
			msg.DeliverAfter = delays[i]
			jobID := job.ID
			wg.Add(1)
			s.producer.SendAsync(ctx, msg, func(_ pulsar.MessageID, _ *pulsar.ProducerMessage, err error) {
				defer wg.Done()
				if err != nil {
					mu.Lock()
					result = multierror.Append(result, errors.Wrapf(err, "publishing job %s", jobID))
					mu.Unlock()
				}
			})
		}
	}
	if err := s.producer.Flush(); err != nil {
		mu.Lock()
		result = multierror.Append(result, errors.WithStack(err))
		mu.Unlock()
	}
	wg.Wait()
	return result.ErrorOrNil()
}
