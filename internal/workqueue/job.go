// Package workqueue carries import jobs from the scheduler to workers and runs them.
package workqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/importscheduler/internal/common/util"
	"github.com/G-Research/importscheduler/internal/representation"
)

// Job imports one object. Payload is the transport value of the object's representation.
type Job struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	SourceRef  string    `json:"source_ref"`
	Collection string    `json:"collection"`
	WaiterKey  string    `json:"waiter_key"`
	Payload    []byte    `json:"payload"`
	Created    time.Time `json:"created"`
}

// NewJob builds the job importing r. waiterKey may be empty if nobody waits for the job.
func NewJob(sourceID string, sourceRef string, collection string, waiterKey string, r representation.Representation) (Job, error) {
	payload, err := representation.Encode(r)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:         util.NewULID(),
		SourceID:   sourceID,
		SourceRef:  sourceRef,
		Collection: collection,
		WaiterKey:  waiterKey,
		Payload:    payload,
		Created:    time.Now().UTC(),
	}, nil
}

// BulkOptions spread a bulk submission over time. Batch i of BatchSize jobs becomes runnable
// InitialDelay + i*BatchDelay after submission. A BatchSize below 1 submits everything as one batch.
//
// Offset continues a stream of jobs submitted in several calls: it is the number of jobs already submitted
// before this call, so the first job here is job Offset of the stream and batches line up across calls.
type BulkOptions struct {
	InitialDelay time.Duration
	BatchSize    int
	BatchDelay   time.Duration
	Offset       int
}

// Submitter hands jobs to workers. Jobs may run in any order, on any worker, possibly more than once.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
	BulkSubmit(ctx context.Context, jobs []Job, options BulkOptions) error
}

// Schedule returns, for every batch of jobs, the delay after which it becomes runnable.
func (o BulkOptions) Schedule(jobs []Job) ([][]Job, []time.Duration) {
	first := 0
	var batches [][]Job
	if o.BatchSize > 0 && o.Offset > 0 {
		first = o.Offset / o.BatchSize
		// the rest of a batch an earlier call started
		if used := o.Offset % o.BatchSize; used > 0 && len(jobs) > 0 {
			head := o.BatchSize - used
			if head > len(jobs) {
				head = len(jobs)
			}
			batches = append(batches, jobs[:head])
			jobs = jobs[head:]
		}
	}
	batches = append(batches, util.Batch(jobs, o.BatchSize)...)
	delays := make([]time.Duration, len(batches))
	for i := range batches {
		delays[i] = o.InitialDelay + time.Duration(first+i)*o.BatchDelay
	}
	return batches, delays
}

// EncodeJob returns the wire form of job shared by every queue implementation.
func EncodeJob(job Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding job %s", job.ID)
	}
	return data, nil
}

func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, errors.Wrap(err, "decoding job")
	}
	return job, nil
}
