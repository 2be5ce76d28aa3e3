package workqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/importscheduler/internal/jobwaiter"
	"github.com/G-Research/importscheduler/internal/representation"
)

type channelQueue chan Job

func (q channelQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	select {
	case job := <-q:
		return job, true, nil
	case <-time.After(timeout):
		return Job{}, false, nil
	case <-ctx.Done():
		return Job{}, false, ctx.Err()
	}
}

type recordingProcessor struct {
	mu        sync.Mutex
	processed []string
	fail      map[string]bool
}

func (p *recordingProcessor) Process(ctx context.Context, job Job, r representation.Representation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.fail[r.ExternalID()] {
		return errors.Errorf("cannot import %s", r.ExternalID())
	}
	p.processed = append(p.processed, r.ExternalID())
	return nil
}

// shutdownQueue hands out job once, and shutdown begins just as it does, the way a blocking pop can
// complete after a stop signal.
type shutdownQueue struct {
	job    Job
	cancel context.CancelFunc
	served bool
}

func (q *shutdownQueue) Dequeue(ctx context.Context, _ time.Duration) (Job, bool, error) {
	if !q.served {
		q.served = true
		q.cancel()
		return q.job, true, nil
	}
	<-ctx.Done()
	return Job{}, false, ctx.Err()
}

func issueJob(t *testing.T, iid int64, waiterKey string) Job {
	job, err := NewJob("1", "octo/hello", "issues", waiterKey, &representation.Issue{IID: iid})
	require.NoError(t, err)
	return job
}

func TestPool_ProcessesJobsAndNotifiesWaiter(t *testing.T) {
	store := jobwaiter.NewMemoryStore()
	waiter := jobwaiter.New()
	queue := make(channelQueue, 10)
	processor := &recordingProcessor{fail: map[string]bool{"3": true}}
	pool := NewPool(PoolConfig{Workers: 3, PollTimeout: 10 * time.Millisecond}, queue, processor, store, prometheus.NewRegistry())

	for i := int64(1); i <= 4; i++ {
		queue <- issueJob(t, i, waiter.Key)
		waiter.Add(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- pool.Run(ctx) }()

	finished, err := waiter.Wait(context.Background(), store, 5*time.Second)
	require.NoError(t, err)
	cancel()
	require.NoError(t, <-done)

	// the failed job notifies too
	assert.Len(t, finished, 4)
	assert.Equal(t, 0, waiter.JobsRemaining)
	assert.ElementsMatch(t, []string{"1", "2", "4"}, processor.processed)
}

func TestPool_HandleReturnsProcessingError(t *testing.T) {
	store := jobwaiter.NewMemoryStore()
	processor := &recordingProcessor{fail: map[string]bool{"7": true}}
	pool := NewPool(PoolConfig{Workers: 1}, make(channelQueue), processor, store, nil)

	job := issueJob(t, 7, "importer:job_waiter:test")
	err := pool.Handle(context.Background(), job)
	assert.Error(t, err)

	finished, err := jobwaiter.Wait(context.Background(), store, job.WaiterKey, 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, finished)
}

func TestPool_HandleUndecodablePayload(t *testing.T) {
	processor := &recordingProcessor{}
	pool := NewPool(PoolConfig{Workers: 1}, make(channelQueue), processor, jobwaiter.NewMemoryStore(), nil)

	err := pool.Handle(context.Background(), Job{ID: "x", Payload: []byte(`{"kind":"wiki"}`)})
	assert.Error(t, err)
	assert.Empty(t, processor.processed)
}

func TestPool_RateLimit(t *testing.T) {
	store := jobwaiter.NewMemoryStore()
	queue := make(channelQueue, 10)
	processor := &recordingProcessor{}
	pool := NewPool(PoolConfig{Workers: 2, PollTimeout: 10 * time.Millisecond, RatePerSecond: 20, Burst: 1}, queue, processor, store, nil)
	for i := int64(1); i <= 5; i++ {
		queue <- issueJob(t, i, "importer:job_waiter:rate")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pool.Run(ctx) }()

	begin := time.Now()
	finished, err := jobwaiter.Wait(context.Background(), store, "importer:job_waiter:rate", 5, 5*time.Second)
	require.NoError(t, err)
	assert.Len(t, finished, 5)
	// one token up front, then one every 50ms
	assert.GreaterOrEqual(t, time.Since(begin), 150*time.Millisecond)
}

func TestPool_FinishesJobDequeuedDuringShutdown(t *testing.T) {
	store := jobwaiter.NewMemoryStore()
	processor := &recordingProcessor{}
	job := issueJob(t, 9, "importer:job_waiter:shutdown")
	ctx, cancel := context.WithCancel(context.Background())
	queue := &shutdownQueue{job: job, cancel: cancel}
	pool := NewPool(PoolConfig{Workers: 1}, queue, processor, store, nil)

	require.NoError(t, pool.Run(ctx))

	assert.Equal(t, []string{"9"}, processor.processed)
	finished, err := jobwaiter.Wait(context.Background(), store, job.WaiterKey, 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, finished)
}

func TestHeldContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	held, release := HeldContext(ctx, 20*time.Millisecond)
	defer release()

	cancel()
	assert.NoError(t, held.Err())
	assert.Eventually(t, func() bool { return held.Err() != nil }, time.Second, 5*time.Millisecond)

	held, release = HeldContext(context.Background(), time.Hour)
	release()
	assert.Error(t, held.Err())
}
