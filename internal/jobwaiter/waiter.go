// Package jobwaiter lets one process wait until a known number of asynchronously executed jobs report that
// they have finished, or until a timeout elapses.
//
// Jobs report completion by pushing their id onto a list named by the waiter's key. The waiter pops from
// that list with a blocking pop, so waiting never polls.
package jobwaiter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// KeyPrefix namespaces the completion lists.
	KeyPrefix = "importer:job_waiter:"
	// DefaultListTTL bounds how long an abandoned completion list survives.
	DefaultListTTL = 6 * time.Hour
)

// Notifier is the side of the barrier used by workers.
type Notifier interface {
	// Notify records that jobID finished. It may be called after the waiter has given up, in which case
	// the notification is never read.
	Notify(ctx context.Context, key string, jobID string) error
}

// Store is a blocking list keyed by waiter key.
type Store interface {
	Notifier
	// Pop blocks until a job id is available on key, the timeout elapses or ctx is done.
	// It returns false, without an error, if the timeout elapsed.
	Pop(ctx context.Context, key string, timeout time.Duration) (string, bool, error)
}

// Waiter is one completion barrier. JobsRemaining is only ever incremented by the orchestrator that created
// the waiter, never by workers.
type Waiter struct {
	Key           string
	JobsRemaining int
	Finished      []string
}

func New() *Waiter {
	return &Waiter{Key: KeyPrefix + uuid.New().String()}
}

// Add records that n more jobs were dispatched against this waiter.
func (w *Waiter) Add(n int) {
	w.JobsRemaining += n
}

// Wait blocks for up to timeout for the remaining jobs. Ids received are appended to Finished and removed
// from JobsRemaining. A partial result means the other jobs may still be running; it is not an error.
func (w *Waiter) Wait(ctx context.Context, store Store, timeout time.Duration) ([]string, error) {
	received, err := Wait(ctx, store, w.Key, w.JobsRemaining, timeout)
	w.JobsRemaining -= len(received)
	w.Finished = append(w.Finished, received...)
	return received, err
}

// Wait pops from the list at key up to remaining times, or until timeout has elapsed in total, and returns
// whatever job ids were collected.
func Wait(ctx context.Context, store Store, key string, remaining int, timeout time.Duration) ([]string, error) {
	received := make([]string, 0, max(remaining, 0))
	deadline := time.Now().Add(timeout)
	for len(received) < remaining {
		left := time.Until(deadline)
		if left <= 0 {
			break
		}
		jobID, ok, err := store.Pop(ctx, key, left)
		if err != nil {
			return received, err
		}
		if !ok {
			break
		}
		received = append(received, jobID)
	}
	return received, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
