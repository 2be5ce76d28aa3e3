package jobwaiter

import (
	"context"
	"sync"
	"time"
)

type memoryList struct {
	items []string
	// closed and replaced whenever an item is pushed
	signal chan struct{}
	// number of Pop calls blocked on signal
	waiters int
}

// MemoryStore is a Store for jobs running in the same process.
type MemoryStore struct {
	mu    sync.Mutex
	lists map[string]*memoryList
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: map[string]*memoryList{}}
}

func (s *MemoryStore) list(key string) *memoryList {
	l, ok := s.lists[key]
	if !ok {
		l = &memoryList{signal: make(chan struct{})}
		s.lists[key] = l
	}
	return l
}

// release forgets the list at key once it is drained and nobody waits on it.
func (s *MemoryStore) release(key string, l *memoryList) {
	if len(l.items) == 0 && l.waiters == 0 {
		delete(s.lists, key)
	}
}

func (s *MemoryStore) Notify(_ context.Context, key string, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.list(key)
	// LPUSH followed by BLPOP pops the newest id first
	l.items = append([]string{jobID}, l.items...)
	close(l.signal)
	l.signal = make(chan struct{})
	return nil
}

func (s *MemoryStore) Pop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		l := s.list(key)
		if len(l.items) > 0 {
			jobID := l.items[0]
			l.items = l.items[1:]
			s.release(key, l)
			s.mu.Unlock()
			return jobID, true, nil
		}
		l.waiters++
		signal := l.signal
		s.mu.Unlock()

		var err error
		timedOut := false
		select {
		case <-signal:
		case <-timer.C:
			timedOut = true
		case <-ctx.Done():
			err = ctx.Err()
		}

		s.mu.Lock()
		l.waiters--
		s.release(key, l)
		s.mu.Unlock()
		if err != nil {
			return "", false, err
		}
		if timedOut {
			return "", false, nil
		}
	}
}
