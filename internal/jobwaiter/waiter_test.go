package jobwaiter

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachStore(t *testing.T, test func(t *testing.T, store Store)) {
	t.Run("redis", func(t *testing.T) {
		server, err := miniredis.Run()
		require.NoError(t, err)
		defer server.Close()
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		defer client.Close()
		test(t, NewRedisStore(client, 0))
	})
	t.Run("memory", func(t *testing.T) {
		test(t, NewMemoryStore())
	})
}

func TestNew(t *testing.T) {
	a := New()
	b := New()
	assert.True(t, strings.HasPrefix(a.Key, KeyPrefix))
	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, 0, a.JobsRemaining)
}

func TestWait_ZeroRemainingReturnsImmediately(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		start := time.Now()
		received, err := Wait(context.Background(), store, New().Key, 0, 5*time.Second)
		require.NoError(t, err)
		assert.Empty(t, received)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestWait_ReturnsAllNotifiedIds(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		waiter := New()
		expected := []string{"job-3", "job-1", "job-2"}
		for _, id := range expected {
			waiter.Add(1)
			require.NoError(t, store.Notify(ctx, waiter.Key, id))
		}

		received, err := waiter.Wait(ctx, store, 5*time.Second)
		require.NoError(t, err)
		assert.ElementsMatch(t, expected, received)
		assert.Equal(t, 0, waiter.JobsRemaining)
		assert.ElementsMatch(t, expected, waiter.Finished)
	})
}

func TestWait_PartialResultOnTimeout(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		waiter := New()
		waiter.Add(3)
		require.NoError(t, store.Notify(ctx, waiter.Key, "a"))
		require.NoError(t, store.Notify(ctx, waiter.Key, "b"))

		received, err := waiter.Wait(ctx, store, time.Second)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, received)
		assert.Equal(t, 1, waiter.JobsRemaining)
	})
}

func TestWait_WakesWhenNotifiedDuringWait(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		key := New().Key
		go func() {
			time.Sleep(100 * time.Millisecond)
			assert.NoError(t, store.Notify(ctx, key, "late"))
		}()

		start := time.Now()
		received, err := Wait(ctx, store, key, 1, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, []string{"late"}, received)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestWait_StragglersDoNotChangeEarlierResult(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		waiter := New()
		waiter.Add(10)
		for i := 0; i < 7; i++ {
			require.NoError(t, store.Notify(ctx, waiter.Key, fmt.Sprintf("job-%d", i)))
		}

		received, err := waiter.Wait(ctx, store, time.Second)
		require.NoError(t, err)
		assert.Len(t, received, 7)
		snapshot := append([]string{}, received...)

		assert.NoError(t, store.Notify(ctx, waiter.Key, "job-8"))
		assert.Equal(t, snapshot, received)
		assert.Equal(t, 3, waiter.JobsRemaining)
	})
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := NewMemoryStore().Pop(ctx, "key", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ForgetsDrainedLists(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok, err := store.Pop(ctx, "never-notified", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.lists)

	waiter := New()
	waiter.Add(2)
	done := make(chan []string)
	go func() {
		received, _ := waiter.Wait(ctx, store, 5*time.Second)
		done <- received
	}()
	require.NoError(t, store.Notify(ctx, waiter.Key, "job-1"))
	require.NoError(t, store.Notify(ctx, waiter.Key, "job-2"))
	assert.Len(t, <-done, 2)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.lists)
}

func TestRedisStore_NotifySetsListTtl(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	store := NewRedisStore(client, time.Hour)
	require.NoError(t, store.Notify(context.Background(), "waiter", "job"))
	assert.Equal(t, time.Hour, server.TTL("waiter"))
}
