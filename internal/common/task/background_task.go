package task

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

type task struct {
	function   func(ctx context.Context)
	interval   time.Duration
	metricName string
	cancel     context.CancelFunc
}

// BackgroundTaskManager runs functions periodically until stopped.
// It is not threadsafe, it should only be accessed from a single goroutine.
type BackgroundTaskManager struct {
	tasks         []*task
	metricsPrefix string
	registerer    prometheus.Registerer
	wg            *sync.WaitGroup
}

// NewBackgroundTaskManager creates a manager whose latency histograms are registered with registerer.
// A nil registerer disables the histograms.
func NewBackgroundTaskManager(metricsPrefix string, registerer prometheus.Registerer) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		tasks:         []*task{},
		metricsPrefix: metricsPrefix,
		registerer:    registerer,
		wg:            &sync.WaitGroup{},
	}
}

// Register starts backgroundTask immediately and then once every interval.
func (m *BackgroundTaskManager) Register(backgroundTask func(ctx context.Context), interval time.Duration, metricName string) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		function:   backgroundTask,
		interval:   interval,
		metricName: metricName,
		cancel:     cancel,
	}
	m.startBackgroundTask(ctx, t)
	m.tasks = append(m.tasks, t)
}

// StopAll stops every task and waits up to timeout for them to return. Returns true if it timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	for _, t := range m.tasks {
		t.cancel()
	}
	return m.waitForShutdownCompletion(timeout)
}

func (m *BackgroundTaskManager) startBackgroundTask(ctx context.Context, t *task) {
	var observe func(time.Duration)
	if m.registerer != nil {
		histogram := promauto.With(m.registerer).NewHistogram(
			prometheus.HistogramOpts{
				Name:    m.metricsPrefix + t.metricName + "_latency_seconds",
				Help:    "Background loop " + t.metricName + " latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
			})
		observe = func(d time.Duration) { histogram.Observe(d.Seconds()) }
	} else {
		observe = func(time.Duration) {}
	}

	run := func() {
		start := time.Now()
		t.function(ctx)
		observe(time.Since(start))
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		run()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-ctx.Done():
				log.Debugf("stopped background task %s", t.metricName)
				return
			}
		}
	}()
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false
	case <-time.After(timeout):
		return true
	}
}
