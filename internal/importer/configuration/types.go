package configuration

import (
	"time"

	"github.com/G-Research/importscheduler/internal/common/config"
	"github.com/G-Research/importscheduler/internal/importstore"
	"github.com/G-Research/importscheduler/internal/kvcache"
	"github.com/G-Research/importscheduler/internal/pager"
	"github.com/G-Research/importscheduler/internal/representation"
	"github.com/G-Research/importscheduler/internal/scheduler"
	"github.com/G-Research/importscheduler/internal/workqueue"
)

type QueueBackend string

const (
	RedisQueue  QueueBackend = "redis"
	PulsarQueue QueueBackend = "pulsar"
)

type ImporterConfig struct {
	MetricsPort uint16
	Redis       config.RedisConfig
	Cache       CacheConfig
	Queue       QueueConfig
	// Pulsar is only required when Queue.Backend is pulsar.
	Pulsar   *config.PulsarConfig
	Workers  workqueue.PoolConfig
	Pager    pager.HTTPConfig
	Database importstore.Config
	// Parallel dispatches objects to workers instead of importing them inline.
	Parallel bool
	// WaitTimeout, if positive, makes each parallel run wait this long for its jobs.
	WaitTimeout time.Duration `validate:"gte=0"`
	Relaunch    RelaunchConfig
	Collections []CollectionConfig `validate:"required,min=1,dive"`
}

type CacheConfig struct {
	Backend kvcache.Backend `validate:"oneof=redis memory"`
	Prefix  string
}

type QueueConfig struct {
	Backend QueueBackend `validate:"oneof=redis pulsar"`
	Name    string       `validate:"required"`
	// How often scheduled jobs are checked for being due
	PromoteInterval time.Duration `validate:"gt=0"`
}

// RelaunchConfig is the retry policy applied to a failed collection run.
type RelaunchConfig struct {
	// Attempts includes the first run; 1 disables relaunching.
	Attempts uint          `validate:"gte=1"`
	Delay    time.Duration `validate:"gte=0"`
}

type CollectionConfig struct {
	// Name is the collection path on the remote API, e.g. "issues" or "issues/comments".
	Name           string              `validate:"required"`
	Importer       string              `validate:"required"`
	Kind           representation.Kind `validate:"oneof=issue pull_request milestone note"`
	AbortOnFailure bool
	Options        map[string]string
	Batch          *scheduler.BatchConfig
}

func (c CollectionConfig) Collection() scheduler.Collection {
	return scheduler.Collection{
		Name:           c.Name,
		Importer:       c.Importer,
		Kind:           c.Kind,
		Options:        c.Options,
		AbortOnFailure: c.AbortOnFailure,
		Batch:          c.Batch,
	}
}
