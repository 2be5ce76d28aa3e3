package workqueue

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

// Moves up to ARGV[2] jobs whose score is at most ARGV[1] from the scheduled set onto the ready list.
const promoteScript = `
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', '0', ARGV[2])
for _, job in ipairs(due) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('LPUSH', KEYS[2], job)
end
return #due
`

const DefaultPromoteLimit = 1000

// RedisQueue is a durable job queue: a list of runnable jobs and a sorted set of jobs scheduled for later,
// scored by the unix time in milliseconds at which they become runnable. Scheduled jobs only become
// runnable once Promote moves them.
type RedisQueue struct {
	db    redis.UniversalClient
	name  string
	clock clock.PassiveClock
}

func NewRedisQueue(db redis.UniversalClient, name string, clock clock.PassiveClock) *RedisQueue {
	return &RedisQueue{db: db, name: name, clock: clock}
}

func (q *RedisQueue) readyKey() string {
	return "importer:queue:" + q.name + ":ready"
}

func (q *RedisQueue) scheduledKey() string {
	return "importer:queue:" + q.name + ":scheduled"
}

func (q *RedisQueue) client(ctx context.Context) redis.Cmdable {
	switch db := q.db.(type) {
	case *redis.Client:
		return db.WithContext(ctx)
	case *redis.ClusterClient:
		return db.WithContext(ctx)
	default:
		return q.db
	}
}

func (q *RedisQueue) Submit(ctx context.Context, job Job) error {
	data, err := EncodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client(ctx).LPush(q.readyKey(), data).Err(); err != nil {
		return errors.Wrapf(err, "submitting job %s", job.ID)
	}
	return nil
}

func (q *RedisQueue) BulkSubmit(ctx context.Context, jobs []Job, options BulkOptions) error {
	if len(jobs) == 0 {
		return nil
	}
	now := q.clock.Now()
	batches, delays := options.Schedule(jobs)
	pipe := q.client(ctx).Pipeline()
	for i, batch := range batches {
		score := float64(now.Add(delays[i]).UnixMilli())
		members := make([]redis.Z, 0, len(batch))
		for _, job := range batch {
			data, err := EncodeJob(job)
			if err != nil {
				pipe.Discard()
				return err
			}
			members = append(members, redis.Z{Score: score, Member: data})
		}
		pipe.ZAdd(q.scheduledKey(), members...)
	}
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "scheduling %d jobs", len(jobs))
	}
	return nil
}

// Promote makes every scheduled job that is due runnable, and returns how many were moved.
func (q *RedisQueue) Promote(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.clock.Now().UnixMilli(), 10)
	result, err := q.client(ctx).Eval(promoteScript, []string{q.scheduledKey(), q.readyKey()}, now, DefaultPromoteLimit).Result()
	if err != nil {
		return 0, errors.Wrap(err, "promoting scheduled jobs")
	}
	moved, _ := result.(int64)
	return int(moved), nil
}

// Dequeue blocks for up to timeout for a runnable job. Blocking pops are second-granular, so timeout is
// rounded up to whole seconds. It returns false if no job became runnable in time.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	seconds := time.Duration(math.Ceil(timeout.Seconds())) * time.Second
	if seconds < time.Second {
		seconds = time.Second
	}
	result, err := q.client(ctx).BRPop(seconds, q.readyKey()).Result()
	if err == redis.Nil {
		return Job{}, false, nil
	} else if err != nil {
		return Job{}, false, errors.Wrap(err, "dequeuing job")
	}
	// result is [key, value]
	job, err := DecodeJob([]byte(result[1]))
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Lengths returns the number of runnable and scheduled jobs.
func (q *RedisQueue) Lengths(ctx context.Context) (ready int64, scheduled int64, err error) {
	pipe := q.client(ctx).Pipeline()
	readyCmd := pipe.LLen(q.readyKey())
	scheduledCmd := pipe.ZCard(q.scheduledKey())
	if _, err := pipe.Exec(); err != nil {
		return 0, 0, errors.WithStack(err)
	}
	return readyCmd.Val(), scheduledCmd.Val(), nil
}
