package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/disaster-alert/library/db/redis"

	"github.com/Laisky/errors/v2"
)

// Queue hands jobs from request handlers to dispatcher workers.
type Queue interface {
	Push(ctx context.Context, job *Job) error
	// Pop blocks until a job is available or ctx is done.
	Pop(ctx context.Context) (*Job, error)
}

// MemoryQueue is an in-process Queue. Jobs are lost on restart.
type MemoryQueue struct {
	jobs chan *Job
}

// NewMemoryQueue returns a queue holding at most size pending jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}

	return &MemoryQueue{jobs: make(chan *Job, size)}
}

// Push enqueues job, failing when the buffer is full.
func (q *MemoryQueue) Push(ctx context.Context, job *Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "push notify job")
	default:
		return errors.New("notify queue is full")
	}
}

// Pop waits for the next job.
func (q *MemoryQueue) Pop(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type taskStore interface {
	PushTask(ctx context.Context, key string, payload []byte) (string, error)
	PopTask(ctx context.Context, key string, wait time.Duration) (*redis.Task, error)
}

// RedisQueue keeps jobs in a Redis list so they survive restarts and
// can be shared by several replicas.
type RedisQueue struct {
	store taskStore
	key   string
	wait  time.Duration
}

// NewRedisQueue returns a queue on the notification task list.
func NewRedisQueue(store taskStore) *RedisQueue {
	return &RedisQueue{
		store: store,
		key:   redis.KeyTaskNotify,
		wait:  5 * time.Second,
	}
}

// Push appends job to the list.
func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "marshal notify job")
	}

	if _, err = q.store.PushTask(ctx, q.key, payload); err != nil {
		return errors.Wrap(err, "push notify job")
	}

	return nil
}

// Pop polls the list until a job arrives or ctx is done.
func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task, err := q.store.PopTask(ctx, q.key, q.wait)
		if errors.Is(err, redis.ErrNoTask) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "pop notify job")
		}

		job := new(Job)
		if err = json.Unmarshal(task.Payload, job); err != nil {
			return nil, errors.Wrapf(err, "decode notify task %s", task.TaskID)
		}

		return job, nil
	}
}
