package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/redis/go-redis/v9"
)

// ErrNoTask is returned by PopTask when the wait elapsed with an empty queue.
var ErrNoTask = errors.New("no task")

// PushTask appends payload to the queue at key and returns the task id.
func (db *DB) PushTask(ctx context.Context, key string, payload []byte) (taskID string, err error) {
	taskID = gutils.UUID7()
	body, err := encodeTask(taskID, db.clock.Now(), payload)
	if err != nil {
		return taskID, err
	}

	if err = db.cli.RPush(ctx, key, body).Err(); err != nil {
		return taskID, errors.Wrap(err, "rpush")
	}

	return taskID, nil
}

// PopTask blocks up to wait for the oldest task at key.
func (db *DB) PopTask(ctx context.Context, key string, wait time.Duration) (*Task, error) {
	return parseTaskReply(db.cli.BLPop(ctx, wait, key).Result())
}

func encodeTask(taskID string, now time.Time, payload []byte) ([]byte, error) {
	body, err := json.Marshal(&Task{
		TaskID:    taskID,
		CreatedAt: now.UTC(),
		Payload:   payload,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal task")
	}

	return body, nil
}

// parseTaskReply decodes a BLPOP reply, which is [key, value] on success.
func parseTaskReply(vals []string, err error) (*Task, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoTask
		}
		return nil, errors.Wrap(err, "blpop")
	}
	if len(vals) != 2 {
		return nil, errors.Errorf("unexpected blpop reply of %d items", len(vals))
	}

	task := new(Task)
	if err = json.Unmarshal([]byte(vals[1]), task); err != nil {
		return nil, errors.Wrap(err, "unmarshal task")
	}

	return task, nil
}
