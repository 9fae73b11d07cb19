package redis

import (
	"encoding/json"
	"time"
)

// Task is the envelope stored in a task queue.
type Task struct {
	TaskID    string          `json:"task_id"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}
