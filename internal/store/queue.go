package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const saveQueueKey = "queue:save"

// ErrQueueEmpty is returned by Pop when no job arrived before the timeout.
var ErrQueueEmpty = errors.New("queue empty")

// Job asks the worker to save a URL for a user.
type Job struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	URL        string    `json:"url"`
	Tags       []string  `json:"tags,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob creates a job with a fresh id.
func NewJob(userID, rawURL string, tags []string) Job {
	return Job{
		ID:         uuid.New(),
		UserID:     userID,
		URL:        rawURL,
		Tags:       tags,
		EnqueuedAt: time.Now().UTC(),
	}
}

// RedisQueue is a FIFO of save jobs on a Redis list.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// Push appends a job to the queue.
func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, saveQueueKey, data).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop waits up to timeout for a job (Blocking).
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.rdb.BRPop(ctx, timeout, saveQueueKey).Result()
	if err == redis.Nil {
		return nil, ErrQueueEmpty
	} else if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Len reports the number of waiting jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, saveQueueKey).Result()
}
