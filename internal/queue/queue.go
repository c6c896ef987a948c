package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const wakeupList = "walter:jobs:wakeup"

// Queue is a Redis-backed wake-up channel for new jobs. It exists only to
// shorten the worker's idle-poll latency: the API pushes a job ID when a job
// is created and an idle worker blocks on the list instead of sleeping a full
// poll interval. Postgres remains the queue of record — the conditional claim
// there is what guarantees exactly-once execution, so a lost or duplicated
// nudge is harmless.
type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Notify pushes a job ID onto the wake-up list after the job row is created.
func (q *Queue) Notify(ctx context.Context, jobID uuid.UUID) error {
	if err := q.client.RPush(ctx, wakeupList, jobID.String()).Err(); err != nil {
		return fmt.Errorf("failed to push wakeup: %w", err)
	}
	return nil
}

// Wait blocks until a nudge arrives or the timeout elapses. Returns false
// when the timeout expired with no nudge; the caller polls Postgres either way.
func (q *Queue) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	result, err := q.client.BLPop(ctx, timeout, wakeupList).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to wait for wakeup: %w", err)
	}
	return len(result) == 2, nil
}
