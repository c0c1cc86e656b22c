package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Intake pulls benchmark requests off a Redis list. Producers LPUSH JSON
// RunRequest payloads; the node consumes with a blocking BRPOP so multiple
// nodes can share one queue.
type Intake struct {
	client *redis.Client
	queue  string
}

func NewIntake(redisURL, queue string) (*Intake, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Intake{client: redis.NewClient(opts), queue: queue}, nil
}

func (q *Intake) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Next blocks until a request arrives or ctx is canceled. Malformed payloads
// are logged and skipped rather than wedging the queue.
func (q *Intake) Next(ctx context.Context) (RunRequest, error) {
	for {
		values, err := q.client.BRPop(ctx, 5*time.Second, q.queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return RunRequest{}, ctx.Err()
			}
			return RunRequest{}, fmt.Errorf("pop intake queue: %w", err)
		}
		if len(values) < 2 {
			continue
		}
		var req RunRequest
		if err := json.Unmarshal([]byte(values[1]), &req); err != nil {
			slog.Warn("discarding malformed intake payload", "queue", q.queue, "error", err)
			continue
		}
		return req, nil
	}
}

// Enqueue pushes a request onto the intake queue. Used by the CLI and tests.
func (q *Intake) Enqueue(ctx context.Context, req RunRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode intake payload: %w", err)
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("push intake queue: %w", err)
	}
	return nil
}

func (q *Intake) Close() error {
	return q.client.Close()
}
