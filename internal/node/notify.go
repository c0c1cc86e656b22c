package node

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes batch lifecycle events over Redis pub/sub. Delivery is
// fire and forget: a publish failure is logged and never fails the batch.
type Notifier struct {
	client  *redis.Client
	channel string
}

func NewNotifier(redisURL, channel string) (*Notifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Notifier{client: redis.NewClient(opts), channel: channel}, nil
}

type notification struct {
	BatchID string         `json:"batch_id"`
	Tenant  string         `json:"tenant"`
	Stage   string         `json:"stage"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (n *Notifier) Publish(ctx context.Context, batchID, tenant, stage, message string, data map[string]any) {
	if n == nil {
		return
	}
	payload, err := json.Marshal(notification{
		BatchID: batchID,
		Tenant:  tenant,
		Stage:   stage,
		Message: message,
		Data:    data,
	})
	if err != nil {
		slog.Warn("encode notification failed", "batch_id", batchID, "error", err)
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		slog.Warn("publish notification failed", "batch_id", batchID, "channel", n.channel, "error", err)
	}
}

func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.client.Close()
}
