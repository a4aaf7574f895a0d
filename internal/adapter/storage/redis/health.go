package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// HealthCheck pings Redis and checks that the rate snapshot key still holds a
// hash, since anything else would make the next snapshot restore fail.
type HealthCheck struct {
	client      *goredis.Client
	snapshotKey string
}

func NewHealthCheck(client *goredis.Client, snapshotKey string) *HealthCheck {
	if snapshotKey == "" {
		snapshotKey = DefaultSnapshotKey
	}
	return &HealthCheck{client: client, snapshotKey: snapshotKey}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	kind, err := h.client.Type(ctx, h.snapshotKey).Result()
	if err != nil {
		return fmt.Errorf("redis type %s: %w", h.snapshotKey, err)
	}
	if kind != "none" && kind != "hash" {
		return fmt.Errorf("rate snapshot key %s holds a %s, want hash", h.snapshotKey, kind)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "redis"
}
