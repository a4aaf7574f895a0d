package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"valutatrade/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultSnapshotKey is the hash holding one JSON-encoded rate per currency.
const DefaultSnapshotKey = "rates:snapshot"

// RateSnapshotStore implements ports.RateSnapshotStore as a Redis hash.
type RateSnapshotStore struct {
	client *goredis.Client
	key    string
}

// NewRateSnapshotStore creates a snapshot store writing to key.
func NewRateSnapshotStore(client *goredis.Client, key string) *RateSnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RateSnapshotStore{client: client, key: key}
}

// Load returns every stored rate. A missing snapshot yields no rates.
func (s *RateSnapshotStore) Load(ctx context.Context) ([]domain.Rate, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis snapshot hgetall: %w", err)
	}

	rates := make([]domain.Rate, 0, len(fields))
	for code, raw := range fields {
		var r domain.Rate
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode snapshot entry %s: %w", code, err)
		}
		rates = append(rates, r)
	}
	return rates, nil
}

// Save replaces the whole snapshot atomically.
func (s *RateSnapshotStore) Save(ctx context.Context, rates []domain.Rate) error {
	values := make(map[string]any, len(rates))
	for _, r := range rates {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode snapshot entry %s: %w", r.From, err)
		}
		values[string(r.From)] = raw
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis snapshot save: %w", err)
	}
	return nil
}
