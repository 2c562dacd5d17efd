package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisQueueStore persists the retry queue as a single Redis key holding a
// JSON-encoded array, for deployments running more than one router process
// against shared state — the same concern that motivates store's
// SQLite/MySQL backends for WorkflowState.
type RedisQueueStore struct {
	client *redis.Client
	key    string
}

// NewRedisQueueStore wraps an existing *redis.Client. key is the Redis key
// the full queue snapshot is stored under (e.g. "workflow:message-queue").
func NewRedisQueueStore(client *redis.Client, key string) *RedisQueueStore {
	return &RedisQueueStore{client: client, key: key}
}

func (s *RedisQueueStore) Load(ctx context.Context) ([]*QueueEntry, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("router: redis get %s: %w", s.key, err)
	}
	var doc queueDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("router: decode redis queue: %w", err)
	}
	return doc.Entries, nil
}

func (s *RedisQueueStore) Save(ctx context.Context, entries []*QueueEntry) error {
	b, err := json.Marshal(queueDoc{Entries: entries})
	if err != nil {
		return fmt.Errorf("router: encode redis queue: %w", err)
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("router: redis set %s: %w", s.key, err)
	}
	return nil
}
