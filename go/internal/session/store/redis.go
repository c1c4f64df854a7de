package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "hotseat:session:"

// RedisStore persists snapshots in Redis with a TTL so abandoned sessions age
// out on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. A zero ttl means snapshots
// never expire.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func snapshotKey(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(snap.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot for session %s: %w", snap.SessionID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for session %s: %w", sessionID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for session %s: %w", sessionID, err)
	}
	return &snap, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, snapshotKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	return ids, nil
}
