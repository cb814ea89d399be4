package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dlq:"

// RedisStore persists DLQ entries as Redis lists, one list per consumer
// group, expiring after maxAge.
type RedisStore struct {
	client *redis.Client
	maxAge time.Duration
}

// NewRedisStore creates a Redis-backed store. maxAge bounds retention
// (30 days by default).
func NewRedisStore(client *redis.Client, maxAge time.Duration) *RedisStore {
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &RedisStore{client: client, maxAge: maxAge}
}

func key(group string) string {
	return keyPrefix + group
}

// Push prepends an entry and refreshes the list's expiry.
func (s *RedisStore) Push(ctx context.Context, group string, entry *Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if err := s.client.LPush(ctx, key(group), payload).Err(); err != nil {
		return fmt.Errorf("lpush dlq entry: %w", err)
	}
	if err := s.client.Expire(ctx, key(group), s.maxAge).Err(); err != nil {
		return fmt.Errorf("expire dlq list: %w", err)
	}
	return nil
}

// List returns up to limit entries, most recent first. Corrupt payloads are
// skipped.
func (s *RedisStore) List(ctx context.Context, group string, limit int) ([]*Entry, error) {
	items, err := s.client.LRange(ctx, key(group), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange dlq list: %w", err)
	}

	entries := make([]*Entry, 0, len(items))
	for _, item := range items {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// Update rewrites the entry at index in place.
func (s *RedisStore) Update(ctx context.Context, group string, index int, entry *Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if err := s.client.LSet(ctx, key(group), int64(index), payload).Err(); err != nil {
		return fmt.Errorf("lset dlq entry: %w", err)
	}
	return nil
}

// Len returns the list length for a group.
func (s *RedisStore) Len(ctx context.Context, group string) (int64, error) {
	n, err := s.client.LLen(ctx, key(group)).Result()
	if err != nil {
		return 0, fmt.Errorf("llen dlq list: %w", err)
	}
	return n, nil
}

// Groups scans for all dlq:* keys and returns the group names.
func (s *RedisStore) Groups(ctx context.Context) ([]string, error) {
	var groups []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan dlq keys: %w", err)
		}
		for _, k := range keys {
			groups = append(groups, strings.TrimPrefix(k, keyPrefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return groups, nil
}

// Purge deletes a group's list.
func (s *RedisStore) Purge(ctx context.Context, group string) error {
	if err := s.client.Del(ctx, key(group)).Err(); err != nil {
		return fmt.Errorf("del dlq list: %w", err)
	}
	return nil
}
