package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trustchecker.io/trustchecker/internal/pkg/logger"
)

const (
	streamPrefix = "events:"
	groupPrefix  = "cg:"
)

// RedisBackend is the production transport: one Redis Stream per event type
// with XADD MAXLEN~ trimming and XREADGROUP/XACK consumer-group cursors.
type RedisBackend struct {
	client   *redis.Client
	maxLen   int64
	consumer string
}

// NewRedisBackend creates a Redis Streams backend trimming each stream to
// approximately maxLen entries.
func NewRedisBackend(client *redis.Client, maxLen int64) *RedisBackend {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisBackend{
		client:   client,
		maxLen:   maxLen,
		consumer: fmt.Sprintf("worker-%d", os.Getpid()),
	}
}

// Name identifies the backend.
func (b *RedisBackend) Name() string { return "redis-streams" }

func streamKey(eventType string) string { return streamPrefix + eventType }
func groupName(group string) string     { return groupPrefix + group }

// Append XADDs the envelope with approximate MAXLEN trimming.
func (b *RedisBackend) Append(ctx context.Context, eventType string, env *Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(eventType),
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{"envelope": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", eventType, err)
	}
	return nil
}

// EnsureGroup creates the consumer group from the start of the stream,
// creating the stream if needed. An existing group is not an error.
func (b *RedisBackend) EnsureGroup(ctx context.Context, eventType, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, streamKey(eventType), groupName(group), "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s/%s: %w", eventType, group, err)
	}
	return nil
}

// ReadBatch XREADGROUPs up to count new messages, blocking up to block.
// Undecodable payloads are acknowledged immediately and returned with a nil
// envelope so the consumer can skip them.
func (b *RedisBackend) ReadBatch(ctx context.Context, eventType, group string, count int, block time.Duration) ([]Message, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName(group),
		Consumer: b.consumer,
		Streams:  []string{streamKey(eventType), ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup %s/%s: %w", eventType, group, err)
	}

	var msgs []Message
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			env := decodeEnvelope(xmsg.Values)
			if env == nil {
				logger.Error("invalid message format, acknowledging and dropping",
					zap.String("event_type", eventType),
					zap.String("message_id", xmsg.ID),
				)
				_ = b.Ack(ctx, eventType, group, xmsg.ID)
				continue
			}
			msgs = append(msgs, Message{ID: xmsg.ID, Envelope: env})
		}
	}
	return msgs, nil
}

// Ack XACKs the message for the group.
func (b *RedisBackend) Ack(ctx context.Context, eventType, group, messageID string) error {
	if err := b.client.XAck(ctx, streamKey(eventType), groupName(group), messageID).Err(); err != nil {
		return fmt.Errorf("xack %s/%s: %w", eventType, group, err)
	}
	return nil
}

func decodeEnvelope(values map[string]any) *Envelope {
	raw, ok := values["envelope"].(string)
	if !ok {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil
	}
	return &env
}
