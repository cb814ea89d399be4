// Package dlq implements the dead letter queue: durable holding area for
// messages whose processing permanently failed after exhausting retries.
//
// Entries are keyed by consumer group. The primary store is a Redis list
// with a 30-day expiry; on backend failure pushes fall back to a bounded
// in-memory store so a failed message is never silently dropped.
package dlq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trustchecker.io/trustchecker/internal/pkg/logger"
)

// Entry is one dead-lettered message.
type Entry struct {
	ID            string          `json:"id"`
	ConsumerGroup string          `json:"consumerGroup"`
	Event         json.RawMessage `json:"event"`
	Error         string          `json:"error"`
	Stack         string          `json:"stack,omitempty"`
	Attempts      int             `json:"attempts"`
	OriginalQueue string          `json:"originalQueue,omitempty"`
	PushedAt      time.Time       `json:"pushedAt"`
	Replayed      bool            `json:"replayed"`
	ReplayedAt    *time.Time      `json:"replayedAt,omitempty"`
}

// Options carries optional push metadata.
type Options struct {
	Attempts      int
	OriginalQueue string
}

// Handler reprocesses a dead-lettered event during replay.
type Handler func(ctx context.Context, event json.RawMessage) error

// ReplayResult is the outcome of replaying a single entry.
type ReplayResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ReplaySummary is the outcome of replaying every pending entry of a group.
type ReplaySummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Stats holds queue counters for diagnostics.
type Stats struct {
	Total    int64            `json:"total"`
	Replayed int64            `json:"replayed"`
	ByGroup  map[string]int64 `json:"byGroup"`
}

// Store is the persistence backend for DLQ entries. Lists are
// most-recent-first.
type Store interface {
	Push(ctx context.Context, group string, entry *Entry) error
	List(ctx context.Context, group string, limit int) ([]*Entry, error)
	Update(ctx context.Context, group string, index int, entry *Entry) error
	Len(ctx context.Context, group string) (int64, error)
	Groups(ctx context.Context) ([]string, error)
	Purge(ctx context.Context, group string) error
}

// inspectWindow bounds how many entries replay operations scan.
const inspectWindow = 500

// Queue is the dead letter queue facade over a Store with an in-memory
// fallback.
type Queue struct {
	store    Store
	fallback *MemoryStore

	mu    sync.Mutex
	stats Stats
}

// NewQueue creates a queue over the given store. When the store is already
// an in-memory store no separate fallback is kept.
func NewQueue(store Store) *Queue {
	q := &Queue{
		store: store,
		stats: Stats{ByGroup: make(map[string]int64)},
	}
	if mem, ok := store.(*MemoryStore); ok {
		q.fallback = mem
	} else {
		q.fallback = NewMemoryStore(defaultMemoryCap)
	}
	return q
}

// Push records a permanently failed event. It never fails: if the primary
// store is unreachable the entry lands in the in-memory fallback. Returns
// the entry ID.
func (q *Queue) Push(ctx context.Context, group string, event any, cause error, opts Options) string {
	raw, err := json.Marshal(event)
	if err != nil {
		raw = []byte("null")
	}

	errMsg := "unknown error"
	if cause != nil {
		errMsg = cause.Error()
	}

	entry := &Entry{
		ID:            "dlq-" + uuid.NewString(),
		ConsumerGroup: group,
		Event:         raw,
		Error:         errMsg,
		Attempts:      opts.Attempts,
		OriginalQueue: opts.OriginalQueue,
		PushedAt:      time.Now().UTC(),
	}

	if err := q.store.Push(ctx, group, entry); err != nil {
		logger.Error("dlq push failed, using memory fallback",
			zap.String("consumer_group", group),
			zap.Error(err),
		)
		_ = q.fallback.Push(ctx, group, entry)
	}

	logger.Warn("message dead-lettered",
		zap.String("consumer_group", group),
		zap.String("entry_id", entry.ID),
		zap.Int("attempts", entry.Attempts),
		zap.String("error", entry.Error),
	)

	q.mu.Lock()
	q.stats.Total++
	q.stats.ByGroup[group]++
	q.mu.Unlock()

	return entry.ID
}

// Inspect returns up to limit entries for a group, most recent first.
func (q *Queue) Inspect(ctx context.Context, group string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := q.store.List(ctx, group, limit)
	if err != nil {
		logger.Warn("dlq inspect fell back to memory store",
			zap.String("consumer_group", group),
			zap.Error(err),
		)
		return q.fallback.List(ctx, group, limit)
	}
	return entries, nil
}

// Replay invokes the handler once for a specific entry. On success the
// entry is marked replayed in place; on failure the entry is left intact
// for a future attempt.
func (q *Queue) Replay(ctx context.Context, group, entryID string, handler Handler) ReplayResult {
	entries, err := q.Inspect(ctx, group, inspectWindow)
	if err != nil {
		return ReplayResult{Success: false, Error: err.Error()}
	}

	idx := -1
	for i, e := range entries {
		if e.ID == entryID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ReplayResult{Success: false, Error: "entry not found"}
	}

	entry := entries[idx]
	if err := handler(ctx, entry.Event); err != nil {
		return ReplayResult{Success: false, Error: err.Error()}
	}

	now := time.Now().UTC()
	entry.Replayed = true
	entry.ReplayedAt = &now

	// Best effort: the replay already succeeded, a stale flag only means a
	// future ReplayAll re-delivers to an idempotent handler.
	if err := q.store.Update(ctx, group, idx, entry); err != nil {
		logger.Warn("dlq replay flag update failed",
			zap.String("consumer_group", group),
			zap.String("entry_id", entryID),
			zap.Error(err),
		)
	}

	q.mu.Lock()
	q.stats.Replayed++
	q.mu.Unlock()

	return ReplayResult{Success: true}
}

// ReplayAll replays every pending (not yet replayed) entry of a group.
func (q *Queue) ReplayAll(ctx context.Context, group string, handler Handler) ReplaySummary {
	entries, err := q.Inspect(ctx, group, inspectWindow)
	if err != nil {
		return ReplaySummary{}
	}

	summary := ReplaySummary{Total: len(entries)}
	for i, entry := range entries {
		if entry.Replayed {
			continue
		}
		if err := handler(ctx, entry.Event); err != nil {
			summary.Failed++
			continue
		}
		now := time.Now().UTC()
		entry.Replayed = true
		entry.ReplayedAt = &now
		if err := q.store.Update(ctx, group, i, entry); err != nil {
			logger.Warn("dlq replay flag update failed",
				zap.String("consumer_group", group),
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
		}
		summary.Success++
	}

	q.mu.Lock()
	q.stats.Replayed += int64(summary.Success)
	q.mu.Unlock()

	return summary
}

// Depth returns pending entry counts per consumer group, including
// fallback-only entries.
func (q *Queue) Depth(ctx context.Context) map[string]int64 {
	result := make(map[string]int64)

	groups, err := q.store.Groups(ctx)
	if err != nil {
		logger.Warn("dlq depth scan failed", zap.Error(err))
	} else {
		for _, group := range groups {
			n, err := q.store.Len(ctx, group)
			if err != nil {
				continue
			}
			result[group] = n
		}
	}

	if q.fallback != q.store {
		fallbackGroups, _ := q.fallback.Groups(ctx)
		for _, group := range fallbackGroups {
			n, _ := q.fallback.Len(ctx, group)
			result[group] += n
		}
	}

	return result
}

// Purge irreversibly clears a consumer group's entries.
func (q *Queue) Purge(ctx context.Context, group string) error {
	err := q.store.Purge(ctx, group)
	if q.fallback != q.store {
		_ = q.fallback.Purge(ctx, group)
	}

	q.mu.Lock()
	delete(q.stats.ByGroup, group)
	q.mu.Unlock()

	return err
}

// GetStats returns queue counters for diagnostics.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	byGroup := make(map[string]int64, len(q.stats.ByGroup))
	for k, v := range q.stats.ByGroup {
		byGroup[k] = v
	}
	return Stats{Total: q.stats.Total, Replayed: q.stats.Replayed, ByGroup: byGroup}
}
