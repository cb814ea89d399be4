package eventbus

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// memoryLog is the per-event-type bounded log.
type memoryLog struct {
	messages []Message // ascending by sequence
}

// groupCursor tracks a consumer group's position over one event type.
type groupCursor struct {
	lastAck int64 // highest acknowledged sequence
}

// MemoryBackend is the in-process transport used in development and tests.
// Each event type holds a bounded log; consumer groups keep independent
// ack-based cursors, so unacknowledged messages are redelivered on the
// next read.
type MemoryBackend struct {
	mu      sync.Mutex
	maxLen  int
	seq     int64
	logs    map[string]*memoryLog
	cursors map[string]*groupCursor       // eventType|group
	notify  map[string]chan struct{}      // eventType → closed on append
}

// NewMemoryBackend creates a memory backend trimming each log to maxLen.
func NewMemoryBackend(maxLen int) *MemoryBackend {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryBackend{
		maxLen:  maxLen,
		logs:    make(map[string]*memoryLog),
		cursors: make(map[string]*groupCursor),
		notify:  make(map[string]chan struct{}),
	}
}

// Name identifies the backend.
func (b *MemoryBackend) Name() string { return "memory" }

// Append adds an envelope to the type's log and wakes blocked readers.
func (b *MemoryBackend) Append(_ context.Context, eventType string, env *Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	log, ok := b.logs[eventType]
	if !ok {
		log = &memoryLog{}
		b.logs[eventType] = log
	}

	b.seq++
	log.messages = append(log.messages, Message{
		ID:       strconv.FormatInt(b.seq, 10),
		Envelope: env,
	})
	if len(log.messages) > b.maxLen {
		log.messages = log.messages[len(log.messages)-b.maxLen:]
	}

	if ch, ok := b.notify[eventType]; ok {
		close(ch)
		delete(b.notify, eventType)
	}
	return nil
}

// EnsureGroup creates the group cursor if absent. New groups start before
// the oldest retained message.
func (b *MemoryBackend) EnsureGroup(_ context.Context, eventType, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := eventType + "|" + group
	if _, ok := b.cursors[key]; !ok {
		b.cursors[key] = &groupCursor{}
	}
	return nil
}

// ReadBatch returns up to count messages past the group's ack cursor,
// blocking up to block when none are available.
func (b *MemoryBackend) ReadBatch(ctx context.Context, eventType, group string, count int, block time.Duration) ([]Message, error) {
	if count <= 0 {
		count = 10
	}

	msgs, wait := b.collect(eventType, group, count)
	if len(msgs) > 0 || block <= 0 {
		return msgs, nil
	}

	select {
	case <-wait:
	case <-time.After(block):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	msgs, _ = b.collect(eventType, group, count)
	return msgs, nil
}

// collect gathers available messages and, when empty, returns a channel
// that closes on the next append to the type.
func (b *MemoryBackend) collect(eventType, group string, count int) ([]Message, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cursor, ok := b.cursors[eventType+"|"+group]
	if !ok {
		cursor = &groupCursor{}
		b.cursors[eventType+"|"+group] = cursor
	}

	var out []Message
	if log, ok := b.logs[eventType]; ok {
		for _, msg := range log.messages {
			seq, _ := strconv.ParseInt(msg.ID, 10, 64)
			if seq <= cursor.lastAck {
				continue
			}
			out = append(out, msg)
			if len(out) >= count {
				break
			}
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	ch, ok := b.notify[eventType]
	if !ok {
		ch = make(chan struct{})
		b.notify[eventType] = ch
	}
	return nil, ch
}

// Ack advances the group cursor past the message.
func (b *MemoryBackend) Ack(_ context.Context, eventType, group, messageID string) error {
	seq, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cursor, ok := b.cursors[eventType+"|"+group]
	if !ok {
		cursor = &groupCursor{}
		b.cursors[eventType+"|"+group] = cursor
	}
	if seq > cursor.lastAck {
		cursor.lastAck = seq
	}
	return nil
}
