package eventbus

import (
	"context"
	"time"
)

// Message is one delivered entry from a stream: the backend's message ID
// plus the decoded envelope. Envelope is nil when the stored payload could
// not be decoded; such messages are acknowledged and dropped.
type Message struct {
	ID       string
	Envelope *Envelope
}

// Backend is the transport behind the bus: an append-only log per event
// type with named consumer-group cursors. Implementations must guarantee
// per-(type, group) ordering and ack-based cursor advancement so that a
// message is redelivered until acknowledged.
type Backend interface {
	// Append adds an envelope to the event type's log, trimming the oldest
	// entries once the configured max length is exceeded (approximate
	// retention).
	Append(ctx context.Context, eventType string, env *Envelope) error

	// EnsureGroup idempotently creates a consumer group cursor. New groups
	// start from the beginning of the log.
	EnsureGroup(ctx context.Context, eventType, group string) error

	// ReadBatch blocks up to block for at most count unacknowledged
	// messages after the group's cursor. An empty slice means the wait
	// timed out.
	ReadBatch(ctx context.Context, eventType, group string, count int, block time.Duration) ([]Message, error)

	// Ack marks a message consumed for the group; it is never redelivered
	// to that group afterwards.
	Ack(ctx context.Context, eventType, group, messageID string) error

	// Name identifies the backend in stats output.
	Name() string
}
