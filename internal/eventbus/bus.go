// Package eventbus implements domain event publish/subscribe with consumer
// groups over a pluggable transport (Redis Streams in production, an
// in-process bounded log otherwise).
//
// Delivery is at-least-once: a message is acknowledged only after its
// handler succeeds or after it has been routed to the dead letter queue.
// Ordering is strict within one (eventType, consumerGroup) pair and
// unspecified across pairs. Handlers must be idempotent or tolerate
// duplicate delivery; the bus does not enforce this.
package eventbus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trustchecker.io/trustchecker/internal/dlq"
	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
	"trustchecker.io/trustchecker/internal/pkg/logger"
	"trustchecker.io/trustchecker/internal/pkg/retry"
	"trustchecker.io/trustchecker/internal/pkg/worker"
	"trustchecker.io/trustchecker/internal/schema"
)

// Handler processes one delivered envelope. Returning an error triggers the
// retry/backoff schedule and, on exhaustion, dead-lettering.
type Handler func(ctx context.Context, env *Envelope) error

// Config controls delivery behaviour.
type Config struct {
	MaxRetries        int
	RetryBackoff      []time.Duration
	BatchSize         int
	BlockTimeout      time.Duration
	MaxStreamLength   int64
	ValidateOnPublish bool
}

// DefaultConfig returns the platform delivery defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryBackoff:      []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
		BatchSize:         10,
		BlockTimeout:      2 * time.Second,
		MaxStreamLength:   10000,
		ValidateOnPublish: true,
	}
}

// Stats holds bus counters for diagnostics.
type Stats struct {
	Backend   string `json:"backend"`
	Published int64  `json:"published"`
	Consumed  int64  `json:"consumed"`
	Failed    int64  `json:"failed"`
	DLQ       int64  `json:"dlq"`
}

// Bus is the event bus: schema-validated publish plus consumer-group
// subscriptions with retry and DLQ routing.
type Bus struct {
	cfg     Config
	backend Backend
	schemas *schema.Registry
	queue   *dlq.Queue
	pool    *worker.Pool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pollers map[string]struct{} // eventType|group

	published atomic.Int64
	consumed  atomic.Int64
	failed    atomic.Int64
	dlqCount  atomic.Int64
}

// New creates a bus. Pollers are submitted to pool and run until Stop.
func New(backend Backend, schemas *schema.Registry, queue *dlq.Queue, pool *worker.Pool, cfg Config) *Bus {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if len(cfg.RetryBackoff) == 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		cfg:     cfg,
		backend: backend,
		schemas: schemas,
		queue:   queue,
		pool:    pool,
		ctx:     ctx,
		cancel:  cancel,
		pollers: make(map[string]struct{}),
	}
}

// Publish validates the payload, wraps it into a fresh envelope, and
// appends it to the event type's log. Validation failures and backend
// errors are returned to the caller; nothing is published in either case.
func (b *Bus) Publish(ctx context.Context, eventType string, data map[string]any, evCtx Context) (*Envelope, error) {
	if b.cfg.ValidateOnPublish {
		result := b.schemas.ValidateEvent(eventType, data)
		if !result.Valid {
			return nil, apperrors.Newf(apperrors.CodeSchemaValidation,
				"schema validation failed for %q: %s", eventType, strings.Join(result.Errors, ", "))
		}
	}

	env := newEnvelope(eventType, b.schemas.GetSchemaVersion(eventType), data, evCtx)

	if err := b.backend.Append(ctx, eventType, env); err != nil {
		logger.Error("publish failed",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return nil, apperrors.Wrap(err, apperrors.CodeTransport, "publish "+eventType)
	}

	b.published.Add(1)
	return env, nil
}

// Subscribe joins a consumer group on an event type and starts a poll loop
// for the (eventType, group) pair. Repeated calls for the same pair are
// no-ops. New groups start from the beginning of the log; existing groups
// resume from their last acknowledged position.
func (b *Bus) Subscribe(ctx context.Context, eventType, group string, handler Handler) error {
	if err := b.backend.EnsureGroup(ctx, eventType, group); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransport, "subscribe "+eventType+"/"+group)
	}

	key := eventType + "|" + group
	b.mu.Lock()
	if _, running := b.pollers[key]; running {
		b.mu.Unlock()
		return nil
	}
	b.pollers[key] = struct{}{}
	b.mu.Unlock()

	return b.pool.Submit(b.ctx, func(pollCtx context.Context) {
		b.poll(pollCtx, eventType, group, handler)
	})
}

// poll is the per-(type, group) delivery loop. Batches are processed
// sequentially to preserve publish order for the group.
func (b *Bus) poll(ctx context.Context, eventType, group string, handler Handler) {
	logger.Info("poller started",
		zap.String("event_type", eventType),
		zap.String("consumer_group", group),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("poller stopped",
				zap.String("event_type", eventType),
				zap.String("consumer_group", group),
			)
			return
		default:
		}

		msgs, err := b.backend.ReadBatch(ctx, eventType, group, b.cfg.BatchSize, b.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("poller read failed",
				zap.String("event_type", eventType),
				zap.String("consumer_group", group),
				zap.Error(err),
			)
			// Back off for one block interval before the next cycle.
			select {
			case <-time.After(b.cfg.BlockTimeout):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, msg := range msgs {
			b.process(ctx, eventType, group, msg, handler)
		}
	}
}

// process delivers one message: retry per the backoff schedule, then DLQ
// plus forced acknowledgement so a poison message cannot wedge the group.
func (b *Bus) process(ctx context.Context, eventType, group string, msg Message, handler Handler) {
	if msg.Envelope == nil {
		_ = b.backend.Ack(ctx, eventType, group, msg.ID)
		return
	}
	env := msg.Envelope

	policy := retry.Policy{MaxAttempts: b.cfg.MaxRetries, Schedule: b.cfg.RetryBackoff}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return handler(ctx, env)
	}, func(attempt int, err error) {
		logger.Warn("handler attempt failed",
			zap.String("event_type", env.Type),
			zap.String("event_id", env.ID),
			zap.String("consumer_group", group),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", b.cfg.MaxRetries),
			zap.Error(err),
		)
	})

	if err == nil {
		if ackErr := b.backend.Ack(ctx, eventType, group, msg.ID); ackErr != nil {
			logger.Error("ack failed",
				zap.String("event_id", env.ID),
				zap.String("consumer_group", group),
				zap.Error(ackErr),
			)
			return
		}
		b.consumed.Add(1)
		return
	}

	if ctx.Err() != nil {
		// Shutdown mid-delivery: leave the message unacknowledged so it is
		// redelivered on restart.
		return
	}

	b.failed.Add(1)
	b.queue.Push(ctx, group, env, err, dlq.Options{
		Attempts:      b.cfg.MaxRetries,
		OriginalQueue: eventType,
	})
	b.dlqCount.Add(1)

	if ackErr := b.backend.Ack(ctx, eventType, group, msg.ID); ackErr != nil {
		logger.Error("post-dlq ack failed",
			zap.String("event_id", env.ID),
			zap.String("consumer_group", group),
			zap.Error(ackErr),
		)
	}
}

// Stop signals all poll loops to exit. In-flight handler invocations are
// not forcibly cancelled beyond context propagation.
func (b *Bus) Stop() {
	b.cancel()

	b.mu.Lock()
	b.pollers = make(map[string]struct{})
	b.mu.Unlock()
}

// GetStats returns bus counters for diagnostics.
func (b *Bus) GetStats() Stats {
	return Stats{
		Backend:   b.backend.Name(),
		Published: b.published.Load(),
		Consumed:  b.consumed.Load(),
		Failed:    b.failed.Load(),
		DLQ:       b.dlqCount.Load(),
	}
}
