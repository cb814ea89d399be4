// Package worker provides goroutine pool management.
//
// Naked goroutines are forbidden in this codebase; all concurrency goes
// through a pool with unified panic recovery and context propagation. The
// poller pool hosts long-lived event bus consumers, the general pool hosts
// short-lived work such as saga step invocations.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"trustchecker.io/trustchecker/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
type Pools struct {
	// General hosts short-lived tasks (saga steps, cache rebuilds).
	General *Pool

	// Pollers hosts long-lived event bus consumer loops. One worker is
	// occupied per (eventType, consumerGroup) subscription.
	Pollers *Pool
}

// Config contains worker pool sizing.
type Config struct {
	GeneralSize int
	PollerSize  int
}

// DefaultConfig returns default pool sizing.
func DefaultConfig() Config {
	return Config{
		GeneralSize: 100,
		PollerSize:  64,
	}
}

// NewPools creates the worker pool collection.
func NewPools(cfg Config) (*Pools, error) {
	panicHandler := func(p interface{}) {
		logger.Error("worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	general, err := ants.NewPool(cfg.GeneralSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		return nil, err
	}

	pollers, err := ants.NewPool(cfg.PollerSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
	)
	if err != nil {
		general.Release()
		return nil, err
	}

	return &Pools{
		General: &Pool{pool: general, name: "general"},
		Pollers: &Pool{pool: pollers, name: "pollers"},
	}, nil
}

// Submit submits a context-aware task. If the context is already cancelled
// the task is not submitted and the context error is returned.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return p.pool.Submit(func() {
		// The context may have been cancelled while the task was queued.
		select {
		case <-ctx.Done():
			logger.Debug("task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
}

// Shutdown releases all pools, waiting up to 30s for running tasks.
func (p *Pools) Shutdown() {
	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("general pool shutdown timeout", zap.Error(err))
	}
	if err := p.Pollers.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("poller pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for diagnostics.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"general": map[string]int{
			"running": p.General.pool.Running(),
			"free":    p.General.pool.Free(),
			"cap":     p.General.pool.Cap(),
		},
		"pollers": map[string]int{
			"running": p.Pollers.pool.Running(),
			"free":    p.Pollers.pool.Free(),
			"cap":     p.Pollers.pool.Cap(),
		},
	}
}
