// Package handlers implements the operational diagnostics API: event bus
// and DLQ introspection, domain registry queries, saga inspection, and
// materialized view reads. The orchestration core itself has no business
// HTTP surface; these endpoints exist for operators and read-side
// consumers.
package handlers

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"trustchecker.io/trustchecker/internal/domain"
	"trustchecker.io/trustchecker/internal/dlq"
	"trustchecker.io/trustchecker/internal/eventbus"
	"trustchecker.io/trustchecker/internal/pkg/worker"
	"trustchecker.io/trustchecker/internal/query"
	"trustchecker.io/trustchecker/internal/saga"
	"trustchecker.io/trustchecker/internal/schema"
)

// Server holds handler dependencies.
type Server struct {
	bus     *eventbus.Bus
	queue   *dlq.Queue
	schemas *schema.Registry
	domains *domain.Registry
	sagas   *saga.Orchestrator
	views   *query.Store
	pools   *worker.Pools

	redis *redis.Client // nil when running on in-memory backends
	pgdb  *pgxpool.Pool // nil when no read database is configured
}

// Deps carries everything the diagnostics server exposes.
type Deps struct {
	Bus     *eventbus.Bus
	Queue   *dlq.Queue
	Schemas *schema.Registry
	Domains *domain.Registry
	Sagas   *saga.Orchestrator
	Views   *query.Store
	Pools   *worker.Pools
	Redis   *redis.Client
	DB      *pgxpool.Pool
}

// NewServer creates the diagnostics API server.
func NewServer(deps Deps) *Server {
	return &Server{
		bus:     deps.Bus,
		queue:   deps.Queue,
		schemas: deps.Schemas,
		domains: deps.Domains,
		sagas:   deps.Sagas,
		views:   deps.Views,
		pools:   deps.Pools,
		redis:   deps.Redis,
		pgdb:    deps.DB,
	}
}
