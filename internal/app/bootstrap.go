// Package app is the composition root: it wires the schema registry, DLQ,
// event bus, domain registry, saga orchestrator, and query store into one
// explicitly constructed application. Nothing here is a singleton; tests
// build isolated instances the same way.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trustchecker.io/trustchecker/internal/api/handlers"
	"trustchecker.io/trustchecker/internal/config"
	"trustchecker.io/trustchecker/internal/dlq"
	"trustchecker.io/trustchecker/internal/domain"
	"trustchecker.io/trustchecker/internal/eventbus"
	"trustchecker.io/trustchecker/internal/pkg/logger"
	"trustchecker.io/trustchecker/internal/pkg/worker"
	"trustchecker.io/trustchecker/internal/query"
	"trustchecker.io/trustchecker/internal/saga"
	"trustchecker.io/trustchecker/internal/schema"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	Bus     *eventbus.Bus
	Queue   *dlq.Queue
	Schemas *schema.Registry
	Domains *domain.Registry
	Sagas   *saga.Orchestrator
	Views   *query.Store
	Pools   *worker.Pools

	redis *redis.Client
	pgdb  *pgxpool.Pool
}

// Bootstrap initializes all dependencies using explicit manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	pools, err := worker.NewPools(worker.Config{
		GeneralSize: cfg.Worker.GeneralPoolSize,
		PollerSize:  cfg.Worker.PollerPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			pools.Shutdown()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Info("Redis not configured, using in-memory backends")
	}

	var pgdb *pgxpool.Pool
	if cfg.Database.URL != "" || cfg.Database.Host != "" {
		poolCfg, perr := pgxpool.ParseConfig(cfg.Database.DSN())
		if perr == nil {
			poolCfg.MaxConns = cfg.Database.MaxConns
			poolCfg.MinConns = cfg.Database.MinConns
			pgdb, perr = pgxpool.NewWithConfig(ctx, poolCfg)
		}
		if perr != nil {
			// View builders degrade to zeroed output without a database.
			logger.Warn("read database unavailable, views serve zeroed data", zap.Error(perr))
			pgdb = nil
		}
	}

	schemas := schema.NewRegistry()

	var dlqStore dlq.Store
	if redisClient != nil {
		dlqStore = dlq.NewRedisStore(redisClient, cfg.DLQ.MaxAge)
	} else {
		dlqStore = dlq.NewMemoryStore(cfg.DLQ.MemoryCap)
	}
	queue := dlq.NewQueue(dlqStore)

	var backend eventbus.Backend
	if redisClient != nil {
		backend = eventbus.NewRedisBackend(redisClient, cfg.Bus.MaxStreamLength)
	} else {
		backend = eventbus.NewMemoryBackend(int(cfg.Bus.MaxStreamLength))
	}
	bus := eventbus.New(backend, schemas, queue, pools.Pollers, eventbus.Config{
		MaxRetries:        cfg.Bus.MaxRetries,
		RetryBackoff:      cfg.Bus.RetryBackoff,
		BatchSize:         cfg.Bus.BatchSize,
		BlockTimeout:      cfg.Bus.BlockTimeout,
		MaxStreamLength:   cfg.Bus.MaxStreamLength,
		ValidateOnPublish: cfg.Bus.ValidateOnPublish,
	})

	domains := domain.Default()
	sagas := saga.New(pools.General, cfg.Saga.ArchiveSize)

	var cache query.Cache
	if redisClient != nil {
		cache = query.NewRedisCache(redisClient)
	} else {
		cache = query.NewMemoryCache()
	}
	views := query.NewStore(cache, query.NewBuilders(pgdb))

	if err := wireSubscriptions(ctx, bus, views, sagas); err != nil {
		pools.Shutdown()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if pgdb != nil {
			pgdb.Close()
		}
		return nil, fmt.Errorf("wire subscriptions: %w", err)
	}

	server := handlers.NewServer(handlers.Deps{
		Bus:     bus,
		Queue:   queue,
		Schemas: schemas,
		Domains: domains,
		Sagas:   sagas,
		Views:   views,
		Pools:   pools,
		Redis:   redisClient,
		DB:      pgdb,
	})

	return &Application{
		Config:  cfg,
		Router:  newRouter(server),
		Bus:     bus,
		Queue:   queue,
		Schemas: schemas,
		Domains: domains,
		Sagas:   sagas,
		Views:   views,
		Pools:   pools,
		redis:   redisClient,
		pgdb:    pgdb,
	}, nil
}

// sagaTriggers maps trigger events to the saga each one starts.
var sagaTriggers = map[string]string{
	"scan.created":        saga.KeyScanVerification,
	"shipment.delivered":  saga.KeyShipmentLifecycle,
	"fraud.alert.created": saga.KeyFraudInvestigation,
}

// wireSubscriptions binds the query store's invalidation consumer and the
// saga trigger consumers onto the bus.
func wireSubscriptions(ctx context.Context, bus *eventbus.Bus, views *query.Store, sagas *saga.Orchestrator) error {
	for _, eventType := range query.InvalidationEvents() {
		et := eventType
		err := bus.Subscribe(ctx, et, "query-store", func(ctx context.Context, env *eventbus.Envelope) error {
			views.OnEvent(ctx, env.Type, env.Data)
			return nil
		})
		if err != nil {
			return err
		}
	}

	for eventType, sagaKey := range sagaTriggers {
		et, key := eventType, sagaKey
		err := bus.Subscribe(ctx, et, "saga-orchestrator", func(ctx context.Context, env *eventbus.Envelope) error {
			snap, serr := sagas.Start(ctx, key, env.Data, map[string]any{
				"orgId":   env.Context.OrgID,
				"userId":  env.Context.UserID,
				"traceId": env.Context.TraceID,
			})
			if serr != nil {
				return serr
			}
			logger.Info("saga finished",
				zap.String("saga_id", snap.ID),
				zap.String("saga", snap.Name),
				zap.String("state", string(snap.State)),
				zap.Int64("duration_ms", snap.DurationMs),
			)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
