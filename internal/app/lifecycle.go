package app

import (
	"go.uber.org/zap"

	"trustchecker.io/trustchecker/internal/pkg/logger"
)

// Shutdown gracefully stops the application: poll loops first so no new
// deliveries start, then the pools drain in-flight work, then the backend
// clients close.
func (a *Application) Shutdown() {
	if a.Bus != nil {
		a.Bus.Stop()
		logger.Info("event bus stopped")
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("redis close returned error", zap.Error(err))
		}
	}
	if a.pgdb != nil {
		a.pgdb.Close()
	}
}
