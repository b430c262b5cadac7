// File: internal/service/components.go
package service

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/providers"
	"github.com/xkilldash9x/specter/internal/scheduler"
)

// Components holds everything an investigation run needs. It centralizes the
// lifecycle of resources that must be released on exit.
type Components struct {
	Store     schemas.Store
	Scheduler *scheduler.Scheduler
	Providers *providers.Set
	Metrics   *observability.Metrics
	// LLM is nil when the model is disabled or failed to initialize.
	LLM    schemas.LLMClient
	DBPool *pgxpool.Pool

	logger *zap.Logger
}

// Shutdown releases the LLM client and the database pool.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
	logger.Debug("All components shut down.")
}
