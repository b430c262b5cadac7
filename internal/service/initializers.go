// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/llmclient"
	"github.com/xkilldash9x/specter/internal/store"
)

// MemoryURL selects the in-memory store explicitly.
const MemoryURL = "memory"

// InitializeStore connects to PostgreSQL or falls back to the in-memory store
// when no database URL is configured. The returned pool is nil for memory.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger, migrate bool) (schemas.Store, *pgxpool.Pool, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" || url == MemoryURL {
		if url == "" {
			logger.Warn("No database configured; using a temporary in-memory store. Investigations are lost on exit.")
		}
		return store.NewMemory(), nil, nil
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	if migrate {
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return st, pool, nil
}

// NewPool creates and pings a pgx pool with the configured limits.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// InitializeLLMClient creates the model client. A disabled model or a failed
// initialization yields nil, which makes the enhancer fall back.
func InitializeLLMClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) schemas.LLMClient {
	if !cfg.Enabled {
		logger.Info("LLM disabled; reports use the heuristic analysis only.")
		return nil
	}
	client, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize LLM client. AI enhancement will fall back to heuristics.", zap.Error(err))
		return nil
	}
	return client
}
