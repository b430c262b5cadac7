// File: internal/service/factory.go
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/internal/analysis"
	"github.com/xkilldash9x/specter/internal/collection"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/deconflict"
	"github.com/xkilldash9x/specter/internal/enhancer"
	"github.com/xkilldash9x/specter/internal/geo"
	"github.com/xkilldash9x/specter/internal/network"
	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/pipeline"
	"github.com/xkilldash9x/specter/internal/providers"
	"github.com/xkilldash9x/specter/internal/report"
	"github.com/xkilldash9x/specter/internal/scheduler"
	"github.com/xkilldash9x/specter/internal/social"
)

// ComponentFactory builds the components of a run. Commands depend on this
// interface so tests can substitute an in-memory setup.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// Options tune what the production factory builds.
type Options struct {
	// Migrate applies the schema when a database is used.
	Migrate bool
	// Metrics defaults to the process-wide registry.
	Metrics *observability.Metrics
	// Fetcher overrides the provider transport, mostly for tests.
	Fetcher *network.Fetcher
}

type concreteFactory struct {
	opts Options
}

// NewComponentFactory creates the production component factory.
func NewComponentFactory(opts Options) ComponentFactory {
	return &concreteFactory{opts: opts}
}

// Create wires store, providers, pipeline steps and scheduler together.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	components := &Components{logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	metrics := f.opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics()
	}
	components.Metrics = metrics

	// 1. Store
	st, pool, err := InitializeStore(ctx, cfg.Database(), logger, f.opts.Migrate)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Store, components.DBPool = st, pool
	logger.Debug("Store initialized.", zap.Bool("postgres", pool != nil))

	// 2. Providers
	fetcher := f.opts.Fetcher
	if fetcher == nil {
		fetcher = network.NewFetcher(nil, cfg.Network(), logger)
	}
	set := providers.NewSet(providers.Deps{
		Fetcher:   fetcher,
		Logger:    logger,
		Metrics:   metrics,
		Providers: cfg.Providers(),
		Geo:       cfg.Geo(),
	})
	components.Providers = set

	// 3. LLM + enhancer
	components.LLM = InitializeLLMClient(ctx, cfg.LLM(), logger)

	// 4. Pipeline steps
	steps := pipeline.New(pipeline.Deps{
		Store:      st,
		Collector:  collection.New(set, cfg.Collection(), logger),
		Discoverer: social.NewDiscoverer(set, cfg.Social(), logger),
		Posts:      social.NewPostCollector(set, cfg.Social(), logger),
		Analyzer:   analysis.NewEngine(logger),
		Enhancer:   enhancer.New(components.LLM, cfg.LLM(), metrics, logger),
		Deconflict: deconflict.NewEngine(logger),
		Locator:    geo.NewLocator(set.Geocode, cfg.Geo(), logger),
		Reports:    report.NewBuilder(logger),
		Logger:     logger,
	})

	// 5. Scheduler
	components.Scheduler = scheduler.New(st, steps, cfg.Scheduler(), metrics, logger)

	logger.Info("Components initialized.")
	return components, nil
}
