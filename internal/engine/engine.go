package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nkkko/simsub/internal/api"
	"github.com/nkkko/simsub/internal/config"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/nkkko/simsub/internal/policy"
	"github.com/nkkko/simsub/internal/registry"
	"github.com/nkkko/simsub/internal/service"
	"github.com/nkkko/simsub/internal/storage"
	"github.com/nkkko/simsub/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Engine is the main coordinator of the daemon's components
type Engine struct {
	config      *config.Config
	store       domain.RecordStore
	service     *service.Service
	registry    *registry.Registry
	policy      *policy.Service
	api         *api.API
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	telemetryFn func(context.Context) error // Shutdown function for telemetry
}

// CreateEngine creates a new Engine instance with all components initialized from the config
func CreateEngine(cfg *config.Config) (*Engine, error) {
	storageConfig := cfg.ToStorageConfig()
	if storageConfig.Type == storage.BadgerStorage {
		if err := os.MkdirAll(storageConfig.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := storage.NewStore(storageConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}

	svc := service.NewService(cfg.ToServiceConfig(), store)
	reg := registry.NewRegistry(cfg.ToRegistryConfig())
	pol := policy.NewService(cfg.ToPolicyConfig(), svc)
	a := api.NewAPI(cfg.ToAPIConfig(), svc, pol, reg)

	return NewEngine(cfg, store, svc, reg, pol, a), nil
}

// NewEngine creates a new Engine instance with the given configuration and components
func NewEngine(cfg *config.Config, store domain.RecordStore, svc *service.Service, reg *registry.Registry, pol *policy.Service, a *api.API) *Engine {
	return &Engine{
		config:   cfg,
		store:    store,
		service:  svc,
		registry: reg,
		policy:   pol,
		api:      a,
		logger:   log.With().Str("component", "engine").Logger(),
		metrics:  metrics.GetMetrics(),
	}
}

// Start runs every component until ctx is done or one of them fails
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info().
		Str("addr", e.config.Server.Addr).
		Str("storage", e.config.Storage.StorageType).
		Msg("Starting simsub engine")

	telShutdown, err := telemetry.Setup(ctx, e.config.ToTelemetryConfig())
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to set up telemetry, continuing without it")
	} else {
		e.telemetryFn = telShutdown
	}

	g, ctx := errgroup.WithContext(ctx)

	// Background work of the store, such as value log GC
	if starter, ok := e.store.(domain.Starter); ok {
		g.Go(func() error {
			return starter.Start(ctx)
		})
	}

	// Route change signals of the service to the registered listeners
	g.Go(func() error {
		return e.registry.Start(ctx, e.service)
	})

	g.Go(func() error {
		return e.api.Start(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("error running engine: %w", err)
	}

	e.logger.Info().Msg("simsub engine stopped")
	return nil
}

// Shutdown stops the engine
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info().Msg("Shutting down simsub engine")

	// Shut down API server first to stop accepting new connections
	if err := e.api.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down API")
	}

	if err := e.registry.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down registry")
	}

	if err := e.policy.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down policy service")
	}

	// Shut down storage last
	if err := e.store.Close(); err != nil {
		e.logger.Error().Err(err).Msg("Failed to close record store")
		return err
	}

	if e.telemetryFn != nil {
		if err := e.telemetryFn(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Failed to shut down telemetry")
		}
	}

	return nil
}
