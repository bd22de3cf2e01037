package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/domain/cache"
	"github.com/GriffinCanCode/miniapp/internal/domain/download"
	"github.com/GriffinCanCode/miniapp/internal/domain/loader"
	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/domain/resolver"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/miniapp/internal/platform"
	"github.com/GriffinCanCode/miniapp/internal/shared/paths"
	"github.com/GriffinCanCode/miniapp/internal/shared/utils"
	"github.com/GriffinCanCode/miniapp/internal/storage"
)

// Options carries the ambient dependencies of a Runtime
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// Store replaces the configured store, mainly for tests
	Store *storage.Store
}

// Runtime holds the wired components
type Runtime struct {
	Config   *config.Config
	Layout   paths.Layout
	HTTP     *httpclient.Client
	Platform *platform.Client
	Store    *storage.Store
	Verifier *cache.Verifier
	Resolver *resolver.Resolver
	Pipeline *download.Pipeline
	Engine   *permission.Engine
	Loader   *loader.Loader
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
}

// New builds a Runtime from cfg
func New(cfg *config.Config, opts Options) (*Runtime, error) {
	logger := logging.OrNop(opts.Logger)
	layout := paths.New(cfg.Cache.Dir)
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	alg, err := utils.ParseHashAlgorithm(cfg.Cache.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	if cfg.Platform.SubscriptionKey != "" {
		headers["apiKey"] = cfg.Platform.SubscriptionKey
	}
	failures := cfg.Platform.BreakerFailures
	hc := httpclient.New(httpclient.Options{
		Timeout:   cfg.Platform.Timeout.Duration,
		RateLimit: cfg.Platform.RateLimit,
		Burst:     cfg.Platform.Burst,
		Headers:   headers,
		Policy: httpclient.Policy{
			BaseDelay:   cfg.Download.RetryBase.Duration,
			Multiplier:  cfg.Download.RetryMultiplier,
			MaxAttempts: cfg.Download.MaxAttempts,
		},
		Breaker: resilience.Settings{
			Timeout: cfg.Platform.BreakerCooldown.Duration,
			ReadyToTrip: func(c resilience.Counts) bool {
				return failures > 0 && c.ConsecutiveFailures >= failures
			},
		},
		Logger:  logger,
		Metrics: opts.Metrics,
	})

	client, err := platform.New(hc, platform.Options{
		BaseURL: cfg.Platform.BaseURL,
		HostID:  cfg.Platform.HostID,
		Preview: cfg.Platform.Preview,
	}, logger)
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		store, err = storage.Open(cfg.Store, layout.StoreDir(), logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	verifier, err := cache.New(cache.Options{
		Layout:  layout,
		Hasher:  utils.NewHasher(alg),
		Ignore:  cfg.Cache.Ignore,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	rv := resolver.New(client, store, resolver.Options{Preview: cfg.Platform.Preview, Logger: logger})
	pipeline := download.New(client, store, verifier, download.Options{
		Concurrency:   cfg.Download.Concurrency,
		SignatureMode: cfg.Download.SignatureMode,
		RootEntry:     cfg.Cache.RootEntry,
		Logger:        logger,
		Metrics:       opts.Metrics,
	})
	engine := permission.New(store, permission.Options{Logger: logger, Metrics: opts.Metrics})

	return &Runtime{
		Config:   cfg,
		Layout:   layout,
		HTTP:     hc,
		Platform: client,
		Store:    store,
		Verifier: verifier,
		Resolver: rv,
		Pipeline: pipeline,
		Engine:   engine,
		Loader:   loader.New(rv, pipeline, engine, store, verifier, loader.Options{Logger: logger, Metrics: opts.Metrics}),
		Logger:   logger,
		Metrics:  opts.Metrics,
	}, nil
}

// Close releases the store
func (r *Runtime) Close() error {
	return r.Store.Close()
}
