package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/miniapp/internal/api/http"
	"github.com/GriffinCanCode/miniapp/internal/api/middleware"
	"github.com/GriffinCanCode/miniapp/internal/api/ws"
	"github.com/GriffinCanCode/miniapp/internal/app"
	"github.com/GriffinCanCode/miniapp/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/storage"
)

// shutdownTimeout bounds graceful shutdown
const shutdownTimeout = 15 * time.Second

// Options overrides ambient dependencies, mainly for tests
type Options struct {
	Logger *logging.Logger
	Store  *storage.Store
}

// Server wraps the HTTP server and the runtime behind it
type Server struct {
	router   *gin.Engine
	runtime  *app.Runtime
	registry *prometheus.Registry
	logger   *logging.Logger
	config   *config.Config
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	logger.Info("Initializing miniapp server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("platform", cfg.Platform.BaseURL),
		zap.String("cache_dir", cfg.Cache.Dir),
		zap.String("store", cfg.Store.Backend),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	rt, err := app.New(cfg, app.Options{Logger: logger.Logger, Metrics: metrics, Store: opts.Store})
	if err != nil {
		return nil, fmt.Errorf("failed to build runtime: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.Logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSFromOrigins(cfg.Server.CORSOrigins)))
	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	handlers := apihttp.NewHandlers(rt)
	handlers.Register(router)

	hosts := func(session bridge.Session) bridge.Host {
		return ws.NewLocalHost(cfg.Host, session, rt.Layout, ws.HostOptions{Logger: logger.Logger})
	}
	wsHandler := ws.NewHandler(rt.Loader, rt.Engine, hosts, ws.Options{
		Logger:      logger.Logger,
		Metrics:     metrics,
		CheckOrigin: originChecker(cfg.Server.CORSOrigins),
	})
	router.GET("/v1/apps/:appId/bridge", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		runtime:  rt,
		registry: registry,
		logger:   logger,
		config:   cfg,
	}, nil
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Runtime exposes the wired components
func (s *Server) Runtime() *app.Runtime {
	return s.runtime
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errCh
}

// Close releases the runtime and flushes the logger
func (s *Server) Close() error {
	err := s.runtime.Close()
	if err != nil {
		s.logger.Error("Failed to close runtime", zap.Error(err))
	}
	_ = s.logger.Sync()
	return err
}

// originChecker accepts every origin unless concrete CORS origins are set
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = true
	}
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
