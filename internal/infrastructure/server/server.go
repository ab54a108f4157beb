// Package server wires configuration, logging, metrics, the metadata catalog,
// and the core file service packages into a running HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/storagepod/storagepod/internal/api/http"
	"github.com/storagepod/storagepod/internal/api/middleware"
	"github.com/storagepod/storagepod/internal/archive"
	"github.com/storagepod/storagepod/internal/catalog"
	"github.com/storagepod/storagepod/internal/fsops"
	"github.com/storagepod/storagepod/internal/infrastructure/config"
	"github.com/storagepod/storagepod/internal/infrastructure/logging"
	"github.com/storagepod/storagepod/internal/infrastructure/monitoring"
	"github.com/storagepod/storagepod/internal/task"
	"github.com/storagepod/storagepod/internal/upload"
)

// Server owns the HTTP listener and the background workers behind it.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	router   *gin.Engine
	httpSrv  *http.Server
	store    catalog.Store
	registry *task.Registry
	cancel   context.CancelFunc
}

// New assembles the service from configuration. The storage root is created
// if absent; a missing catalog is tolerated and only disables search.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}

	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", cfg.Storage.Root, err)
	}
	sandbox := fsops.NewSandbox(cfg.Storage.Root)

	metrics := monitoring.NewMetrics()

	var store catalog.Store
	if cfg.Storage.CatalogEnabled {
		if cfg.Storage.CatalogPath != "" {
			badgerStore, err := catalog.OpenBadger(cfg.Storage.CatalogPath)
			if err != nil {
				return nil, fmt.Errorf("open catalog at %s: %w", cfg.Storage.CatalogPath, err)
			}
			store = badgerStore
			logger.Info("catalog opened", zap.String("path", cfg.Storage.CatalogPath))
		} else {
			store = catalog.NewMemoryStore()
			logger.Info("catalog running in memory")
		}
	}

	registry := task.NewRegistry(cfg.Tasks.TTL)

	bgCtx, cancel := context.WithCancel(context.Background())
	go registry.Run(bgCtx, cfg.Tasks.JanitorInterval)

	if store != nil && cfg.Storage.ScanOnStart {
		go func() {
			if err := catalog.Scan(bgCtx, sandbox, store, logger.Logger); err != nil {
				logger.Warn("catalog scan failed", zap.Error(err))
			}
		}()
	}

	// catalog.Store satisfies fsops.Catalog; a nil Store must stay a nil
	// interface for the operator's nil checks.
	var writeThrough fsops.Catalog
	if store != nil {
		writeThrough = store
	}

	operator := fsops.NewOperator(sandbox, writeThrough, logger.Logger)
	gate := upload.NewGate(cfg.Upload.MaxConcurrent)
	pipeline := upload.NewPipeline(sandbox, gate, registry, writeThrough, logger.Logger, cfg.Upload.ProgressInterval).
		WithMetrics(metrics)
	compressor := archive.NewCompressor(sandbox, registry, logger.Logger).
		WithMetrics(metrics)

	handlers := apihttp.NewHandlers(operator, pipeline, compressor, registry, store, metrics, logger.Logger)

	router := buildRouter(cfg, handlers, metrics)

	return &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		httpSrv: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		store:    store,
		registry: registry,
		cancel:   cancel,
	}, nil
}

func buildRouter(cfg *config.Config, handlers *apihttp.Handlers, metrics *monitoring.Metrics) *gin.Engine {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS())

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/tasks/:id", handlers.TaskStream)

	var authorizer middleware.Authorizer
	if cfg.Auth.Token != "" {
		authorizer = middleware.NewStaticToken(cfg.Auth.Token)
	}

	files := router.Group("/api/v1/files")
	if cfg.RateLimit.Enabled {
		files.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	files.Use(middleware.Auth(authorizer))
	{
		files.GET("", handlers.List)
		files.DELETE("", handlers.Delete)
		files.POST("/folder", handlers.CreateFolder)
		files.POST("/rename", handlers.Rename)
		files.POST("/move", handlers.Move)
		files.POST("/copy", handlers.Copy)
		files.GET("/download", handlers.Download)
		files.GET("/search", handlers.Search)
		files.POST("/upload", handlers.Upload)
		files.GET("/upload/:id", handlers.UploadProgress)
		files.POST("/compress", handlers.Compress)
		files.GET("/compress/:id", handlers.CompressProgress)
	}

	return router
}

// Run starts serving and blocks until the listener stops.
func (s *Server) Run() error {
	s.logger.Info("server starting",
		zap.String("addr", s.httpSrv.Addr),
		zap.String("storage_root", s.cfg.Storage.Root))

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops background workers, and closes
// the catalog.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")

	err := s.httpSrv.Shutdown(ctx)
	s.cancel()

	if s.store != nil {
		if closeErr := s.store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
