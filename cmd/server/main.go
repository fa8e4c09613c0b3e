package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	integrationapp "github.com/truthsource/backend/internal/application/integration"
	syncapp "github.com/truthsource/backend/internal/application/sync"
	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/infrastructure/auth"
	"github.com/truthsource/backend/internal/infrastructure/cache"
	"github.com/truthsource/backend/internal/infrastructure/config"
	"github.com/truthsource/backend/internal/infrastructure/connector"
	"github.com/truthsource/backend/internal/infrastructure/event"
	"github.com/truthsource/backend/internal/infrastructure/logger"
	"github.com/truthsource/backend/internal/infrastructure/persistence"
	"github.com/truthsource/backend/internal/infrastructure/scheduler"
	"github.com/truthsource/backend/internal/infrastructure/secrets"
	"github.com/truthsource/backend/internal/infrastructure/telemetry"
	"github.com/truthsource/backend/internal/interfaces/http/handler"
	"github.com/truthsource/backend/internal/interfaces/http/middleware"
	"github.com/truthsource/backend/internal/interfaces/http/router"
)

//	@title			TruthSource API
//	@version		1.0
//	@description	Data accuracy platform backend: sync jobs, conflict resolution and platform integrations.

//	@contact.name	API Support
//	@contact.email	support@truthsource.example.com

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// Telemetry bootstrap. Providers are no-ops when telemetry is disabled,
	// so the rest of the wiring does not branch on the flag.
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// Rebuild the app logger with the OTEL bridge once the provider exists,
	// so logs reach the collector alongside stdout.
	if cfg.Telemetry.Enabled {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          zapcore.InfoLevel,
		})
		log = logger.NewWithCores(logCfg, otelCore)
	}

	// Continuous profiling (Pyroscope). NewProfiler starts sampling itself.
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilerEnabled,
		ServerAddress:     cfg.Telemetry.ProfilerAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		ProfileCPU:        true,
		ProfileInuseSpace: true,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		log.Warn("Failed to start profiler, continuing without profiling", zap.Error(err))
	} else {
		defer func() {
			if err := profiler.Stop(); err != nil {
				log.Error("Error stopping profiler", zap.Error(err))
			}
		}()
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.ProfilerEnabled {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	log.Info("Starting TruthSource Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	meter := meterProvider.Meter("truthsource-backend")

	// Database observability: pool/query metrics plus query tracing
	if cfg.Telemetry.Enabled {
		dbMetrics, err := telemetry.NewDBMetrics(meter, telemetry.DefaultDBMetricsConfig(), log)
		if err != nil {
			log.Warn("Failed to initialize database metrics", zap.Error(err))
		} else {
			if sqlDB, derr := db.DB.DB(); derr == nil {
				dbMetrics.SetSQLDB(sqlDB)
			}
			dbMetrics.StartPoolStatsCollection(ctx)
			defer dbMetrics.Stop()
			if err := db.DB.Use(telemetry.NewDBMetricsPlugin(dbMetrics, log)); err != nil {
				log.Warn("Failed to register database metrics plugin", zap.Error(err))
			}
		}
	}
	if cfg.Telemetry.DBTraceEnabled {
		tracingPlugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:          true,
			LogFullSQL:       cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:         "postgresql",
			WithoutVariables: !cfg.Telemetry.DBLogFullSQL,
		}, log)
		if err := tracingPlugin.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing plugin", zap.Error(err))
		}
	}

	// Initialize repositories
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	queueRepo := persistence.NewGormSyncQueueRepository(db.DB)
	conflictRepo := persistence.NewGormSyncConflictRepository(db.DB)
	metricsRepo := persistence.NewGormSyncMetricsRepository(db.DB)
	integrationRepo := persistence.NewGormIntegrationRepository(db.DB)

	// Credential sealer for integration secrets at rest
	sealer, err := secrets.NewCredentialSealer(cfg.Secrets.Key)
	if err != nil {
		log.Fatal("Failed to initialize credential sealer", zap.Error(err))
	}
	if cfg.Secrets.Key == "" {
		log.Warn("No sealing key configured, integration credentials will be stored unencrypted")
	}

	// Connector registry. Platform adapters register builders here; the
	// in-tree REST adapter covers self-hosted systems speaking the
	// custom_api contract, wrapped in a circuit breaker.
	registry := connector.NewRegistry()
	if err := registry.Register(integration.PlatformCustomAPI, func(ccfg integration.ConnectorConfig) (integration.Connector, error) {
		rest, err := connector.NewRESTConnector(ccfg)
		if err != nil {
			return nil, err
		}
		return connector.NewBreakerConnector(rest, log), nil
	}); err != nil {
		log.Fatal("Failed to register custom_api connector", zap.Error(err))
	}

	// Live connector cache keyed by integration
	connectorCache := connector.NewCache(integrationRepo, sealer, registry, log)

	// Progress snapshot store: Redis with in-memory fallback
	progressFactory := cache.NewProgressStoreFactory(cfg.Redis, cfg.Sync.ProgressTTL, cache.WithLogger(log))
	progressStore, err := progressFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create progress store", zap.Error(err))
	}
	defer func() {
		if closer, ok := progressStore.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Error("Error closing progress store", zap.Error(err))
			}
		}
	}()

	// Initialize event bus and handlers
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewAuditLogHandler(log))

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Initialize application services
	resolver := syncapp.NewConflictResolver(conflictRepo, eventBus, log)
	executor := syncapp.NewJobExecutor(
		jobRepo,
		integrationRepo,
		metricsRepo,
		connectorCache,
		resolver,
		progressStore,
		eventBus,
		log,
		cfg.Sync.MaxConcurrentJobs,
	)
	jobService := syncapp.NewJobService(jobRepo, queueRepo, metricsRepo, integrationRepo, progressStore, executor, eventBus, log)
	conflictService := syncapp.NewConflictService(conflictRepo, jobRepo, log)
	integrationService := integrationapp.NewIntegrationService(integrationRepo, sealer, connectorCache, log)

	// Sync metrics ride the meter provider; with telemetry disabled the
	// instruments are no-ops and the collection loop never starts.
	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:            meter,
		Logger:           log,
		ActivityProvider: telemetry.NewGormSyncActivityProvider(db.DB),
		JobCounter:       executor,
		ConnectorCounter: connectorCache,
	})
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}
	jobService.SetSyncMetrics(syncMetrics)
	conflictService.SetSyncMetrics(syncMetrics)
	executor.SetSyncMetrics(syncMetrics)
	resolver.SetSyncMetrics(syncMetrics)
	if cfg.Telemetry.Enabled {
		syncMetrics.StartPeriodicCollection(ctx, telemetry.NewGormOrgProvider(db.DB), 0)
		defer syncMetrics.Stop()
	}

	// Queue dispatcher drives pending jobs through the executor
	dispatcherCfg := scheduler.DispatcherConfig{
		DispatchInterval:     cfg.Sync.DispatchInterval,
		PollBatch:            cfg.Sync.QueuePollBatch,
		JobTimeout:           cfg.Sync.DefaultJobTimeout,
		RetryBackoff:         cfg.Sync.RetryBackoff,
		ConnectorIdleTimeout: cfg.Sync.ConnectorIdleTimeout,
		EvictionInterval:     cfg.Sync.EvictionInterval,
	}
	dispatcher, err := scheduler.NewDispatcher(dispatcherCfg, queueRepo, jobRepo, executor, connectorCache, log)
	if err != nil {
		log.Fatal("Failed to create dispatcher", zap.Error(err))
	}
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("Failed to start dispatcher", zap.Error(err))
	}
	defer func() {
		if err := dispatcher.Stop(context.Background()); err != nil {
			log.Error("Error stopping dispatcher", zap.Error(err))
		}
	}()
	log.Info("Dispatcher started",
		zap.Duration("dispatch_interval", dispatcherCfg.DispatchInterval),
		zap.Int("poll_batch", dispatcherCfg.PollBatch),
	)

	// Initialize HTTP handlers
	syncJobHandler := handler.NewSyncJobHandler(jobService)
	conflictHandler := handler.NewConflictHandler(conflictService)
	integrationHandler := handler.NewIntegrationHandler(integrationService)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. RateLimit - Apply rate limiting (if enabled)
	// 8. Tracing/Metrics/Profiling - Observability (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			ServiceName:   cfg.Telemetry.ServiceName,
			Enabled:       true,
		}))
	}
	if cfg.Telemetry.ProfilerEnabled {
		engine.Use(middleware.Profiling())
	}

	// Health check endpoint (outside API versioning); also the probe
	// target for offline agents
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes. Tokens are issued
	// by the external identity service; system endpoints stay public.
	verifier := auth.NewTokenVerifier(cfg.JWT)
	jwtConfig := middleware.JWTMiddlewareConfig{
		Verifier: verifier,
		SkipPaths: []string{
			"/api/v1/system/info",
			"/api/v1/system/ping",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Sync domain (jobs, progress, conflicts)
	syncRoutes := router.NewDomainGroup("sync", "/sync")
	syncRoutes.POST("/jobs", syncJobHandler.Create)
	syncRoutes.GET("/jobs", syncJobHandler.List)
	syncRoutes.GET("/jobs/:id", syncJobHandler.GetByID)
	syncRoutes.POST("/jobs/:id/cancel", syncJobHandler.Cancel)
	syncRoutes.GET("/jobs/:id/progress", syncJobHandler.GetProgress)
	syncRoutes.GET("/jobs/:id/metrics", syncJobHandler.GetMetrics)
	syncRoutes.GET("/jobs/:id/conflicts", conflictHandler.ListByJob)
	syncRoutes.GET("/conflicts", conflictHandler.List)
	syncRoutes.GET("/conflicts/:id", conflictHandler.GetByID)
	syncRoutes.POST("/conflicts/:id/resolve", conflictHandler.Resolve)

	// Integrations domain (platform connections, credentials, connectors)
	integrationRoutes := router.NewDomainGroup("integrations", "/integrations")
	integrationRoutes.POST("", integrationHandler.Create)
	integrationRoutes.GET("", integrationHandler.List)
	integrationRoutes.GET("/:id", integrationHandler.GetByID)
	integrationRoutes.DELETE("/:id", integrationHandler.Delete)
	integrationRoutes.PUT("/:id/credentials", integrationHandler.RotateCredentials)
	integrationRoutes.POST("/:id/activate", integrationHandler.Activate)
	integrationRoutes.POST("/:id/deactivate", integrationHandler.Deactivate)
	integrationRoutes.POST("/:id/test", integrationHandler.TestConnection)
	integrationRoutes.POST("/:id/connectors/evict", integrationHandler.EvictConnectors)

	// System routes
	systemHandler := handler.NewSystemHandler()
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	// Register all domain groups
	r.Register(syncRoutes).
		Register(integrationRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
