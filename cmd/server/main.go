package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	feesapp "github.com/schoolerp/backend/internal/application/fees"
	"github.com/schoolerp/backend/internal/infrastructure/auth"
	"github.com/schoolerp/backend/internal/infrastructure/cache"
	"github.com/schoolerp/backend/internal/infrastructure/config"
	"github.com/schoolerp/backend/internal/infrastructure/logger"
	"github.com/schoolerp/backend/internal/infrastructure/persistence"
	"github.com/schoolerp/backend/internal/infrastructure/telemetry"
	"github.com/schoolerp/backend/internal/interfaces/http/handler"
	"github.com/schoolerp/backend/internal/interfaces/http/middleware"
	"github.com/schoolerp/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting School ERP Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize OpenTelemetry tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	structureRepo := persistence.NewGormFeeStructureRepository(db.DB)
	ledgerRepo := persistence.NewGormFeeLedgerRepository(db.DB)
	txRepo := persistence.NewGormFeeTransactionRepository(db.DB, cfg.Fees.ReceiptPrefix)
	studentRepo := persistence.NewGormStudentRepository(db.DB)

	// Fee structure cache: redis or in-process, with read-through decoration
	cacheFactory := cache.NewStructureCacheFactory(cfg.Redis, cache.WithLogger(log))
	structureCache, err := cacheFactory.Create(cfg.Fees.CacheBackend)
	if err != nil {
		log.Fatal("Failed to initialize structure cache", zap.Error(err))
	}
	defer func() {
		if err := structureCache.Close(); err != nil {
			log.Error("Error closing structure cache", zap.Error(err))
		}
	}()
	cachedStructureRepo := cache.NewCachedFeeStructureRepository(
		structureRepo, structureCache, cfg.Fees.StructureCacheTTL, log,
	)
	log.Info("Fee structure cache initialized",
		zap.String("backend", cfg.Fees.CacheBackend),
		zap.Duration("ttl", cfg.Fees.StructureCacheTTL),
	)

	// Transaction runner for the atomic collect/waive/reverse flows
	txRunner := persistence.NewGormTxRunner(db.DB, cfg.Fees.ReceiptPrefix)

	// JWT service for authentication
	jwtService := auth.NewJWTService(cfg.JWT)

	// Initialize application services
	collectionService := feesapp.NewCollectionService(
		cachedStructureRepo, ledgerRepo, txRepo, studentRepo, txRunner,
	)
	queryService := feesapp.NewQueryService(
		cachedStructureRepo, ledgerRepo, txRepo, studentRepo,
	)
	structureService := feesapp.NewStructureService(cachedStructureRepo)

	// Initialize HTTP handlers
	feesHandler := handler.NewFeesHandler(collectionService, queryService)
	structuresHandler := handler.NewStructuresHandler(structureService)
	studentsHandler := handler.NewStudentsHandler(collectionService, queryService)
	systemHandler := handler.NewSystemHandler(db)

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
	// 6. Tracing - OpenTelemetry spans (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", systemHandler.Health)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/system/health",
			"/api/v1/system/info",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))
	if cfg.Telemetry.Enabled {
		// Runs after JWT so school/user attributes land on the span
		r.Use(middleware.TracingAttributeInjector())
	}

	// Fees domain (collection, waivers, reversals, reconciliation)
	feesRoutes := router.NewDomainGroup("fees", "/fees")
	feesRoutes.POST("/validate", feesHandler.ValidateCollection)
	feesRoutes.POST("/collect", feesHandler.CollectFee)
	feesRoutes.POST("/waive", middleware.RequireAdmin(), feesHandler.WaiveMonth)
	feesRoutes.POST("/reverse", middleware.RequireAdmin(), feesHandler.ReverseTransaction)
	feesRoutes.GET("/transactions", feesHandler.GetMyTransactions)
	feesRoutes.GET("/summary/daily", feesHandler.GetDailySummary)
	feesRoutes.GET("/structures", structuresHandler.List)
	feesRoutes.POST("/structures", middleware.RequireAdmin(), structuresHandler.Create)
	feesRoutes.POST("/structures/:id/deactivate", middleware.RequireAdmin(), structuresHandler.Deactivate)

	// Students domain (collection screen lookups)
	studentRoutes := router.NewDomainGroup("students", "/students")
	studentRoutes.GET("", studentsHandler.Search)
	studentRoutes.GET("/class", studentsHandler.GetClass)
	studentRoutes.GET("/:id/fee-status", studentsHandler.GetFeeStatus)
	studentRoutes.GET("/:id/ledger", studentsHandler.GetLedger)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/health", systemHandler.Health)
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)

	r.Register(feesRoutes).
		Register(studentRoutes).
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
