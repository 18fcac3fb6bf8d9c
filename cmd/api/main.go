package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"carbon-scribe/verification-engine/internal/config"
	"carbon-scribe/verification-engine/internal/evidence"
	"carbon-scribe/verification-engine/internal/evidence/parser"
	"carbon-scribe/verification-engine/internal/verification"
	"carbon-scribe/verification-engine/internal/verification/methodology"
	"carbon-scribe/verification-engine/pkg/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	zapConfig := zap.NewDevelopmentConfig()
	if level, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
		zapConfig.Level = level
	}
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Connect to database
	logger.Info("Connecting to database",
		zap.String("host", cfg.Database.Host),
		zap.String("db_name", cfg.Database.DBName))
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	// Evidence store
	var store storage.ContentStore
	if cfg.Storage.Bucket != "" {
		s3Store, err := storage.NewS3Store(context.Background(), storage.S3StoreConfig{
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
			Prefix:   cfg.Storage.Prefix,
		})
		if err != nil {
			logger.Fatal("Failed to initialize evidence store", zap.Error(err))
		}
		store = s3Store
		logger.Info("Using S3 evidence store", zap.String("bucket", cfg.Storage.Bucket))
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("No evidence bucket configured, archiving evidence in memory")
	}

	// Initialize Verification Module
	repo := verification.NewPostgresRepository(db)
	if err := repo.Init(context.Background()); err != nil {
		logger.Fatal("Failed to initialize database schema", zap.Error(err))
	}

	pipelineConfig := evidence.DefaultPipelineConfig()
	pipelineConfig.MaxConcurrentFiles = cfg.Verification.MaxConcurrentFiles
	pipelineConfig.ArchiveAttempts = cfg.Verification.ArchiveAttempts
	pipelineConfig.ArchiveRetryDelay = cfg.Verification.ArchiveRetryDelay
	pipeline := evidence.NewPipeline(repo, store, parser.New(), evidence.DefaultRuleSet(), logger, pipelineConfig)

	registry := methodology.NewRegistry(map[string]methodology.Handler{
		methodology.TypeVWBA: methodology.NewVWBAHandler(cfg.Verification.VWBA),
	})

	verificationService := verification.NewService(repo, registry, pipeline, logger, verification.ServiceConfig{
		Validity: cfg.Verification.Validity,
	})
	verificationHandler := verification.NewHandler(verificationService, logger)

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Register Routes
	api := router.Group("/api/v1")
	{
		verificationHandler.RegisterRoutes(api)
	}

	// Health Check
	router.GET("/health", healthHandler(db, registry.Types))

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
