package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbon-scribe/verification-engine/internal/config"
	"carbon-scribe/verification-engine/internal/verification"
)

// Expirer moves verified results past their expiry to expired
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// ExpiryWorker runs the expiry sweep on a cron schedule
type ExpiryWorker struct {
	expirer Expirer
	logger  *zap.Logger
	config  ExpiryWorkerConfig
	cron    *cron.Cron
	now     func() time.Time

	mu      sync.Mutex
	running bool
}

// ExpiryWorkerConfig configuration for the expiry worker
type ExpiryWorkerConfig struct {
	Schedule     string
	SweepTimeout time.Duration
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() ExpiryWorkerConfig {
	return ExpiryWorkerConfig{
		Schedule:     "0 * * * *",
		SweepTimeout: 5 * time.Minute,
	}
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(expirer Expirer, logger *zap.Logger, config ExpiryWorkerConfig) *ExpiryWorker {
	return &ExpiryWorker{
		expirer: expirer,
		logger:  logger,
		config:  config,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start schedules the sweep and runs it once immediately
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("expiry worker already running")
	}

	if _, err := w.cron.AddFunc(w.config.Schedule, func() { w.sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", w.config.Schedule, err)
	}

	w.logger.Info("Starting expiry worker", zap.String("schedule", w.config.Schedule))
	w.running = true
	w.sweep(ctx)
	w.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.running = false
	w.logger.Info("Expiry worker stopped")
}

// sweep expires every verified result whose expiry has passed
func (w *ExpiryWorker) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, w.config.SweepTimeout)
	defer cancel()

	start := w.now()
	count, err := w.expirer.ExpireDue(sweepCtx, start)
	if err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}

	w.logger.Info("Expiry sweep completed",
		zap.Int("expired", count),
		zap.Duration("duration", w.now().Sub(start)))
}

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	zapConfig := zap.NewProductionConfig()
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
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database")

	// The sweep only touches stored results, so no handlers or pipeline are wired
	service := verification.NewService(verification.NewPostgresRepository(db), nil, nil, logger, verification.ServiceConfig{
		Validity: cfg.Verification.Validity,
	})

	workerConfig := DefaultExpiryWorkerConfig()
	if cfg.Verification.ExpirySchedule != "" {
		workerConfig.Schedule = cfg.Verification.ExpirySchedule
	}
	worker := NewExpiryWorker(service, logger, workerConfig)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("Worker error", zap.Error(err))
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	cancel()
	worker.Stop()
}
