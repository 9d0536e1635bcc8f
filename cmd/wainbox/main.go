package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wainbox/internal/config"
	"wainbox/internal/constants"
	"wainbox/internal/database"
	"wainbox/internal/dedup"
	"wainbox/internal/models"
	"wainbox/internal/normalize"
	"wainbox/internal/retry"
	"wainbox/internal/security"
	"wainbox/internal/service"
	"wainbox/internal/tracing"
	"wainbox/pkg/evolution"
	"wainbox/pkg/storage"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wainbox %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wainbox")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg)

	tracingManager := tracing.NewManager(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// SQLite under heavy startup contention benefits from a short retry loop.
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	hasher, err := security.NewKeyHasher()
	if err != nil {
		return fmt.Errorf("failed to initialize API key hasher: %w", err)
	}

	providerClient := evolution.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		time.Duration(cfg.Provider.TimeoutSec)*time.Second,
	)

	mediaStore, err := buildMediaStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}

	mediaPool := service.NewMediaWorkerPool(
		db,
		providerClient,
		mediaStore,
		cfg.Media.Workers,
		cfg.Media.QueueSize,
		time.Duration(cfg.Provider.TimeoutSec)*time.Second,
		logger,
	)
	mediaPool.Start(ctx)
	defer mediaPool.Stop()

	normalizer := normalize.New(logger)
	resolver := service.NewResolver(db, logger)
	dedupCache := dedup.New(
		time.Duration(cfg.Dedup.TTLSec)*time.Second,
		cfg.Dedup.MaxEntries,
	)

	ingestor := service.NewIngestor(db, resolver, normalizer, dedupCache, mediaPool, cfg.Provider.Name, logger)

	// Log level and retention are tunable without a restart; everything else
	// needs one.
	watcher := config.NewWatcher(*configPath, logger)
	watcher.OnConfigChange(func(updated *models.Config) {
		configureLogLevel(logger, updated)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher failed to start")
		}
	}()

	go runCleanup(ctx, db, watcher, cfg, logger)

	server := NewServer(cfg, db, ingestor, hasher, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}

	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(level)
}

func buildMediaStore(cfg *models.Config, logger *logrus.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Store(cfg.Storage, logger)
	default:
		return storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL, logger)
	}
}

// runCleanup trims the conversation-event audit trail on the configured
// interval. Delivery rows are never deleted. The retention window is read
// from the watcher each pass so reloads take effect.
func runCleanup(ctx context.Context, db *database.Database, watcher *config.Watcher, cfg *models.Config, logger *logrus.Logger) {
	interval := time.Duration(cfg.Server.CleanupIntervalHours) * time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			retentionDays := cfg.RetentionDays
			if current := watcher.GetConfig(); current != nil {
				retentionDays = current.RetentionDays
			}

			if err := db.CleanupOldConversationEvents(retentionDays); err != nil {
				logger.WithError(err).Warn("Conversation event cleanup failed")
			} else {
				logger.WithField("retention_days", retentionDays).Debug("Conversation event cleanup completed")
			}
		}
	}
}
