package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dumbogiflen/Manifest-system/internal/config"
	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	"github.com/Dumbogiflen/Manifest-system/internal/retry"
	"github.com/Dumbogiflen/Manifest-system/internal/service"
	"github.com/Dumbogiflen/Manifest-system/internal/store"
	"github.com/Dumbogiflen/Manifest-system/internal/tracing"
	"github.com/Dumbogiflen/Manifest-system/pkg/transport"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("manifest %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	// Local .env is optional; values feed the config env overrides
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting manifest relay")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Open the store with exponential backoff; sqlite on a network mount can
	// be briefly unavailable at boot
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultStoreRetryAttempts,
		Jitter:       true,
	})

	var st store.Store
	err = backoff.Retry(ctx, func() error {
		var openErr error
		st, openErr = store.Open(cfg.Storage)
		if openErr != nil {
			logger.Warnf("Failed to open store: %v", openErr)
		}
		return openErr
	})
	if err != nil {
		return fmt.Errorf("failed to open store after retries: %w", err)
	}
	defer st.Close()

	logger.WithField("backend", cfg.Storage.Backend).Info("Store opened")

	topics := service.NewTopics(cfg.Broker.TopicPrefix)

	bus := transport.NewClient(transport.Config{
		URL:      cfg.Broker.URL,
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
	}, retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}, logger)

	ledger := service.NewMessageLedger(st, cfg.Retention.MessageLimit, logger)
	lifts := service.NewLiftSynchronizer(st, bus, topics.OutLift, cfg.Retention.SameDayLifts, logger)
	quick := service.NewQuickReplies(st, logger)
	projector := service.NewStateProjector(ledger, lifts, quick)
	relay := service.NewRelay(ledger, lifts, bus, topics, logger)

	if err := quick.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed quick replies: %w", err)
	}

	// Subscriptions are registered; connect after so the broker sees them on
	// the first session
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	defer bus.Stop()

	server := NewServer(cfg, relay, lifts, quick, projector, logger)
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
