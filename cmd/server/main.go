package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/grandmasters-wiki/internal/chessapi"
	"github.com/grandmasters-wiki/internal/config"
	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/handler"
	"github.com/grandmasters-wiki/internal/kafka"
	"github.com/grandmasters-wiki/internal/layout"
	"github.com/grandmasters-wiki/internal/logging"
	"github.com/grandmasters-wiki/internal/postgres"
	"github.com/grandmasters-wiki/internal/redis"
	"github.com/grandmasters-wiki/internal/service"
	"github.com/grandmasters-wiki/internal/view"
	"github.com/grandmasters-wiki/internal/websocket"
	"github.com/grandmasters-wiki/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	// Load configuration
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstream := chessapi.NewFromConfig(&cfg.Upstream, logger)

	var (
		opts   []service.Option
		checks []handler.ReadinessCheck
	)

	// Initialize Redis
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		logger.Info("connected to Redis")

		opts = append(opts,
			service.WithDirectoryStore(redis.NewJSONStore[[]string](client, "directory", cfg.Redis.KeyTTL, logger)),
			service.WithProfileStore(redis.NewJSONStore[*domain.PlayerProfile](client, "player", cfg.Redis.KeyTTL, logger)),
		)
		checks = append(checks, handler.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}

	// Initialize PostgreSQL
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := repo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		opts = append(opts, service.WithSnapshot(repo))
		checks = append(checks, handler.ReadinessCheck{Name: "postgres", Check: repo.Ping})
	}

	// Initialize services
	directoryService := service.NewDirectoryService(
		upstream,
		&cfg.Cache,
		layout.NewTable(cfg.Layout),
		logger,
		opts...,
	)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(directoryService, logger)
	go wsHub.Run()
	directoryService.SetNotifier(wsHub)
	logger.Info("WebSocket hub initialized")

	// Kafka carries invalidations between instances
	var (
		kafkaConsumer *kafka.Consumer
		publisher     worker.Publisher
	)
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)

		producer, err := kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without publishing", "error", err)
		} else {
			defer producer.Close()
			publisher = producer
		}

		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, directoryService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	// Initialize sync worker
	syncWorker := worker.NewSyncWorker(directoryService, publisher, &cfg.Sync, logger)

	// Load the directory snapshot on startup (recovery)
	if err := syncWorker.Warm(ctx); err != nil {
		logger.Warn("failed to warm directory on startup", "error", err)
	}

	// Start sync worker
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	renderer, err := view.NewRenderer(view.NewSite(cfg.Site.URL, cfg.Site.Name))
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(directoryService, wsHub, renderer, logger, checks...)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "site", cfg.Site.URL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop sync worker
	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
