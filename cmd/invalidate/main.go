package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/grandmasters-wiki/internal/config"
	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/kafka"
	"github.com/grandmasters-wiki/internal/logging"
	"github.com/grandmasters-wiki/internal/service"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated), overrides config")
	topic := flag.String("topic", "", "Kafka topic, overrides config")
	reason := flag.String("reason", "manual", "Reason recorded on each event")
	timeout := flag.Duration("timeout", 10*time.Second, "Publish timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [username ...]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Publishes cache invalidations. Without usernames every cached entry is dropped.")
		fmt.Fprintln(flag.CommandLine.Output())
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	if *topic != "" {
		cfg.Kafka.Topic = *topic
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	usernames, err := targets(flag.Args())
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	producer, err := kafka.NewProducer(&cfg.Kafka, logger)
	if err != nil {
		logger.Error("failed to create producer", "brokers", cfg.Kafka.Brokers, "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := producer.PublishInvalidations(ctx, usernames, *reason); err != nil {
		logger.Error("failed to publish invalidations", "error", err)
		os.Exit(1)
	}

	logger.Info("invalidations published",
		"topic", cfg.Kafka.Topic,
		"usernames", usernames,
		"reason", *reason,
	)
}

// targets validates the usernames to invalidate, defaulting to everything
func targets(args []string) ([]string, error) {
	if len(args) == 0 {
		return []string{service.InvalidateAll}, nil
	}
	for _, username := range args {
		if username == service.InvalidateAll {
			return []string{service.InvalidateAll}, nil
		}
		if err := domain.ValidateUsername(username); err != nil {
			return nil, fmt.Errorf("%q: %w", username, err)
		}
	}
	return args, nil
}
