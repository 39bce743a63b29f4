package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/grandmasters-wiki/internal/chessapi"
	"github.com/grandmasters-wiki/internal/config"
	"github.com/grandmasters-wiki/internal/logging"
	"github.com/grandmasters-wiki/internal/sitemap"
)

func main() {
	defaults := config.DefaultConfig()

	siteURL := flag.String("site", defaults.Site.URL, "Public site URL")
	apiURL := flag.String("api", defaults.Upstream.BaseURL, "Player directory API base URL")
	out := flag.String("out", "public/sitemap.xml", "Output file")
	timeout := flag.Duration("timeout", 30*time.Second, "Timeout for fetching the directory")
	flag.Parse()

	logger, err := logging.NewLogger(defaults.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := chessapi.New(chessapi.WithBaseURL(*apiURL), chessapi.WithLogger(logger))

	// A homepage-only sitemap beats none when the directory is unavailable
	var usernames []string
	directory, err := client.ListGrandmasters(ctx)
	if err != nil {
		logger.Warn("failed to fetch grandmasters, writing homepage only", "error", err)
	} else {
		usernames = directory.Players
	}

	set := sitemap.Build(*siteURL, usernames, time.Now())

	if err := writeFile(*out, set); err != nil {
		logger.Error("failed to write sitemap", "path", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("sitemap generated",
		"path", *out,
		"urls", len(set.URLs),
		"players", len(usernames),
	)
}

func writeFile(path string, set sitemap.URLSet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if err := sitemap.Write(f, set); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
