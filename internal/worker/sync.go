package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/grandmasters-wiki/internal/config"
	"github.com/grandmasters-wiki/internal/domain"
)

const reasonRemoved = "removed_from_directory"

// Directory is the part of the directory service the worker drives
type Directory interface {
	RefreshDirectory(ctx context.Context) (*domain.DirectoryChange, error)
	WarmDirectory(ctx context.Context) (int, error)
	ForgetPlayers(ctx context.Context, usernames []string) error
	PrefetchPlayers(ctx context.Context, usernames []string) int
}

// Publisher announces invalidations to other instances
type Publisher interface {
	PublishInvalidations(ctx context.Context, usernames []string, reason string) error
}

// SyncWorker periodically refreshes the directory from the upstream
type SyncWorker struct {
	directory Directory
	publisher Publisher
	config    *config.SyncConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewSyncWorker creates a new sync worker. publisher may be nil.
func NewSyncWorker(
	directory Directory,
	publisher Publisher,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		directory: directory,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	// fresh channels so the worker can be started again after Stop
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx, stopCh, doneCh)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.sync(ctx)
		}
	}
}

// sync refreshes the directory and reconciles players that joined or left
func (w *SyncWorker) sync(ctx context.Context) *domain.DirectoryChange {
	w.logger.Info("starting sync cycle")
	startTime := time.Now()

	change, err := w.directory.RefreshDirectory(ctx)
	if err != nil {
		w.logger.Error("failed to refresh directory", "error", err)
		return nil
	}

	if len(change.Removed) > 0 {
		if err := w.directory.ForgetPlayers(ctx, change.Removed); err != nil {
			w.logger.Error("failed to forget removed players", "count", len(change.Removed), "error", err)
		}
		if w.publisher != nil {
			if err := w.publisher.PublishInvalidations(ctx, change.Removed, reasonRemoved); err != nil {
				w.logger.Warn("failed to publish invalidations", "count", len(change.Removed), "error", err)
			}
		}
	}

	prefetched := 0
	if w.config.PrefetchProfiles && len(change.Added) > 0 {
		prefetched = w.directory.PrefetchPlayers(ctx, change.Added)
	}

	w.logger.Info("sync cycle completed",
		"duration", time.Since(startTime),
		"total", change.Total,
		"added", len(change.Added),
		"removed", len(change.Removed),
		"prefetched", prefetched,
	)
	return change
}

// Warm loads the stored directory snapshot into the cache. This is useful
// for recovery after a restart while the upstream is unreachable.
func (w *SyncWorker) Warm(ctx context.Context) error {
	w.logger.Info("warming directory from snapshot")

	count, err := w.directory.WarmDirectory(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("completed warming directory from snapshot", "count", count)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sync cycle (useful for manual triggers). It returns
// nil when the refresh failed.
func (w *SyncWorker) RunOnce(ctx context.Context) *domain.DirectoryChange {
	return w.sync(ctx)
}
