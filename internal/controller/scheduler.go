package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dockhand/dockhand/internal/gitsync"
	"github.com/dockhand/dockhand/internal/store"
)

// SchedulerConfig controls the periodic repository sync loop.
type SchedulerConfig struct {
	Interval    time.Duration
	SyncTimeout time.Duration
}

// LoadSchedulerConfigFromEnv loads scheduler config from environment variables.
func LoadSchedulerConfigFromEnv() (SchedulerConfig, error) {
	interval := time.Hour
	if value := strings.TrimSpace(os.Getenv("DOCKHAND_SYNC_INTERVAL")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return SchedulerConfig{}, fmt.Errorf("invalid DOCKHAND_SYNC_INTERVAL: %s", value)
		}
		if parsed > 0 {
			interval = parsed
		}
	}

	timeout := 10 * time.Minute
	if value := strings.TrimSpace(os.Getenv("DOCKHAND_SYNC_TIMEOUT")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return SchedulerConfig{}, fmt.Errorf("invalid DOCKHAND_SYNC_TIMEOUT: %s", value)
		}
		if parsed > 0 {
			timeout = parsed
		}
	}

	return SchedulerConfig{
		Interval:    interval,
		SyncTimeout: timeout,
	}, nil
}

// Scheduler periodically resyncs every enabled repository and rebuilds the
// catalog from the fresh checkouts.
type Scheduler struct {
	Store       store.Store
	Coordinator *gitsync.Coordinator
	Logger      *slog.Logger
	Config      SchedulerConfig

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new sync scheduler.
func NewScheduler(s store.Store, coordinator *gitsync.Coordinator, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		Store:       s,
		Coordinator: coordinator,
		Logger:      logger,
		Config:      cfg,
	}
}

// Run starts the sync loop. It performs one sync immediately, then again on
// every interval tick until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.Logger != nil {
				s.Logger.Info("Sync scheduler stopped")
			}
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	syncCtx, cancel := context.WithTimeout(ctx, s.Config.SyncTimeout)
	defer cancel()

	sources, err := s.Store.ListEnabledRepositories(syncCtx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("Failed to list repositories for sync", "error", err)
		}
		return
	}
	if len(sources) == 0 {
		if s.Logger != nil {
			s.Logger.Info("No enabled repositories to sync")
		}
		return
	}

	result := s.Coordinator.SyncAll(syncCtx, sources)
	if s.Logger != nil {
		s.Logger.Info("Scheduled sync complete",
			"repos_synced", result.ReposSynced,
			"apps_loaded", result.AppsLoaded,
			"errors", len(result.Errors))
	}
}
