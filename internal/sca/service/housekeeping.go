package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/cache"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
)

// HousekeepingService periodically deletes finished authorisations past
// their retention and evicts lapsed redirect ids from the cache.
type HousekeepingService struct {
	Store     store.Store
	Cache     cache.Client
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
	Now       func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to 1 hour and a non-positive retention to 30 days.
func NewHousekeepingService(st store.Store, c cache.Client, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	return &HousekeepingService{
		Store:     st,
		Cache:     c,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		Now:       func() time.Time { return time.Now().UTC() },
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. Each step is independent, a failure in one doesn't
// stop the other.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := s.Now()

	deleted, err := s.Store.Authorisations().DeleteTerminalAuthorisations(ctx, now.Add(-s.Retention))
	if err != nil {
		s.Logger.Error("failed to delete finished authorisations", "error", err)
	} else if deleted > 0 {
		s.Logger.Info("deleted finished authorisations", "count", deleted)
	}

	if s.Cache == nil {
		return
	}
	ids, err := s.Store.Authorisations().ListRedirectsExpiredBefore(ctx, now)
	if err != nil {
		s.Logger.Error("failed to list expired redirects", "error", err)
		return
	}
	for _, id := range ids {
		if err := s.Cache.Delete(ctx, redirectKey(id)); err != nil {
			s.Logger.Warn("failed to evict redirect", "redirect_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		s.Logger.Debug("evicted expired redirects", "count", len(ids))
	}
}
