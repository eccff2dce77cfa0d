package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/metrics"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/store"
)

// HousekeepingService periodically drops revocation entries whose refresh
// token has expired, keeping the list from growing without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Metrics  *metrics.Metrics

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(s store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    s,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to end it.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one cleanup pass and reports how many entries it removed.
func (s *HousekeepingService) Sweep(ctx context.Context) int64 {
	n, err := s.Store.Revocations().DeleteExpired(ctx)
	if err != nil {
		s.Logger.Error("failed to delete expired revocations", "error", err)
		return 0
	}
	if s.Metrics != nil {
		s.Metrics.RevocationsSwept.Add(float64(n))
	}
	s.Logger.Debug("housekeeping sweep completed", "deleted", n)
	return n
}
