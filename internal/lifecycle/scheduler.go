package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const DefaultJobInterval = 24 * time.Hour

// Scheduler runs the archival job and then the retention purge on a fixed
// interval until its context is cancelled.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(manager *Manager, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if manager == nil {
		return nil, errors.New("lifecycle manager is required")
	}
	if interval <= 0 {
		interval = DefaultJobInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{manager: manager, interval: interval, logger: logger}, nil
}

// Start blocks, running one pass per tick.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce runs both jobs. Archival goes first so records it schedules are
// never purged in the same pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if _, err := s.manager.RunArchival(ctx); err != nil {
		s.logger.ErrorContext(ctx, "archival job failed", "error", err)
	}
	if _, err := s.manager.RunRetentionPurge(ctx); err != nil {
		s.logger.ErrorContext(ctx, "retention purge job failed", "error", err)
	}
}
