package core

// poller.go runs orchestration passes in the background so queued jobs are
// picked up without waiting for the trigger endpoint. A pass that finds the
// limiter busy is skipped; the next tick tries again.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultPollInterval is used when StartPoller gets a non-positive interval.
const DefaultPollInterval = time.Minute

// StartPoller runs a pass immediately, then every interval, until ctx is
// cancelled. It blocks; run it in its own goroutine.
func (s *Service) StartPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	slog.Info("job poller started", "interval", interval.String())

	s.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job poller stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll performs one pass over every store.
func (s *Service) poll(ctx context.Context) {
	summary, err := s.ProcessPending(ctx, nil)
	switch {
	case errors.Is(err, ErrRunInProgress):
		slog.Debug("poll skipped, pass already running")
	case errors.Is(err, context.Canceled):
	case err != nil:
		slog.Error("poll failed", "error", err)
	case summary.Pending > 0:
		slog.Debug("poll finished",
			"pending", summary.Pending,
			"completed", summary.Completed,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
		)
	}
}
