// Package background runs periodic maintenance jobs.
package background

import (
	"context"
	"log/slog"
	"time"
)

// CodeCleaner is the slice of the code store the janitor needs.
type CodeCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CodeJanitor periodically deletes long-expired ephemeral codes. Lookups
// already exclude expired rows, so the job only controls table growth and
// can tolerate failures.
type CodeJanitor struct {
	codes    CodeCleaner
	interval time.Duration
	logger   *slog.Logger
}

func NewCodeJanitor(codes CodeCleaner, interval time.Duration, logger *slog.Logger) *CodeJanitor {
	return &CodeJanitor{codes: codes, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (j *CodeJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("code janitor started", slog.Duration("interval", j.interval))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("code janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *CodeJanitor) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := j.codes.CleanupExpired(sweepCtx)
	if err != nil {
		j.logger.Error("code cleanup failed", slog.Any("error", err))
		return
	}
	if deleted > 0 {
		j.logger.Info("expired codes removed", slog.Int64("count", deleted))
	}
}
