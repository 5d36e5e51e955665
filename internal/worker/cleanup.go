package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

// QueueCleaner removes finished queue entries.
type QueueCleaner interface {
	Cleanup(ctx context.Context, retentionHours int) (int64, error)
}

type CleanupConfig struct {
	Interval             time.Duration
	RetentionHours       int
	OutboxRetentionHours int
}

// CleanupWorker periodically purges served and no-show entries and
// processed outbox events.
type CleanupWorker struct {
	queue  QueueCleaner
	outbox repository.OutboxRepository
	cfg    CleanupConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewCleanupWorker(queue QueueCleaner, outbox repository.OutboxRepository, cfg CleanupConfig, logger *logger.Logger) *CleanupWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = 24
	}
	if cfg.OutboxRetentionHours <= 0 {
		cfg.OutboxRetentionHours = 24
	}
	return &CleanupWorker{
		queue:  queue,
		outbox: outbox,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (w *CleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("Starting cleanup worker", "interval", w.cfg.Interval.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				// Log error but continue
				w.logger.Error(err, "Cleanup run failed")
			}
		}
	}
}

// RunOnce does one cleanup pass. Both purges are attempted even if the
// first fails.
func (w *CleanupWorker) RunOnce(ctx context.Context) error {
	var firstErr error

	if _, err := w.queue.Cleanup(ctx, w.cfg.RetentionHours); err != nil {
		firstErr = fmt.Errorf("failed to clean up queue: %w", err)
	}

	cutoff := w.now().Add(-time.Duration(w.cfg.OutboxRetentionHours) * time.Hour)
	rows, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to purge outbox: %w", err)
		}
	} else {
		w.logger.Info("Purged processed outbox events", "removed", rows, "cutoff", cutoff.Format(time.RFC3339))
	}

	return firstErr
}
