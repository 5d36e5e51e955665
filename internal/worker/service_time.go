package worker

import (
	"context"
	"math"
	"time"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

// AverageSetter stores the average service time.
type AverageSetter interface {
	SetAverageServiceMinutes(ctx context.Context, minutes int) error
}

// ServiceTimeWorker keeps the average service time in line with how long
// recent patients actually spent at the counter.
type ServiceTimeWorker struct {
	logs     repository.ServiceLogRepository
	settings AverageSetter
	interval time.Duration
	window   int
	logger   *logger.Logger
}

func NewServiceTimeWorker(logs repository.ServiceLogRepository, settings AverageSetter, interval time.Duration, window int, logger *logger.Logger) *ServiceTimeWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if window <= 0 {
		window = 20
	}
	return &ServiceTimeWorker{
		logs:     logs,
		settings: settings,
		interval: interval,
		window:   window,
		logger:   logger,
	}
}

func (w *ServiceTimeWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error(err, "Service time recompute failed")
			}
		}
	}
}

// RunOnce recomputes the average from the latest window entries. It
// returns 0 and changes nothing when there are no samples.
func (w *ServiceTimeWorker) RunOnce(ctx context.Context) (int, error) {
	entries, err := w.logs.Recent(ctx, w.window)
	if err != nil {
		return 0, err
	}

	var total float64
	var n int
	for _, e := range entries {
		if minutes, ok := e.ServiceMinutes(); ok {
			total += minutes
			n++
		}
	}
	if n == 0 {
		w.logger.Debug("No service samples, keeping average")
		return 0, nil
	}

	avg := int(math.Round(total / float64(n)))
	switch {
	case avg < model.MinAverageServiceMinutes:
		avg = model.MinAverageServiceMinutes
	case avg > model.MaxAverageServiceMinutes:
		avg = model.MaxAverageServiceMinutes
	}
	if err := w.settings.SetAverageServiceMinutes(ctx, avg); err != nil {
		return 0, err
	}
	return avg, nil
}
