package sequence

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// Allocator hands out ticket numbers. The counter lives in the clinic
// settings row so numbers stay unique across processes.
type Allocator interface {
	// Allocate consumes the next number on q, which is normally the join
	// transaction. Its signature matches repository.TicketAllocator.
	Allocate(ctx context.Context, q sqlx.QueryerContext) (*model.Allocation, error)
	PeekNext(ctx context.Context) (string, error)
	Reset(ctx context.Context, start int64) error
}

type allocator struct {
	repo    repository.SettingsRepository
	code    string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewAllocator(repo repository.SettingsRepository, code string, logger *logger.Logger, metrics *metrics.Metrics) Allocator {
	return &allocator{
		repo:    repo,
		code:    code,
		logger:  logger,
		metrics: metrics,
	}
}

func (a *allocator) Allocate(ctx context.Context, q sqlx.QueryerContext) (*model.Allocation, error) {
	alloc, err := a.repo.NextQueueNumber(ctx, q)
	if err != nil {
		a.metrics.DatabaseOperations.WithLabelValues("allocate_ticket", "error").Inc()
		a.logger.Error(err, "Ticket allocation failed")
		return nil, err
	}
	a.metrics.DatabaseOperations.WithLabelValues("allocate_ticket", "success").Inc()
	alloc.Ticket = model.FormatTicket(a.code, alloc.Number)
	a.logger.Debug("Ticket allocated", "ticket_number", alloc.Ticket)
	return alloc, nil
}

// PeekNext previews the next ticket without consuming it. Under concurrent
// joins the preview may already be taken by the time a caller uses it.
func (a *allocator) PeekNext(ctx context.Context) (string, error) {
	n, err := a.repo.CurrentQueueNumber(ctx)
	if err != nil {
		return "", err
	}
	return model.FormatTicket(a.code, n+1), nil
}

// Reset rewinds or advances the counter. The next ticket is start+1.
func (a *allocator) Reset(ctx context.Context, start int64) error {
	if start < 0 {
		start = model.DefaultCounterStart
	}
	if err := a.repo.ResetQueueNumber(ctx, start); err != nil {
		return err
	}
	a.logger.Info("Queue counter reset", "start", start)
	return nil
}
