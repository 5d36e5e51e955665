package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type serviceLogRepository struct {
	BaseRepository
}

func NewServiceLogRepository(base BaseRepository) repository.ServiceLogRepository {
	return &serviceLogRepository{base}
}

// insertServiceLog appends the log entry for a patient that was just served.
func insertServiceLog(ctx context.Context, tx sqlx.ExecerContext, p *model.Patient) error {
	if p.ServedAt == nil {
		return fmt.Errorf("patient %s has no served time", p.TicketNumber)
	}
	wait := model.WaitMinutes(p.CreatedAt, *p.ServedAt)
	if p.ActualWait != nil {
		wait = *p.ActualWait
	}

	query := `
		INSERT INTO service_logs (ticket_number, checkin_time, called_time, served_time, total_wait_time, staff_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		p.TicketNumber,
		p.CreatedAt,
		p.CalledAt,
		*p.ServedAt,
		wait,
		p.ServedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to write service log for %s: %w", p.TicketNumber, err)
	}
	return nil
}

// Recent returns the newest entries that carry a call time.
func (r *serviceLogRepository) Recent(ctx context.Context, limit int) ([]*model.ServiceLogEntry, error) {
	query := `
		SELECT id, ticket_number, checkin_time, called_time, served_time, total_wait_time, staff_id
		FROM service_logs
		WHERE called_time IS NOT NULL
		ORDER BY served_time DESC
		LIMIT $1
	`
	entries := []*model.ServiceLogEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list service log: %w", err)
	}
	return entries, nil
}
