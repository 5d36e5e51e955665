package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

// insertOutboxEvent writes evt inside the caller's transaction.
func insertOutboxEvent(ctx context.Context, tx sqlx.ExecerContext, evt *model.OutboxEvent) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if evt.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`
	_, err := tx.ExecContext(ctx, query,
		evt.ID,
		evt.EventType,
		[]byte(evt.Payload),
		evt.Status,
		evt.CreatedAt,
		evt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ProcessPending locks up to limit pending rows, hands each to handle and
// records the outcome, all in one transaction. Rows locked by another
// processor are skipped. A row that fails maxAttempts times is marked failed.
func (r *outboxRepository) ProcessPending(
	ctx context.Context,
	limit, maxAttempts int,
	handle func(*model.OutboxEvent) error,
) (processed, failed int, err error) {
	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT id, event_type, payload, status, error_message, created_at, processed_at, updated_at, retry_count
			FROM outbox_events
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`
		var events []*model.OutboxEvent
		if err := tx.SelectContext(ctx, &events, query, string(model.OutboxStatusPending), limit); err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, evt := range events {
			if handleErr := handle(evt); handleErr != nil {
				failed++
				msg := handleErr.Error()
				status := model.OutboxStatusPending
				if evt.RetryCount+1 >= maxAttempts {
					status = model.OutboxStatusFailed
				}
				if err := r.updateStatusTx(ctx, tx, evt.ID, status, &msg, true); err != nil {
					return err
				}
				continue
			}
			processed++
			if err := r.updateStatusTx(ctx, tx, evt.ID, model.OutboxStatusProcessed, nil, false); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, failed, err
}

func (r *outboxRepository) updateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retried bool) error {
	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_count = retry_count + $3,
			processed_at = CASE WHEN $1 = 'processed' THEN NOW() ELSE processed_at END,
			updated_at = NOW()
		WHERE id = $4
	`
	inc := 0
	if retried {
		inc = 1
	}
	if _, err := tx.ExecContext(ctx, query, string(status), errorMessage, inc, id); err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", id, err)
	}
	return nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM outbox_events WHERE status = $1`, string(model.OutboxStatusPending))
	if err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return n, nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
