package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
)

const patientColumns = `id, ticket_number, status, phone, email, created_at, updated_at,
	called_at, served_at, served_by, estimated_wait, actual_wait`

type patientRepository struct {
	BaseRepository
	now func() time.Time
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{BaseRepository: base, now: time.Now}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create admits a new waiting patient. Same-contact joins are serialized by
// advisory locks so the duplicate check and the insert cannot interleave.
// The ticket number is consumed inside the same transaction, so a failed
// insert does not burn it.
func (r *patientRepository) Create(ctx context.Context, contact model.Contact, allocate repository.TicketAllocator) (*model.Patient, error) {
	var created model.Patient

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if !contact.IsEmpty() {
			if err := lockKeys(ctx, tx, contact.Values()...); err != nil {
				return err
			}

			var existing string
			err := tx.GetContext(ctx, &existing, `
				SELECT ticket_number FROM patients
				WHERE status IN ('waiting', 'in-progress')
				AND (phone = $1 OR email = $2)
				LIMIT 1
			`, nullable(contact.Phone), nullable(contact.Email))
			switch {
			case err == nil:
				return fmt.Errorf("%w: %s", errors.ErrDuplicateActiveTicket, existing)
			case !isNoRows(err):
				return fmt.Errorf("failed to check active tickets: %w", err)
			}
		}

		alloc, err := allocate(ctx, tx)
		if err != nil {
			return err
		}

		var waiting int
		if err := tx.GetContext(ctx, &waiting, `SELECT COUNT(*) FROM patients WHERE status = 'waiting'`); err != nil {
			return fmt.Errorf("failed to count waiting patients: %w", err)
		}

		query := `
			INSERT INTO patients (ticket_number, status, phone, email, estimated_wait, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, clock_timestamp(), clock_timestamp())
			RETURNING ` + patientColumns
		err = tx.GetContext(ctx, &created, query,
			alloc.Ticket,
			string(model.StatusWaiting),
			nullable(contact.Phone),
			nullable(contact.Email),
			waiting*alloc.AvgServiceMinutes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert patient: %w", err)
		}
		ahead := waiting
		created.PatientsAhead = &ahead

		evt, err := model.NewQueueOutboxEvent(&created, "", r.now())
		if err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *patientRepository) FindByTicket(ctx context.Context, ticket string) (*model.Patient, error) {
	var p model.Patient
	err := r.db.GetContext(ctx, &p, `SELECT `+patientColumns+` FROM patients WHERE ticket_number = $1`, ticket)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%s: %w", ticket, errors.ErrTicketNotFound)
		}
		return nil, fmt.Errorf("failed to find ticket %s: %w", ticket, err)
	}
	return &p, nil
}

func (r *patientRepository) ListWaiting(ctx context.Context) ([]*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE status = $1 ORDER BY created_at ASC, id ASC`
	patients := []*model.Patient{}
	if err := r.db.SelectContext(ctx, &patients, query, string(model.StatusWaiting)); err != nil {
		return nil, fmt.Errorf("failed to list waiting patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepository) ListActive(ctx context.Context) ([]*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE status = $1 ORDER BY updated_at ASC, id ASC`
	patients := []*model.Patient{}
	if err := r.db.SelectContext(ctx, &patients, query, string(model.StatusInProgress)); err != nil {
		return nil, fmt.Errorf("failed to list active patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepository) Stats(ctx context.Context, dayStart time.Time) (*model.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'waiting') AS waiting_count,
			COUNT(*) FILTER (WHERE status = 'in-progress') AS active_count,
			COUNT(*) FILTER (WHERE status = 'served' AND served_at >= $1) AS served_count_today,
			MIN(created_at) FILTER (WHERE status = 'waiting') AS oldest_waiting
		FROM patients
	`
	var stats model.QueueStats
	if err := r.db.GetContext(ctx, &stats, query, dayStart); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &stats, nil
}

// PatientsAhead counts waiting entries that arrived before ticket. Equal
// arrival times are ordered by id.
func (r *patientRepository) PatientsAhead(ctx context.Context, ticket string) (int, error) {
	query := `
		SELECT (
			SELECT COUNT(*) FROM patients w
			WHERE w.status = 'waiting'
			AND (w.created_at, w.id) < (t.created_at, t.id)
		) AS ahead
		FROM patients t
		WHERE t.ticket_number = $1
	`
	var ahead int
	if err := r.db.GetContext(ctx, &ahead, query, ticket); err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("%s: %w", ticket, errors.ErrTicketNotFound)
		}
		return 0, fmt.Errorf("failed to compute position of %s: %w", ticket, err)
	}
	return ahead, nil
}

func (r *patientRepository) CountWaiting(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM patients WHERE status = 'waiting'`); err != nil {
		return 0, fmt.Errorf("failed to count waiting patients: %w", err)
	}
	return n, nil
}

func (r *patientRepository) UpdateEstimate(ctx context.Context, ticket string, minutes int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE patients SET estimated_wait = $1 WHERE ticket_number = $2 AND status = 'waiting'`,
		minutes, ticket)
	if err != nil {
		return fmt.Errorf("failed to update estimate of %s: %w", ticket, err)
	}
	return nil
}

// transitionSet holds the extra columns written when entering a status.
var transitionSet = map[model.QueueStatus]string{
	model.StatusInProgress: `called_at = NOW(), served_by = $3`,
	model.StatusServed: `served_at = NOW(), served_by = COALESCE($3, served_by),
		actual_wait = FLOOR(EXTRACT(EPOCH FROM (NOW() - created_at)) / 60)::int`,
	model.StatusNoShow: `served_by = COALESCE($3, served_by)`,
}

// Transition moves ticket from -> to only if it is still in from. Zero
// affected rows means either the ticket is unknown or someone else moved it.
func (r *patientRepository) Transition(
	ctx context.Context,
	ticket string,
	from, to model.QueueStatus,
	staffID string,
) (*model.Patient, error) {
	set, ok := transitionSet[to]
	if !ok || !model.CanTransition(from, to) {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, errors.ErrInvalidTransition)
	}

	var updated model.Patient
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE patients
			SET status = $1, updated_at = NOW(), ` + set + `
			WHERE ticket_number = $2 AND status = $4
			RETURNING ` + patientColumns
		err := tx.GetContext(ctx, &updated, query, string(to), ticket, nullable(staffID), string(from))
		if err != nil {
			if !isNoRows(err) {
				return fmt.Errorf("failed to update status of %s: %w", ticket, err)
			}
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM patients WHERE ticket_number = $1)`, ticket); err != nil {
				return fmt.Errorf("failed to look up %s: %w", ticket, err)
			}
			if !exists {
				return fmt.Errorf("%s: %w", ticket, errors.ErrTicketNotFound)
			}
			return fmt.Errorf("%s is no longer %s: %w", ticket, from, errors.ErrInvalidTransition)
		}

		if to == model.StatusServed {
			if err := insertServiceLog(ctx, tx, &updated); err != nil {
				return err
			}
		}

		evt, err := model.NewQueueOutboxEvent(&updated, staffID, r.now())
		if err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CallNext moves the oldest waiting entry to in-progress. Rows locked by a
// concurrent caller are skipped, so two callers never get the same ticket.
func (r *patientRepository) CallNext(ctx context.Context, staffID string) (*model.Patient, error) {
	var called model.Patient
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE patients
			SET status = 'in-progress', called_at = NOW(), updated_at = NOW(), served_by = $1
			WHERE id = (
				SELECT id FROM patients
				WHERE status = 'waiting'
				ORDER BY created_at ASC, id ASC
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			AND status = 'waiting'
			RETURNING ` + patientColumns
		if err := tx.GetContext(ctx, &called, query, nullable(staffID)); err != nil {
			if isNoRows(err) {
				return errors.ErrQueueEmpty
			}
			return fmt.Errorf("failed to call next patient: %w", err)
		}

		evt, err := model.NewQueueOutboxEvent(&called, staffID, r.now())
		if err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	return &called, nil
}

func (r *patientRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM patients
		WHERE status IN ('served', 'no-show')
		AND created_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tickets: %w", err)
	}
	return result.RowsAffected()
}
