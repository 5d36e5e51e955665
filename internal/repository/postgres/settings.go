package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
)

const settingsColumns = `id, clinic_name, current_queue_number, avg_service_time, opening_time,
	closing_time, contact_phone, contact_email, address, updated_at`

type settingsRepository struct {
	BaseRepository
}

func NewSettingsRepository(base BaseRepository) repository.SettingsRepository {
	return &settingsRepository{base}
}

// NextQueueNumber bumps the counter in a single statement, so concurrent
// callers always observe distinct values. A nil q runs on the pool.
func (r *settingsRepository) NextQueueNumber(ctx context.Context, q sqlx.QueryerContext) (*model.Allocation, error) {
	if q == nil {
		q = r.db
	}
	query := `
		UPDATE clinic_settings
		SET current_queue_number = current_queue_number + 1
		WHERE id = 1
		RETURNING current_queue_number, avg_service_time
	`
	var a model.Allocation
	if err := sqlx.GetContext(ctx, q, &a, query); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: clinic settings row missing", errors.ErrAllocationFailure)
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrAllocationFailure, err)
	}
	return &a, nil
}

func (r *settingsRepository) CurrentQueueNumber(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT current_queue_number FROM clinic_settings WHERE id = 1`)
	if err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("%w: clinic settings row missing", errors.ErrAllocationFailure)
		}
		return 0, fmt.Errorf("failed to read queue counter: %w", err)
	}
	return n, nil
}

func (r *settingsRepository) ResetQueueNumber(ctx context.Context, start int64) error {
	query := `
		UPDATE clinic_settings
		SET current_queue_number = $1, updated_at = NOW()
		WHERE id = 1
	`
	result, err := r.db.ExecContext(ctx, query, start)
	if err != nil {
		return fmt.Errorf("failed to reset queue counter: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: clinic settings row missing", errors.ErrAllocationFailure)
	}
	return nil
}

func (r *settingsRepository) Get(ctx context.Context) (*model.ClinicSettings, error) {
	var s model.ClinicSettings
	err := r.db.GetContext(ctx, &s, `SELECT `+settingsColumns+` FROM clinic_settings WHERE id = 1`)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("clinic settings", err)
		}
		return nil, fmt.Errorf("failed to get clinic settings: %w", err)
	}
	return &s, nil
}

// Update writes only the columns present in update. Column names come from
// SettingsUpdate.Columns, never from the request.
func (r *settingsRepository) Update(ctx context.Context, update model.SettingsUpdate) (*model.ClinicSettings, error) {
	cols, vals := update.Columns()
	if len(cols) == 0 {
		return nil, errors.BadRequest("no settings to update", nil)
	}

	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(
		`UPDATE clinic_settings SET %s WHERE id = 1 RETURNING %s`,
		strings.Join(sets, ", "), settingsColumns,
	)

	var s model.ClinicSettings
	if err := r.db.GetContext(ctx, &s, query, vals...); err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("clinic settings", err)
		}
		return nil, fmt.Errorf("failed to update clinic settings: %w", err)
	}
	return &s, nil
}

func (r *settingsRepository) SetAverageServiceMinutes(ctx context.Context, minutes int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clinic_settings SET avg_service_time = $1, updated_at = NOW() WHERE id = 1`, minutes)
	if err != nil {
		return fmt.Errorf("failed to update average service time: %w", err)
	}
	return nil
}
