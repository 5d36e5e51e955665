package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func newTestPatientRepo(db *sqlx.DB) *patientRepository {
	return &patientRepository{
		BaseRepository: NewBaseRepository(db),
		now:            func() time.Time { return fixedNow },
	}
}

var patientCols = []string{
	"id", "ticket_number", "status", "phone", "email", "created_at", "updated_at",
	"called_at", "served_at", "served_by", "estimated_wait", "actual_wait",
}

func q(s string) string { return regexp.QuoteMeta(s) }

// counterAllocator consumes the settings counter on whatever querier Create
// hands it.
func counterAllocator(db *sqlx.DB, used *sqlx.QueryerContext) repository.TicketAllocator {
	settings := NewSettingsRepository(NewBaseRepository(db))
	return func(ctx context.Context, querier sqlx.QueryerContext) (*model.Allocation, error) {
		if used != nil {
			*used = querier
		}
		a, err := settings.NextQueueNumber(ctx, querier)
		if err != nil {
			return nil, err
		}
		a.Ticket = model.FormatTicket("CLINIC", a.Number)
		return a, nil
	}
}

func TestPatientRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)
	created := fixedNow

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("555-0100").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT ticket_number FROM patients")).
		WithArgs("555-0100", nil).
		WillReturnRows(sqlmock.NewRows([]string{"ticket_number"}))
	mock.ExpectQuery(q("UPDATE clinic_settings")).
		WillReturnRows(sqlmock.NewRows([]string{"current_queue_number", "avg_service_time"}).AddRow(101, 15))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM patients WHERE status = 'waiting'")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(q("VALUES ($1, $2, $3, $4, $5, clock_timestamp(), clock_timestamp())")).
		WithArgs("CLINIC-101", "waiting", "555-0100", nil, 30).
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(7, "CLINIC-101", "waiting", "555-0100", nil, created, created, nil, nil, nil, 30, nil))
	mock.ExpectExec(q("INSERT INTO outbox_events")).
		WithArgs(sqlmock.AnyArg(), model.EventPatientJoined, sqlmock.AnyArg(), "pending", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var used sqlx.QueryerContext
	p, err := repo.Create(context.Background(), model.Contact{Phone: "555-0100"}, counterAllocator(db, &used))
	require.NoError(t, err)
	assert.IsType(t, &sqlx.Tx{}, used)
	assert.Equal(t, "CLINIC-101", p.TicketNumber)
	assert.Equal(t, model.StatusWaiting, p.Status)
	assert.Equal(t, 30, p.EstimatedWait)
	require.NotNil(t, p.PatientsAhead)
	assert.Equal(t, 2, *p.PatientsAhead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_CreateAnonymousSkipsDuplicateCheck(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE clinic_settings")).
		WillReturnRows(sqlmock.NewRows([]string{"current_queue_number", "avg_service_time"}).AddRow(102, 15))
	mock.ExpectQuery(q("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(q("INSERT INTO patients")).
		WithArgs("CLINIC-102", "waiting", nil, nil, 0).
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(8, "CLINIC-102", "waiting", nil, nil, fixedNow, fixedNow, nil, nil, nil, 0, nil))
	mock.ExpectExec(q("INSERT INTO outbox_events")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p, err := repo.Create(context.Background(), model.Contact{}, counterAllocator(db, nil))
	require.NoError(t, err)
	assert.Equal(t, "CLINIC-102", p.TicketNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_CreateDuplicate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("pg_advisory_xact_lock")).WithArgs("555-0100").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("pg_advisory_xact_lock")).WithArgs("ana@example.com").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT ticket_number FROM patients")).
		WithArgs("555-0100", "ana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"ticket_number"}).AddRow("CLINIC-105"))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), model.Contact{Phone: "555-0100", Email: "ana@example.com"}, counterAllocator(db, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateActiveTicket)
	assert.Contains(t, err.Error(), "CLINIC-105")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_CreateAllocationFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE clinic_settings")).
		WillReturnRows(sqlmock.NewRows([]string{"current_queue_number", "avg_service_time"}))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), model.Contact{}, counterAllocator(db, nil))
	assert.ErrorIs(t, err, errors.ErrAllocationFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_FindByTicket(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectQuery(q("FROM patients WHERE ticket_number = $1")).
		WithArgs("CLINIC-101").
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(7, "CLINIC-101", "in-progress", nil, "ana@example.com", fixedNow, fixedNow, fixedNow, nil, "staff-1", 0, nil))

	p, err := repo.FindByTicket(context.Background(), "CLINIC-101")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, p.Status)
	require.NotNil(t, p.Email)
	assert.Equal(t, "ana@example.com", *p.Email)
	assert.Nil(t, p.Phone)

	mock.ExpectQuery(q("FROM patients WHERE ticket_number = $1")).
		WithArgs("CLINIC-999").
		WillReturnRows(sqlmock.NewRows(patientCols))

	_, err = repo.FindByTicket(context.Background(), "CLINIC-999")
	assert.ErrorIs(t, err, errors.ErrTicketNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_ListWaitingOrdersByArrival(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectQuery(q("ORDER BY created_at ASC, id ASC")).
		WithArgs("waiting").
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(3, "CLINIC-101", "waiting", nil, nil, fixedNow, fixedNow, nil, nil, nil, 0, nil).
			AddRow(4, "CLINIC-102", "waiting", nil, nil, fixedNow, fixedNow, nil, nil, nil, 15, nil))

	patients, err := repo.ListWaiting(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, "CLINIC-101", patients[0].TicketNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_ListActiveEmpty(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectQuery(q("ORDER BY updated_at ASC, id ASC")).
		WithArgs("in-progress").
		WillReturnRows(sqlmock.NewRows(patientCols))

	patients, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, patients)
	assert.Empty(t, patients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_PatientsAhead(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectQuery(q("(w.created_at, w.id) < (t.created_at, t.id)")).
		WithArgs("CLINIC-103").
		WillReturnRows(sqlmock.NewRows([]string{"ahead"}).AddRow(2))

	ahead, err := repo.PatientsAhead(context.Background(), "CLINIC-103")
	require.NoError(t, err)
	assert.Equal(t, 2, ahead)

	mock.ExpectQuery(q("(w.created_at, w.id) < (t.created_at, t.id)")).
		WithArgs("CLINIC-404").
		WillReturnRows(sqlmock.NewRows([]string{"ahead"}))

	_, err = repo.PatientsAhead(context.Background(), "CLINIC-404")
	assert.ErrorIs(t, err, errors.ErrTicketNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_Stats(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)
	dayStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	oldest := fixedNow.Add(-40 * time.Minute)

	mock.ExpectQuery(q("COUNT(*) FILTER (WHERE status = 'served' AND served_at >= $1)")).
		WithArgs(dayStart).
		WillReturnRows(sqlmock.NewRows([]string{"total", "waiting_count", "active_count", "served_count_today", "oldest_waiting"}).
			AddRow(9, 4, 1, 3, oldest))

	stats, err := repo.Stats(context.Background(), dayStart)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.WaitingCount)
	assert.Equal(t, 1, stats.ActiveCount)
	assert.Equal(t, 3, stats.ServedCountToday)
	require.NotNil(t, stats.OldestWaitingTimestamp)
	assert.Equal(t, oldest, *stats.OldestWaitingTimestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_TransitionServed(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)
	created := fixedNow.Add(-42 * time.Minute)
	called := fixedNow.Add(-10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(q("WHERE ticket_number = $2 AND status = $4")).
		WithArgs("served", "CLINIC-101", "staff-1", "in-progress").
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(7, "CLINIC-101", "served", nil, nil, created, fixedNow, called, fixedNow, "staff-1", 0, 42))
	mock.ExpectExec(q("INSERT INTO service_logs")).
		WithArgs("CLINIC-101", created, called, fixedNow, 42, "staff-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q("INSERT INTO outbox_events")).
		WithArgs(sqlmock.AnyArg(), model.EventPatientServed, sqlmock.AnyArg(), "pending", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p, err := repo.Transition(context.Background(), "CLINIC-101", model.StatusInProgress, model.StatusServed, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusServed, p.Status)
	require.NotNil(t, p.ActualWait)
	assert.Equal(t, 42, *p.ActualWait)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_TransitionServedWithoutStoredWait(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)
	created := fixedNow.Add(-42*time.Minute - 30*time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(q("WHERE ticket_number = $2 AND status = $4")).
		WithArgs("served", "CLINIC-101", "staff-1", "in-progress").
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(7, "CLINIC-101", "served", nil, nil, created, fixedNow, nil, fixedNow, "staff-1", 0, nil))
	mock.ExpectExec(q("INSERT INTO service_logs")).
		WithArgs("CLINIC-101", created, nil, fixedNow, 42, "staff-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q("INSERT INTO outbox_events")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := repo.Transition(context.Background(), "CLINIC-101", model.StatusInProgress, model.StatusServed, "staff-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_TransitionConflicts(t *testing.T) {
	t.Run("unknown ticket", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := newTestPatientRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(q("UPDATE patients")).
			WithArgs("in-progress", "CLINIC-404", nil, "waiting").
			WillReturnRows(sqlmock.NewRows(patientCols))
		mock.ExpectQuery(q("SELECT EXISTS")).
			WithArgs("CLINIC-404").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, err := repo.Transition(context.Background(), "CLINIC-404", model.StatusWaiting, model.StatusInProgress, "")
		assert.ErrorIs(t, err, errors.ErrTicketNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already moved", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := newTestPatientRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(q("UPDATE patients")).
			WithArgs("in-progress", "CLINIC-101", "staff-2", "waiting").
			WillReturnRows(sqlmock.NewRows(patientCols))
		mock.ExpectQuery(q("SELECT EXISTS")).
			WithArgs("CLINIC-101").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := repo.Transition(context.Background(), "CLINIC-101", model.StatusWaiting, model.StatusInProgress, "staff-2")
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("illegal pair never touches the store", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := newTestPatientRepo(db)

		_, err := repo.Transition(context.Background(), "CLINIC-101", model.StatusServed, model.StatusWaiting, "")
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPatientRepository_CallNext(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE SKIP LOCKED")).
		WithArgs("staff-1").
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(3, "CLINIC-101", "in-progress", nil, nil, fixedNow, fixedNow, fixedNow, nil, "staff-1", 0, nil))
	mock.ExpectExec(q("INSERT INTO outbox_events")).
		WithArgs(sqlmock.AnyArg(), model.EventPatientCalled, sqlmock.AnyArg(), "pending", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p, err := repo.CallNext(context.Background(), "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "CLINIC-101", p.TicketNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_CallNextEmptyQueue(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE SKIP LOCKED")).WillReturnRows(sqlmock.NewRows(patientCols))
	mock.ExpectRollback()

	_, err := repo.CallNext(context.Background(), "staff-1")
	assert.ErrorIs(t, err, errors.ErrQueueEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_DeleteTerminalBefore(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newTestPatientRepo(db)
	cutoff := fixedNow.Add(-24 * time.Hour)

	mock.ExpectExec(q("WHERE status IN ('served', 'no-show')")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
