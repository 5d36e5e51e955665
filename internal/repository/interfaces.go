package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

// TicketAllocator consumes the next ticket number. q is the transaction the
// caller is inserting in; nil means the connection pool.
type TicketAllocator func(ctx context.Context, q sqlx.QueryerContext) (*model.Allocation, error)

// All repository interfaces in one file
type (
	// SettingsRepository owns the clinic_settings singleton, including the
	// ticket counter.
	SettingsRepository interface {
		NextQueueNumber(ctx context.Context, q sqlx.QueryerContext) (*model.Allocation, error)
		CurrentQueueNumber(ctx context.Context) (int64, error)
		ResetQueueNumber(ctx context.Context, start int64) error
		Get(ctx context.Context) (*model.ClinicSettings, error)
		Update(ctx context.Context, update model.SettingsUpdate) (*model.ClinicSettings, error)
		SetAverageServiceMinutes(ctx context.Context, minutes int) error
	}

	// PatientRepository stores queue entries. Every mutating method writes
	// its outbox event in the same transaction.
	PatientRepository interface {
		Create(ctx context.Context, contact model.Contact, allocate TicketAllocator) (*model.Patient, error)
		FindByTicket(ctx context.Context, ticket string) (*model.Patient, error)
		ListWaiting(ctx context.Context) ([]*model.Patient, error)
		ListActive(ctx context.Context) ([]*model.Patient, error)
		Stats(ctx context.Context, dayStart time.Time) (*model.QueueStats, error)
		PatientsAhead(ctx context.Context, ticket string) (int, error)
		CountWaiting(ctx context.Context) (int, error)
		UpdateEstimate(ctx context.Context, ticket string, minutes int) error
		Transition(ctx context.Context, ticket string, from, to model.QueueStatus, staffID string) (*model.Patient, error)
		CallNext(ctx context.Context, staffID string) (*model.Patient, error)
		DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	ServiceLogRepository interface {
		Recent(ctx context.Context, limit int) ([]*model.ServiceLogEntry, error)
	}

	OutboxRepository interface {
		ProcessPending(ctx context.Context, limit, maxAttempts int, handle func(*model.OutboxEvent) error) (processed, failed int, err error)
		CountPending(ctx context.Context) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
