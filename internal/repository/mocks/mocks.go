// Package mocks holds function-field doubles of the repository interfaces.
// Unset functions return an error so a test notices unexpected calls.
package mocks

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

var errNotImplemented = errors.New("not implemented in mock")

var (
	_ repository.PatientRepository    = (*MockPatientRepository)(nil)
	_ repository.SettingsRepository   = (*MockSettingsRepository)(nil)
	_ repository.ServiceLogRepository = (*MockServiceLogRepository)(nil)
	_ repository.OutboxRepository     = (*MockOutboxRepository)(nil)
)

type MockPatientRepository struct {
	CreateFunc               func(ctx context.Context, contact model.Contact, allocate repository.TicketAllocator) (*model.Patient, error)
	FindByTicketFunc         func(ctx context.Context, ticket string) (*model.Patient, error)
	ListWaitingFunc          func(ctx context.Context) ([]*model.Patient, error)
	ListActiveFunc           func(ctx context.Context) ([]*model.Patient, error)
	StatsFunc                func(ctx context.Context, dayStart time.Time) (*model.QueueStats, error)
	PatientsAheadFunc        func(ctx context.Context, ticket string) (int, error)
	CountWaitingFunc         func(ctx context.Context) (int, error)
	UpdateEstimateFunc       func(ctx context.Context, ticket string, minutes int) error
	TransitionFunc           func(ctx context.Context, ticket string, from, to model.QueueStatus, staffID string) (*model.Patient, error)
	CallNextFunc             func(ctx context.Context, staffID string) (*model.Patient, error)
	DeleteTerminalBeforeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

	TransitionCallCount int32
	CreateCallCount     int32
}

func (m *MockPatientRepository) Create(ctx context.Context, contact model.Contact, allocate repository.TicketAllocator) (*model.Patient, error) {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, contact, allocate)
	}
	return nil, errNotImplemented
}

func (m *MockPatientRepository) FindByTicket(ctx context.Context, ticket string) (*model.Patient, error) {
	if m.FindByTicketFunc != nil {
		return m.FindByTicketFunc(ctx, ticket)
	}
	return nil, errNotImplemented
}

func (m *MockPatientRepository) ListWaiting(ctx context.Context) ([]*model.Patient, error) {
	if m.ListWaitingFunc != nil {
		return m.ListWaitingFunc(ctx)
	}
	return nil, errNotImplemented
}

func (m *MockPatientRepository) ListActive(ctx context.Context) ([]*model.Patient, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, errNotImplemented
}

func (m *MockPatientRepository) Stats(ctx context.Context, dayStart time.Time) (*model.QueueStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, dayStart)
	}
	return nil, errNotImplemented
}

func (m *MockPatientRepository) PatientsAhead(ctx context.Context, ticket string) (int, error) {
	if m.PatientsAheadFunc != nil {
		return m.PatientsAheadFunc(ctx, ticket)
	}
	return 0, errNotImplemented
}

func (m *MockPatientRepository) CountWaiting(ctx context.Context) (int, error) {
	if m.CountWaitingFunc != nil {
		return m.CountWaitingFunc(ctx)
	}
	return 0, errNotImplemented
}

func (m *MockPatientRepository) UpdateEstimate(ctx context.Context, ticket string, minutes int) error {
	if m.UpdateEstimateFunc != nil {
		return m.UpdateEstimateFunc(ctx, ticket, minutes)
	}
	return nil
}

func (m *MockPatientRepository) Transition(ctx context.Context, ticket string, from, to model.QueueStatus, staffID string) (*model.Patient, error) {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, ticket, from, to, staffID)
	}
	return nil, errNotImplemented
}

func (m *MockPatientRepository) CallNext(ctx context.Context, staffID string) (*model.Patient, error) {
	if m.CallNextFunc != nil {
		return m.CallNextFunc(ctx, staffID)
	}
	return nil, errNotImplemented
}

func (m *MockPatientRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteTerminalBeforeFunc != nil {
		return m.DeleteTerminalBeforeFunc(ctx, cutoff)
	}
	return 0, errNotImplemented
}

type MockSettingsRepository struct {
	NextQueueNumberFunc          func(ctx context.Context, q sqlx.QueryerContext) (*model.Allocation, error)
	CurrentQueueNumberFunc       func(ctx context.Context) (int64, error)
	ResetQueueNumberFunc         func(ctx context.Context, start int64) error
	GetFunc                      func(ctx context.Context) (*model.ClinicSettings, error)
	UpdateFunc                   func(ctx context.Context, update model.SettingsUpdate) (*model.ClinicSettings, error)
	SetAverageServiceMinutesFunc func(ctx context.Context, minutes int) error
}

func (m *MockSettingsRepository) NextQueueNumber(ctx context.Context, q sqlx.QueryerContext) (*model.Allocation, error) {
	if m.NextQueueNumberFunc != nil {
		return m.NextQueueNumberFunc(ctx, q)
	}
	return nil, errNotImplemented
}

func (m *MockSettingsRepository) CurrentQueueNumber(ctx context.Context) (int64, error) {
	if m.CurrentQueueNumberFunc != nil {
		return m.CurrentQueueNumberFunc(ctx)
	}
	return 0, errNotImplemented
}

func (m *MockSettingsRepository) ResetQueueNumber(ctx context.Context, start int64) error {
	if m.ResetQueueNumberFunc != nil {
		return m.ResetQueueNumberFunc(ctx, start)
	}
	return errNotImplemented
}

func (m *MockSettingsRepository) Get(ctx context.Context) (*model.ClinicSettings, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx)
	}
	return nil, errNotImplemented
}

func (m *MockSettingsRepository) Update(ctx context.Context, update model.SettingsUpdate) (*model.ClinicSettings, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, update)
	}
	return nil, errNotImplemented
}

func (m *MockSettingsRepository) SetAverageServiceMinutes(ctx context.Context, minutes int) error {
	if m.SetAverageServiceMinutesFunc != nil {
		return m.SetAverageServiceMinutesFunc(ctx, minutes)
	}
	return errNotImplemented
}

// StaticSettings returns a settings mock whose Get always yields s.
func StaticSettings(s model.ClinicSettings) *MockSettingsRepository {
	return &MockSettingsRepository{
		GetFunc: func(context.Context) (*model.ClinicSettings, error) {
			out := s
			return &out, nil
		},
	}
}

type MockServiceLogRepository struct {
	RecentFunc func(ctx context.Context, limit int) ([]*model.ServiceLogEntry, error)
}

func (m *MockServiceLogRepository) Recent(ctx context.Context, limit int) ([]*model.ServiceLogEntry, error) {
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, limit)
	}
	return nil, errNotImplemented
}

type MockOutboxRepository struct {
	ProcessPendingFunc        func(ctx context.Context, limit, maxAttempts int, handle func(*model.OutboxEvent) error) (int, int, error)
	CountPendingFunc          func(ctx context.Context) (int, error)
	DeleteProcessedBeforeFunc func(ctx context.Context, before time.Time) (int64, error)
}

func (m *MockOutboxRepository) ProcessPending(ctx context.Context, limit, maxAttempts int, handle func(*model.OutboxEvent) error) (int, int, error) {
	if m.ProcessPendingFunc != nil {
		return m.ProcessPendingFunc(ctx, limit, maxAttempts, handle)
	}
	return 0, 0, errNotImplemented
}

func (m *MockOutboxRepository) CountPending(ctx context.Context) (int, error) {
	if m.CountPendingFunc != nil {
		return m.CountPendingFunc(ctx)
	}
	return 0, nil
}

func (m *MockOutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	if m.DeleteProcessedBeforeFunc != nil {
		return m.DeleteProcessedBeforeFunc(ctx, before)
	}
	return 0, errNotImplemented
}
