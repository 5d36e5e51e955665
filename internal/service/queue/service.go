package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
	"github.com/jwalitptl/clinic-queue/pkg/validator"
)

// DefaultRetentionHours is how long served and no-show entries are kept.
const DefaultRetentionHours = 24

// Estimator refreshes the wait of a single ticket.
type Estimator interface {
	Estimate(ctx context.Context, ticket string) (*model.WaitEstimate, error)
}

// Allocator consumes ticket numbers inside the join transaction.
type Allocator interface {
	Allocate(ctx context.Context, q sqlx.QueryerContext) (*model.Allocation, error)
}

type Config struct {
	Location *time.Location
}

type Service struct {
	patients  repository.PatientRepository
	allocator Allocator
	estimator Estimator
	validator validator.Validator
	cfg       Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(
	patients repository.PatientRepository,
	allocator Allocator,
	estimator Estimator,
	validator validator.Validator,
	cfg Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		patients:  patients,
		allocator: allocator,
		estimator: estimator,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Join issues a ticket to a new arrival. A contact that already holds a
// waiting or in-progress ticket is refused.
func (s *Service) Join(ctx context.Context, contact model.Contact) (*model.Patient, error) {
	contact = contact.Normalize()
	if err := s.validator.Validate(contact); err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}

	patient, err := s.patients.Create(ctx, contact, s.allocator.Allocate)
	if err != nil {
		if errors.Is(err, errors.ErrDuplicateActiveTicket) {
			s.logger.Warn("Duplicate join refused", "phone", contact.Phone, "email", contact.Email)
		} else {
			s.logger.Error(err, "Failed to add patient to queue")
		}
		return nil, err
	}

	s.metrics.TicketsIssued.Inc()
	s.metrics.WaitingPatients.Inc()
	s.logger.Info("Patient joined queue",
		"ticket_number", patient.TicketNumber,
		"estimated_wait", patient.EstimatedWait)
	return patient, nil
}

// FindByTicket returns the entry for ticket. Waiting entries get a fresh
// estimate and position.
func (s *Service) FindByTicket(ctx context.Context, ticket string) (*model.Patient, error) {
	patient, err := s.patients.FindByTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if patient.Status != model.StatusWaiting || s.estimator == nil {
		return patient, nil
	}

	est, err := s.estimator.Estimate(ctx, ticket)
	if err != nil {
		s.logger.Warn("Failed to refresh wait estimate", "ticket_number", ticket, "error", err.Error())
		return patient, nil
	}
	ahead := est.PatientsAhead
	patient.EstimatedWait = est.EstimatedMinutes
	patient.PatientsAhead = &ahead
	return patient, nil
}

func (s *Service) ListWaiting(ctx context.Context) ([]*model.Patient, error) {
	return s.patients.ListWaiting(ctx)
}

func (s *Service) ListActive(ctx context.Context) ([]*model.Patient, error) {
	return s.patients.ListActive(ctx)
}

// Stats counts the queue. Served-today starts at local midnight in the
// clinic's timezone.
func (s *Service) Stats(ctx context.Context) (*model.QueueStats, error) {
	stats, err := s.patients.Stats(ctx, s.dayStart())
	if err != nil {
		return nil, fmt.Errorf("failed to compute queue stats: %w", err)
	}
	s.metrics.WaitingPatients.Set(float64(stats.WaitingCount))
	return stats, nil
}

// StatsOrZero is Stats for display surfaces: a store failure yields zeroed
// counts instead of an error.
func (s *Service) StatsOrZero(ctx context.Context) *model.QueueStats {
	stats, err := s.Stats(ctx)
	if err != nil {
		s.logger.Warn("Serving zeroed queue stats", "error", err.Error())
		return &model.QueueStats{}
	}
	return stats
}

// Transition moves ticket to target. The move is checked against the
// transition table before the store is touched, and the store applies it
// only if the entry is still in the expected prior status.
func (s *Service) Transition(ctx context.Context, ticket, target, staffID string) (*model.Patient, error) {
	to, err := model.ParseQueueStatus(target)
	if err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}
	from, ok := model.PriorStatus(to)
	if !ok || !model.CanTransition(from, to) {
		s.metrics.Transitions.WithLabelValues(string(to), "rejected").Inc()
		return nil, fmt.Errorf("cannot move %s to %s: %w", ticket, to, errors.ErrInvalidTransition)
	}

	patient, err := s.patients.Transition(ctx, ticket, from, to, staffID)
	if err != nil {
		s.metrics.Transitions.WithLabelValues(string(to), "failed").Inc()
		s.logger.Warn("Status transition failed",
			"ticket_number", ticket, "status", string(to), "staff_id", staffID, "error", err.Error())
		return nil, err
	}

	s.recordTransition(patient, staffID)
	return patient, nil
}

// CallNext moves the longest-waiting patient to in-progress.
func (s *Service) CallNext(ctx context.Context, staffID string) (*model.Patient, error) {
	patient, err := s.patients.CallNext(ctx, staffID)
	if err != nil {
		if !errors.Is(err, errors.ErrQueueEmpty) {
			s.logger.Error(err, "Failed to call next patient", "staff_id", staffID)
		}
		return nil, err
	}
	s.recordTransition(patient, staffID)
	return patient, nil
}

// MarkNoShow reports whether ticket was waiting and is now a no-show.
func (s *Service) MarkNoShow(ctx context.Context, ticket string) (bool, error) {
	_, err := s.Transition(ctx, ticket, string(model.StatusNoShow), "")
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errors.ErrInvalidTransition):
		return false, nil
	default:
		return false, err
	}
}

// Cleanup removes served and no-show entries created more than
// retentionHours ago.
func (s *Service) Cleanup(ctx context.Context, retentionHours int) (int64, error) {
	if retentionHours <= 0 {
		retentionHours = DefaultRetentionHours
	}
	cutoff := s.now().Add(-time.Duration(retentionHours) * time.Hour)

	removed, err := s.patients.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error(err, "Queue cleanup failed")
		return 0, err
	}
	s.metrics.TicketsCleanedUp.Add(float64(removed))
	s.logger.Info("Queue cleanup finished", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	return removed, nil
}

func (s *Service) recordTransition(p *model.Patient, staffID string) {
	s.metrics.Transitions.WithLabelValues(string(p.Status), "ok").Inc()
	switch p.Status {
	case model.StatusInProgress:
		s.metrics.TicketsCalled.Inc()
		s.metrics.WaitingPatients.Dec()
	case model.StatusNoShow:
		s.metrics.WaitingPatients.Dec()
	}

	fields := []interface{}{"ticket_number", p.TicketNumber, "status", string(p.Status), "staff_id", staffID}
	if p.ActualWait != nil {
		fields = append(fields, "actual_wait", *p.ActualWait)
	}
	s.logger.Info("Patient status changed", fields...)
}

func (s *Service) dayStart() time.Time {
	now := s.now().In(s.cfg.Location)
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)
}
