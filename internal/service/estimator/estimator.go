package estimator

import (
	"context"
	"fmt"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

// Notifier is told about every position computed for a patient. It must not
// block.
type Notifier interface {
	Dispatch(ctx context.Context, patient *model.Patient, position int)
}

type Service struct {
	patients repository.PatientRepository
	settings repository.SettingsRepository
	notifier Notifier
	logger   *logger.Logger
}

func NewService(
	patients repository.PatientRepository,
	settings repository.SettingsRepository,
	notifier Notifier,
	logger *logger.Logger,
) *Service {
	return &Service{
		patients: patients,
		settings: settings,
		notifier: notifier,
		logger:   logger,
	}
}

// Compute is the wait for someone with ahead patients in front of them.
func Compute(ahead, avgMinutes int) int {
	if ahead < 0 || avgMinutes < 0 {
		return 0
	}
	return ahead * avgMinutes
}

// FormatDuration renders minutes as "45 minutes" or, from an hour up, "1h 5m".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// Position is the number of waiting patients ahead of ticket.
func (s *Service) Position(ctx context.Context, ticket string) (int, error) {
	patient, err := s.patients.FindByTicket(ctx, ticket)
	if err != nil {
		return 0, err
	}
	ahead, err := s.patients.PatientsAhead(ctx, ticket)
	if err != nil {
		return 0, err
	}
	s.notify(ctx, patient, ahead)
	return ahead, nil
}

// Estimate recomputes the wait for ticket and stores it on waiting entries.
func (s *Service) Estimate(ctx context.Context, ticket string) (*model.WaitEstimate, error) {
	patient, err := s.patients.FindByTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	ahead, err := s.patients.PatientsAhead(ctx, ticket)
	if err != nil {
		return nil, err
	}
	avg, err := s.averageMinutes(ctx)
	if err != nil {
		return nil, err
	}

	minutes := Compute(ahead, avg)
	if patient.Status == model.StatusWaiting && patient.EstimatedWait != minutes {
		if err := s.patients.UpdateEstimate(ctx, ticket, minutes); err != nil {
			s.logger.Error(err, "Failed to store wait estimate", "ticket_number", ticket)
		}
		patient.EstimatedWait = minutes
	}
	s.notify(ctx, patient, ahead)

	return &model.WaitEstimate{
		TicketNumber:     ticket,
		PatientsAhead:    ahead,
		EstimatedMinutes: minutes,
		Display:          FormatDuration(minutes),
	}, nil
}

// GeneralEstimate is the wait a patient joining now would face.
func (s *Service) GeneralEstimate(ctx context.Context) (*model.GeneralEstimate, error) {
	waiting, err := s.patients.CountWaiting(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := s.averageMinutes(ctx)
	if err != nil {
		return nil, err
	}
	minutes := Compute(waiting, avg)
	return &model.GeneralEstimate{
		WaitingCount:     waiting,
		EstimatedMinutes: minutes,
		Display:          FormatDuration(minutes),
	}, nil
}

func (s *Service) averageMinutes(ctx context.Context) (int, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read average service time: %w", err)
	}
	return settings.AverageServiceMinutes, nil
}

func (s *Service) notify(ctx context.Context, patient *model.Patient, position int) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(ctx, patient, position)
}
