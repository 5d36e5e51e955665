package settings

import (
	"context"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
	"github.com/jwalitptl/clinic-queue/pkg/validator"
)

type Service struct {
	repo      repository.SettingsRepository
	validator validator.Validator
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(repo repository.SettingsRepository, validator validator.Validator, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		repo:      repo,
		validator: validator,
		logger:    logger,
		metrics:   metrics,
	}
}

func (s *Service) Get(ctx context.Context) (*model.ClinicSettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ServiceMinutes.Set(float64(settings.AverageServiceMinutes))
	return settings, nil
}

// Update applies the fields present in update and returns the new row.
func (s *Service) Update(ctx context.Context, update model.SettingsUpdate) (*model.ClinicSettings, error) {
	if update.IsEmpty() {
		return nil, errors.BadRequest("no valid fields to update", nil)
	}
	if err := s.validator.Validate(update); err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}

	settings, err := s.repo.Update(ctx, update)
	if err != nil {
		s.logger.Error(err, "Failed to update clinic settings")
		return nil, err
	}

	cols, _ := update.Columns()
	s.metrics.ServiceMinutes.Set(float64(settings.AverageServiceMinutes))
	s.logger.Info("Clinic settings updated", "columns", cols)
	return settings, nil
}

// SetAverageServiceMinutes stores a recomputed average service time.
func (s *Service) SetAverageServiceMinutes(ctx context.Context, minutes int) error {
	if err := s.validator.ValidateVar("avg_service_time", minutes, "min=1,max=240"); err != nil {
		return errors.BadRequest(err.Error(), err)
	}
	if err := s.repo.SetAverageServiceMinutes(ctx, minutes); err != nil {
		return err
	}
	s.metrics.ServiceMinutes.Set(float64(minutes))
	s.logger.Info("Average service time updated", "minutes", minutes)
	return nil
}
