package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
)

// DefaultMaxQueueLength caps the waiting list when no limit is configured.
const DefaultMaxQueueLength = 50

// StatsSource reports the current queue counts.
type StatsSource interface {
	Stats(ctx context.Context) (*model.QueueStats, error)
}

type Config struct {
	MaxQueueLength int
	EnforceHours   bool
	Location       *time.Location
}

// Policy decides whether a new patient may join right now.
type Policy struct {
	stats    StatsSource
	settings repository.SettingsRepository
	cfg      Config
	now      func() time.Time
}

func NewPolicy(stats StatsSource, settings repository.SettingsRepository, cfg Config) *Policy {
	if cfg.MaxQueueLength <= 0 {
		cfg.MaxQueueLength = DefaultMaxQueueLength
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Policy{stats: stats, settings: settings, cfg: cfg, now: time.Now}
}

// Check returns ErrClinicClosed or ErrQueueFull when joining must be refused.
// A store failure is returned as is, so a degraded store never admits past
// capacity.
func (p *Policy) Check(ctx context.Context) error {
	if p.cfg.EnforceHours {
		s, err := p.settings.Get(ctx)
		if err != nil {
			return err
		}
		if !s.IsOpenAt(p.now().In(p.cfg.Location)) {
			return errors.ErrClinicClosed
		}
	}

	stats, err := p.stats.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.WaitingCount >= p.cfg.MaxQueueLength {
		return fmt.Errorf("%d patients waiting: %w", stats.WaitingCount, errors.ErrQueueFull)
	}
	return nil
}
