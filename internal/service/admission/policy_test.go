package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository/mocks"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
)

type fixedStats struct {
	stats *model.QueueStats
	err   error
}

func (f fixedStats) Stats(context.Context) (*model.QueueStats, error) {
	return f.stats, f.err
}

func hours(open, close string) model.ClinicSettings {
	return model.ClinicSettings{OpeningTime: &open, ClosingTime: &close, AverageServiceMinutes: 15}
}

func TestPolicyCheck(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		at      time.Time
		waiting int
		statErr error
		wantErr error
	}{
		{name: "open with room", cfg: Config{EnforceHours: true}, at: at(10, 0), waiting: 3},
		{name: "before opening", cfg: Config{EnforceHours: true}, at: at(7, 59), wantErr: errors.ErrClinicClosed},
		{name: "at closing", cfg: Config{EnforceHours: true}, at: at(17, 0), wantErr: errors.ErrClinicClosed},
		{name: "hours not enforced", cfg: Config{}, at: at(23, 0), waiting: 3},
		{name: "full at default limit", cfg: Config{}, at: at(10, 0), waiting: 50, wantErr: errors.ErrQueueFull},
		{name: "one below limit", cfg: Config{MaxQueueLength: 5}, at: at(10, 0), waiting: 4},
		{name: "full at custom limit", cfg: Config{MaxQueueLength: 5}, at: at(10, 0), waiting: 5, wantErr: errors.ErrQueueFull},
		{name: "store failure", cfg: Config{}, at: at(10, 0), statErr: errors.ErrStoreUnavailable, wantErr: errors.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(
				fixedStats{stats: &model.QueueStats{WaitingCount: tt.waiting}, err: tt.statErr},
				mocks.StaticSettings(hours("08:00:00", "17:00:00")),
				tt.cfg,
			)
			p.now = func() time.Time { return tt.at }

			err := p.Check(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.statErr == nil {
				assert.Equal(t, 400, errors.HTTPStatus(err))
			}
		})
	}
}

func TestPolicyUsesClinicTimezone(t *testing.T) {
	loc := time.FixedZone("clinic", 9*3600)
	p := NewPolicy(fixedStats{stats: &model.QueueStats{}}, mocks.StaticSettings(hours("08:00:00", "17:00:00")),
		Config{EnforceHours: true, Location: loc})

	// 01:00 UTC is 10:00 at the clinic
	p.now = func() time.Time { return time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC) }
	assert.NoError(t, p.Check(context.Background()))

	p.now = func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC) }
	assert.ErrorIs(t, p.Check(context.Background()), errors.ErrClinicClosed)
}

func at(h, m int) time.Time {
	return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC)
}
