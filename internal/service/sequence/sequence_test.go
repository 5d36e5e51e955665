package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/repository/mocks"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// counterStore models the single-statement increment: every call observes a
// distinct value.
func counterStore(start int64) *mocks.MockSettingsRepository {
	var mu sync.Mutex
	current := start
	return &mocks.MockSettingsRepository{
		NextQueueNumberFunc: func(context.Context, sqlx.QueryerContext) (*model.Allocation, error) {
			mu.Lock()
			defer mu.Unlock()
			current++
			return &model.Allocation{Number: current, AvgServiceMinutes: 15}, nil
		},
		CurrentQueueNumberFunc: func(context.Context) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			return current, nil
		},
		ResetQueueNumberFunc: func(_ context.Context, start int64) error {
			mu.Lock()
			defer mu.Unlock()
			current = start
			return nil
		},
	}
}

func TestAllocateConcurrentIsUnique(t *testing.T) {
	a := NewAllocator(counterStore(100), "CLINIC", logger.Nop(), metrics.NewTest())

	const n = 50
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := a.Allocate(context.Background(), nil)
			if assert.NoError(t, err) {
				results <- alloc.Ticket
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for ticket := range results {
		assert.False(t, seen[ticket], "duplicate ticket %s", ticket)
		seen[ticket] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["CLINIC-101"])
	assert.True(t, seen["CLINIC-150"])
}

func TestPeekNextDoesNotConsume(t *testing.T) {
	a := NewAllocator(counterStore(100), "CLINIC", logger.Nop(), metrics.NewTest())

	next, err := a.PeekNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CLINIC-101", next)

	alloc, err := a.Allocate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "CLINIC-101", alloc.Ticket)
}

func TestReset(t *testing.T) {
	a := NewAllocator(counterStore(140), "EAST", logger.Nop(), metrics.NewTest())

	require.NoError(t, a.Reset(context.Background(), 100))
	alloc, err := a.Allocate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "EAST-101", alloc.Ticket)
}

func TestAllocateFailure(t *testing.T) {
	repo := &mocks.MockSettingsRepository{
		NextQueueNumberFunc: func(context.Context, sqlx.QueryerContext) (*model.Allocation, error) {
			return nil, errors.ErrAllocationFailure
		},
	}
	m := metrics.NewTest()
	a := NewAllocator(repo, "CLINIC", logger.Nop(), m)

	_, err := a.Allocate(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrAllocationFailure)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("allocate_ticket", "error")))
}

func TestAllocatePassesQuerierThrough(t *testing.T) {
	var got sqlx.QueryerContext
	repo := &mocks.MockSettingsRepository{
		NextQueueNumberFunc: func(_ context.Context, q sqlx.QueryerContext) (*model.Allocation, error) {
			got = q
			return &model.Allocation{Number: 101}, nil
		},
	}
	tx := &sqlx.Tx{}
	var allocate repository.TicketAllocator = NewAllocator(repo, "CLINIC", logger.Nop(), metrics.NewTest()).Allocate

	alloc, err := allocate(context.Background(), tx)
	require.NoError(t, err)
	assert.Same(t, tx, got)
	assert.Equal(t, "CLINIC-101", alloc.Ticket)
}

func TestAllocateDoesNotCountIssuedTickets(t *testing.T) {
	m := metrics.NewTest()
	a := NewAllocator(counterStore(100), "CLINIC", logger.Nop(), m)

	_, err := a.Allocate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TicketsIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("allocate_ticket", "success")))
}
