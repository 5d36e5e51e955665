package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type fakeOutboxRepo struct {
	events  []*model.OutboxEvent
	results map[uuid.UUID]error
	pending int
}

func (f *fakeOutboxRepo) ProcessPending(_ context.Context, limit, _ int, handle func(*model.OutboxEvent) error) (int, int, error) {
	f.results = map[uuid.UUID]error{}
	processed, failed := 0, 0
	for i, evt := range f.events {
		if i >= limit {
			break
		}
		err := handle(evt)
		f.results[evt.ID] = err
		if err != nil {
			failed++
		} else {
			processed++
		}
	}
	return processed, failed, nil
}

func (f *fakeOutboxRepo) CountPending(context.Context) (int, error) { return f.pending, nil }

func (f *fakeOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	published [][]byte
	failFor   string
	calls     int
}

func (b *fakeBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failFor != "" && json.Valid(payload) && contains(payload, b.failFor) {
		return errors.New("redis unavailable")
	}
	b.published = append(b.published, payload)
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string, func([]byte) error) error { return nil }
func (b *fakeBroker) Close() error                                               { return nil }

func contains(payload []byte, s string) bool {
	var env model.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false
	}
	return env.Type == s
}

func TestOutboxProcessorPublishesEnvelopes(t *testing.T) {
	joined := &model.OutboxEvent{ID: uuid.New(), EventType: model.EventPatientJoined, Payload: json.RawMessage(`{"ticketNumber":"CLINIC-101","status":"waiting"}`)}
	called := &model.OutboxEvent{ID: uuid.New(), EventType: model.EventPatientCalled, Payload: json.RawMessage(`{"ticketNumber":"CLINIC-100","status":"in-progress"}`)}
	repo := &fakeOutboxRepo{events: []*model.OutboxEvent{joined, called}}
	broker := &fakeBroker{failFor: model.EventPatientCalled}

	p, err := NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		Channel:       "queue-events",
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, logger.Nop(), metrics.NewTest())
	require.NoError(t, err)

	require.NoError(t, p.ProcessBatch(context.Background()))

	assert.NoError(t, repo.results[joined.ID])
	assert.Error(t, repo.results[called.ID])
	assert.Equal(t, 3, broker.calls, "one publish plus two attempts for the failing event")

	require.Len(t, broker.published, 1)
	var env model.Envelope
	require.NoError(t, json.Unmarshal(broker.published[0], &env))
	assert.Equal(t, joined.ID, env.ID)
	assert.Equal(t, model.EventPatientJoined, env.Type)
	assert.JSONEq(t, `{"ticketNumber":"CLINIC-101","status":"waiting"}`, string(env.Payload))
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	_, err := NewOutboxProcessor(&fakeOutboxRepo{}, &fakeBroker{}, OutboxProcessorConfig{Channel: "queue-events"}, logger.Nop(), metrics.NewTest())
	assert.Error(t, err)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := retry(5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
