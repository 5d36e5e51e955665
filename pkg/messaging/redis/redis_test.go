package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/pkg/messaging"
)

func newTestBroker(t *testing.T) (messaging.Broker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	logger := zerolog.Nop()

	broker, err := NewRedisBroker(Config{URL: "redis://" + mr.Addr(), PoolSize: 2}, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { broker.Close() })
	return broker, mr
}

func TestRedisBrokerPublishSubscribe(t *testing.T) {
	broker, _ := newTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := broker.Subscribe(ctx, "queue-events")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "queue-events", map[string]string{"type": "patient-joined"}))

	select {
	case msg := <-msgs:
		assert.JSONEq(t, `{"type":"patient-joined"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-msgs
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisBrokerSubscribeEndsOnCancelWhileIdle(t *testing.T) {
	broker, _ := newTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())

	msgs, err := broker.Subscribe(ctx, "queue-events")
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-msgs:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still open after cancel")
	}
}

func TestRedisBrokerAdapterPassesRawJSON(t *testing.T) {
	broker, _ := newTestBroker(t)
	adapter := messaging.NewBrokerAdapter(broker, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	require.NoError(t, adapter.Subscribe(ctx, "queue-events", func(b []byte) error {
		got <- b
		return nil
	}))

	require.NoError(t, adapter.Publish(ctx, "queue-events", []byte(`{"id":"1","type":"patient-called"}`)))
	select {
	case msg := <-got:
		assert.JSONEq(t, `{"id":"1","type":"patient-called"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	assert.Error(t, adapter.Publish(ctx, "queue-events", []byte(`not json`)))
}

func TestNewRedisBrokerUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	logger := zerolog.Nop()
	_, err := NewRedisBroker(Config{URL: "redis://" + addr}, &logger)
	assert.Error(t, err)
}
