package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// DefaultClientBuffer is how many events a client may fall behind before it
// is disconnected.
const DefaultClientBuffer = 16

// Client is one connected stream. Send is closed when the hub drops it.
type Client struct {
	ID   string
	Send chan []byte
}

// Hub fans broker events out to connected stream clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	buffer  int
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewHub(buffer int, logger *logger.Logger, metrics *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  buffer,
		logger:  logger,
		metrics: metrics,
	}
}

// Run subscribes the hub to channel. Delivery stops when ctx is done.
func (h *Hub) Run(ctx context.Context, broker messaging.MessageBroker, channel string) error {
	if err := broker.Subscribe(ctx, channel, func(payload []byte) error {
		h.Broadcast(payload)
		return nil
	}); err != nil {
		return err
	}
	h.logger.Info("Realtime hub subscribed", "channel", channel)
	return nil
}

// Connect registers a new client.
func (h *Hub) Connect() *Client {
	c := &Client{ID: uuid.NewString(), Send: make(chan []byte, h.buffer)}
	h.Register(c)
	return c
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	h.metrics.RealtimeClients.Set(float64(len(h.clients)))
}

// Unregister removes c and closes its channel. Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.Send)
	h.metrics.RealtimeClients.Set(float64(len(h.clients)))
}

// Broadcast hands payload to every client without blocking. A client whose
// buffer is full is disconnected.
func (h *Hub) Broadcast(payload []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.Send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		h.remove(c)
	}
	h.mu.Unlock()
	h.logger.Warn("Dropped slow realtime clients", "count", len(slow))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. Their streams see a closed channel and end.
func (h *Hub) Close() {
	n := h.ClientCount()
	h.mu.Lock()
	for _, c := range h.clients {
		h.remove(c)
	}
	h.mu.Unlock()
	h.logger.Info("Realtime hub closed", "clients", n)
}
