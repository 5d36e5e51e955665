package queue

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

const (
	eventQueueState = "queue-state"
	eventPing       = "ping"
)

// Stream pushes queue events to the client as server-sent events. The first
// event is the current queue state.
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	client := h.hub.Connect()
	defer h.hub.Unregister(client)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Render(-1, sse.Event{Event: eventQueueState, Data: h.queue.StatsOrZero(ctx)})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.Render(-1, sse.Event{Event: eventPing, Data: time.Now().UTC().Format(time.RFC3339)})
			return true
		case msg, ok := <-client.Send:
			if !ok {
				return false
			}
			c.Render(-1, toEvent(msg))
			return true
		}
	})
}

// toEvent names the SSE event after the envelope type so browsers can
// listen per event kind.
func toEvent(msg []byte) sse.Event {
	var env model.Envelope
	if err := json.Unmarshal(msg, &env); err != nil || env.Type == "" {
		return sse.Event{Event: "message", Data: json.RawMessage(msg)}
	}
	return sse.Event{Id: env.ID.String(), Event: env.Type, Data: json.RawMessage(msg)}
}
