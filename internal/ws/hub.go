package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agentspace/internal/models"
	"agentspace/internal/observability"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second

	wsRoutingKey = "ws_events.board"
)

// EventPublisher forwards connection lifecycle events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Hub maintains the set of open push connections.
type Hub struct {
	conns     map[*Connection]struct{}
	epoch     uint64
	mu        sync.RWMutex
	heartbeat time.Duration
	publisher EventPublisher
	logger    *zap.Logger
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithHeartbeat sets the liveness probe interval.
func WithHeartbeat(interval time.Duration) HubOption {
	return func(h *Hub) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithPublisher forwards ws_connect and ws_disconnect events.
func WithPublisher(publisher EventPublisher) HubOption {
	return func(h *Hub) {
		h.publisher = publisher
	}
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		conns:     make(map[*Connection]struct{}),
		heartbeat: DefaultHeartbeatInterval,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Epoch identifies the current admission generation. Every CloseAll starts a
// new one.
func (h *Hub) Epoch() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.epoch
}

// Add admits a websocket connection into the broadcast set. epoch must be the
// value of Epoch read before the client's code was checked; if a CloseAll ran
// since then the connection is closed instead and Add reports false.
func (h *Hub) Add(conn *websocket.Conn, info ConnInfo, epoch uint64) (*Connection, bool) {
	c := newConnection(conn, info)
	h.mu.Lock()
	if epoch != h.epoch {
		h.mu.Unlock()
		c.terminate(websocket.ClosePolicyViolation, "security code rotated")
		observability.IncWSEvent("ws_rejected")
		return nil, false
	}
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishEvent(c, "ws_connect", "")
	return c, true
}

// Remove drops c from the set and terminates it. It reports whether c was
// still a member.
func (h *Hub) Remove(c *Connection, reason string) bool {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()

	c.terminate(0, "")
	if ok {
		h.disconnected(c, reason)
	}
	return ok
}

// Len reports the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast encodes event once and writes it to every open connection. It
// returns the number of successful deliveries.
func (h *Hub) Broadcast(event models.BoardEvent) int {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode broadcast event", zap.String("type", event.Type), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, c := range h.snapshot() {
		if !c.Open() {
			continue
		}
		if err := c.write(payload); err != nil {
			h.logger.Debug("websocket write error", zap.String("conn_id", c.info.ConnID), zap.Error(err))
			observability.IncWSEvent("ws_error")
			h.Remove(c, err.Error())
			continue
		}
		delivered++
	}
	return delivered
}

// CloseAll terminates every connection and empties the set. Clients have to
// reconnect, which makes them pass the access gate again.
func (h *Hub) CloseAll() int {
	return h.closeAll(websocket.ClosePolicyViolation, "security code rotated")
}

func (h *Hub) closeAll(code int, reason string) int {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*Connection]struct{})
	h.epoch++
	h.mu.Unlock()

	for c := range conns {
		c.terminate(code, reason)
		h.disconnected(c, "closed by server")
	}
	if len(conns) > 0 {
		h.logger.Info("closed all websocket connections", zap.Int("count", len(conns)), zap.String("reason", reason))
	}
	return len(conns)
}

// Run probes connections every heartbeat interval until ctx is done, then
// closes whatever is left.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-ctx.Done():
			h.closeAll(websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

// sweep terminates connections that missed the previous probe and probes the rest.
func (h *Hub) sweep() {
	for _, c := range h.snapshot() {
		if !c.alive.Load() {
			observability.IncWSEvent("ws_timeout")
			h.Remove(c, "heartbeat timeout")
			continue
		}
		c.alive.Store(false)
		if err := c.ping(); err != nil {
			h.logger.Debug("websocket ping error", zap.String("conn_id", c.info.ConnID), zap.Error(err))
		}
	}
}

func (h *Hub) snapshot() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) disconnected(c *Connection, reason string) {
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	h.publishEvent(c, "ws_disconnect", reason)
}

func (h *Hub) publishEvent(c *Connection, event, reason string) {
	if h.publisher == nil {
		return
	}
	info := c.info
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"request_id": info.RequestID,
		},
	}
	ctx := observability.WithRequestID(context.Background(), info.RequestID)
	if err := h.publisher.Publish(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}); err != nil {
		h.logger.Debug("publish ws event failed", zap.String("event", event), zap.Error(err))
	}
}
