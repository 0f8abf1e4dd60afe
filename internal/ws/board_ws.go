package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"agentspace/internal/observability"
	"agentspace/internal/services"
)

// Gate validates a presented security code.
type Gate interface {
	Check(ctx context.Context, code string) error
}

// BoardWebSocketHandler admits push clients to the hub.
type BoardWebSocketHandler struct {
	hub    *Hub
	gate   Gate
	logger *zap.Logger
}

// NewBoardWebSocketHandler constructs a BoardWebSocketHandler.
func NewBoardWebSocketHandler(hub *Hub, gate Gate, logger *zap.Logger) *BoardWebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardWebSocketHandler{hub: hub, gate: gate, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle checks the code and only then upgrades and registers the client.
func (h *BoardWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("agentspace/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	epoch := h.hub.Epoch()
	if err := h.gate.Check(ctx, c.Query("code")); err != nil {
		switch {
		case errors.Is(err, services.ErrCodeRequired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Security code required"})
		case errors.Is(err, services.ErrInvalidCode):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid security code"})
		default:
			h.logger.Error("websocket gate check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		observability.IncWSEvent("ws_rejected")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		IP:          c.ClientIP(),
		RequestID:   observability.RequestIDFromContext(ctx),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client, ok := h.hub.Add(conn, info, epoch)
	if !ok {
		h.logger.Debug("websocket admission raced a code rotation", zap.String("conn_id", info.ConnID))
		return
	}
	h.logger.Debug("websocket connected", zap.String("conn_id", info.ConnID))

	go h.readPump(client)
}

// readPump discards client frames; it exists to process control frames and
// to notice when the peer goes away.
func (h *BoardWebSocketHandler) readPump(client *Connection) {
	client.conn.SetPongHandler(func(string) error {
		client.markAlive()
		return nil
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			reason := err.Error()
			if client.Open() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.logger.Debug("websocket read error", zap.String("conn_id", client.info.ConnID), zap.Error(err))
			}
			h.hub.Remove(client, reason)
			return
		}
	}
}
