package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"agentspace/internal/middleware"
	"agentspace/internal/observability"
	"agentspace/internal/ws"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	ServiceName string
	StaticDir   string
	Gate        middleware.Gate
	Messages    *MessageHandler
	Codes       *SecurityCodeHandler
	WebSocket   *ws.BoardWebSocketHandler
	Logger      *zap.Logger
}

// NewRouter builds the gin engine for the relay.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		otelgin.Middleware(cfg.ServiceName),
		observability.RequestIDMiddleware(),
		middleware.Recovery(logger),
		middleware.RequestLogger(logger),
		observability.HTTPMetricsMiddleware(),
	)

	authMiddleware := middleware.AuthMiddleware(cfg.Gate, logger)

	api := router.Group("/api", authMiddleware)
	api.GET("/messages", cfg.Messages.ListMessages)
	api.POST("/messages", cfg.Messages.PostMessage)
	api.POST("/security-code/regenerate", cfg.Codes.Regenerate)

	router.GET("/ws", cfg.WebSocket.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.StaticDir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.StaticDir))))
	}

	return router
}
