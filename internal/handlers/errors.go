package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agentspace/internal/observability"
	"agentspace/internal/services"
)

// respondError maps service errors onto status codes and the {error} body.
// Anything unrecognised is logged and reduced to a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *services.ValidationError
	var rerr *services.RateLimitError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.As(err, &rerr):
		c.Header("Retry-After", strconv.Itoa(rerr.RetryAfterSeconds()))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": rerr.Error()})
	case errors.Is(err, services.ErrCodeRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Security code required"})
	case errors.Is(err, services.ErrInvalidCode):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid security code"})
	default:
		logger.Error("unhandled error",
			zap.String("route", c.FullPath()),
			zap.String("request_id", observability.RequestIDFromContext(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
