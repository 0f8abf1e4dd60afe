package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"agentspace/internal/services"
)

// Gate validates a presented security code.
type Gate interface {
	Check(ctx context.Context, code string) error
}

type codeBody struct {
	Code any `json:"code"`
}

// AuthMiddleware admits requests carrying the live security code in the
// "code" query parameter or in the JSON body. The body is cached on the
// context so handlers can bind it again with ShouldBindBodyWith.
func AuthMiddleware(gate Gate, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := PresentedCode(c)

		err := gate.Check(c.Request.Context(), code)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, services.ErrCodeRequired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Security code required"})
		case errors.Is(err, services.ErrInvalidCode):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid security code"})
		default:
			logger.Error("security code check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
	}
}

// PresentedCode returns the code from the query string, falling back to the JSON body.
func PresentedCode(c *gin.Context) string {
	if code := c.Query("code"); code != "" {
		return code
	}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return ""
	}
	var body codeBody
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		return ""
	}
	code, _ := body.Code.(string)
	return code
}
