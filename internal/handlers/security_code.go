package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CodeRotator replaces the live security code.
type CodeRotator interface {
	Regenerate(ctx context.Context) (string, error)
}

// SecurityCodeHandler serves /api/security-code.
type SecurityCodeHandler struct {
	rotator CodeRotator
	logger  *zap.Logger
}

// NewSecurityCodeHandler builds a SecurityCodeHandler.
func NewSecurityCodeHandler(rotator CodeRotator, logger *zap.Logger) *SecurityCodeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityCodeHandler{rotator: rotator, logger: logger}
}

// Regenerate rotates the code and returns the new one.
func (h *SecurityCodeHandler) Regenerate(c *gin.Context) {
	code, err := h.rotator.Regenerate(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}
