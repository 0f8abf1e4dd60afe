package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"agentspace/internal/observability"
	"agentspace/internal/repositories"
	"agentspace/internal/telemetry"
)

const codeBytes = 32

// ConnectionCloser drops every live push connection.
type ConnectionCloser interface {
	CloseAll() int
}

// SecurityCodeService rotates the shared security code.
type SecurityCodeService struct {
	codes   repositories.SecurityCodeRepository
	closer  ConnectionCloser
	audit   *telemetry.AuditEmitter
	logger  *zap.Logger
	newCode func() (string, error)
}

// NewSecurityCodeService builds a SecurityCodeService. audit may be nil.
func NewSecurityCodeService(codes repositories.SecurityCodeRepository, closer ConnectionCloser, audit *telemetry.AuditEmitter, logger *zap.Logger) *SecurityCodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityCodeService{
		codes:   codes,
		closer:  closer,
		audit:   audit,
		logger:  logger,
		newCode: GenerateCode,
	}
}

// Regenerate replaces the live code and disconnects every push client so
// they must reconnect with the new one.
func (s *SecurityCodeService) Regenerate(ctx context.Context) (string, error) {
	ctx, span := otel.Tracer("agentspace/services").Start(ctx, "SecurityCodeService.Regenerate")
	defer span.End()

	code, err := s.newCode()
	if err != nil {
		return "", fmt.Errorf("generate security code: %w", err)
	}
	if err := s.codes.ReplaceCode(ctx, code); err != nil {
		return "", fmt.Errorf("store security code: %w", err)
	}

	closed := 0
	if s.closer != nil {
		closed = s.closer.CloseAll()
	}

	s.logger.Info("security code regenerated",
		zap.String("code_prefix", codePrefix(code)),
		zap.Int("connections_closed", closed),
	)
	s.audit.Emit(ctx, "WARN", "security code regenerated", observability.RequestIDFromContext(ctx), nil)
	return code, nil
}

// GenerateCode returns 32 random bytes, hex encoded.
func GenerateCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func codePrefix(code string) string {
	if len(code) > 8 {
		return code[:8]
	}
	return code
}
