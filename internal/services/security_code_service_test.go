package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentspace/internal/mocks"
	"agentspace/internal/telemetry"
)

func TestGenerateCode(t *testing.T) {
	a, err := GenerateCode()
	require.NoError(t, err)
	b, err := GenerateCode()
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), a)
	assert.NotEqual(t, a, b)
}

func TestRegenerateReplacesCodeThenClosesConnections(t *testing.T) {
	codes := new(mocks.SecurityCodeRepositoryMock)
	closer := new(mocks.ConnectionCloserMock)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.security", "agentspace", "test", nil)
	svc := NewSecurityCodeService(codes, closer, audit, nil)
	svc.newCode = func() (string, error) { return "fresh-code-value", nil }

	var order []string
	codes.On("ReplaceCode", mock.Anything, "fresh-code-value").
		Run(func(mock.Arguments) { order = append(order, "replace") }).
		Return(nil).Once()
	closer.On("CloseAll").
		Run(func(mock.Arguments) { order = append(order, "close") }).
		Return(2).Once()
	publisher.On("Publish", mock.Anything, "audit.security", mock.Anything).Return(nil).Once()

	code, err := svc.Regenerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-code-value", code)
	assert.Equal(t, []string{"replace", "close"}, order)
	codes.AssertExpectations(t)
	closer.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestRegenerateStoreFailureKeepsConnections(t *testing.T) {
	codes := new(mocks.SecurityCodeRepositoryMock)
	closer := new(mocks.ConnectionCloserMock)
	svc := NewSecurityCodeService(codes, closer, nil, nil)

	codes.On("ReplaceCode", mock.Anything, mock.AnythingOfType("string")).Return(assert.AnError).Once()

	_, err := svc.Regenerate(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	closer.AssertNotCalled(t, "CloseAll")
}
