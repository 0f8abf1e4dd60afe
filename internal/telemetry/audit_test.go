package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, "audit.security", "agentspace", "test", nil)

	var got AuditEnvelope
	pub.On("Publish", mock.Anything, "audit.security", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) { got = args.Get(2).(AuditEnvelope) }).
		Return(nil).Once()

	emitter.Emit(context.Background(), "WARN", "security code regenerated", "req-9", nil)

	pub.AssertExpectations(t)
	require.Equal(t, "audit_log", got.EventType)
	assert.Equal(t, "agentspace", got.Service)
	assert.Equal(t, "req-9", got.RequestID)
	assert.Equal(t, "WARN", got.Payload.Level)
	assert.Nil(t, got.Actor)
}

func TestEmitOnNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "", nil)
	})
}

func TestEmitSwallowsPublishError(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, "audit.security", "agentspace", "test", nil)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "", nil)
	})
	pub.AssertExpectations(t)
}
