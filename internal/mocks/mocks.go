package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"agentspace/internal/models"
)

type GateMock struct {
	mock.Mock
}

func (m *GateMock) Check(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, name, text, clientIP string) (models.Message, error) {
	args := m.Called(ctx, name, text, clientIP)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListAfter(ctx context.Context, afterID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, afterID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CountAfter(ctx context.Context, afterID int) (int, error) {
	args := m.Called(ctx, afterID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type SecurityCodeRepositoryMock struct {
	mock.Mock
}

func (m *SecurityCodeRepositoryMock) CodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *SecurityCodeRepositoryMock) CurrentCode(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *SecurityCodeRepositoryMock) IPSalt(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *SecurityCodeRepositoryMock) ReplaceCode(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(event models.BoardEvent) int {
	args := m.Called(event)
	return args.Int(0)
}

type ConnectionCloserMock struct {
	mock.Mock
}

func (m *ConnectionCloserMock) CloseAll() int {
	args := m.Called()
	return args.Int(0)
}
