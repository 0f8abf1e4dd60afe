package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentspace/internal/models"
	"agentspace/internal/services"
)

type messageServiceMock struct{ mock.Mock }

func (m *messageServiceMock) List(ctx context.Context, q services.ListQuery) (models.MessagePage, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(models.MessagePage), args.Error(1)
}

func (m *messageServiceMock) Create(ctx context.Context, in services.CreateInput) (models.MessageView, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.MessageView), args.Error(1)
}

type codeRotatorMock struct{ mock.Mock }

func (m *codeRotatorMock) Regenerate(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func setupHandlerRouter(svc MessageService, rotator CodeRotator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewMessageHandler(svc, nil)
	r.GET("/api/messages", h.ListMessages)
	r.POST("/api/messages", h.PostMessage)
	r.POST("/api/security-code/regenerate", NewSecurityCodeHandler(rotator, nil).Regenerate)
	return r
}

func serve(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListMessagesPassesRawParameters(t *testing.T) {
	svc := new(messageServiceMock)
	svc.On("List", mock.Anything, services.ListQuery{AfterID: "7", Page: ""}).
		Return(models.MessagePage{Messages: []models.MessageView{}, Pagination: models.CursorPagination{AfterID: 7}}, nil)

	w := serve(setupHandlerRouter(svc, nil), http.MethodGet, "/api/messages?after_id=7", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"messages":[],"pagination":{"after_id":7,"has_more":false,"count":0}}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestPostMessageStoreFailureHidesDetails(t *testing.T) {
	svc := new(messageServiceMock)
	svc.On("Create", mock.Anything, mock.AnythingOfType("services.CreateInput")).
		Return(models.MessageView{}, errors.New("pq: connection refused"))

	w := serve(setupHandlerRouter(svc, nil), http.MethodPost, "/api/messages", `{"name":"a","text":"b"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}

func TestPostMessageRejectsNonObjectBody(t *testing.T) {
	svc := new(messageServiceMock)

	w := serve(setupHandlerRouter(svc, nil), http.MethodPost, "/api/messages", `[1,2]`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPostMessageRateLimitSetsRetryAfter(t *testing.T) {
	svc := new(messageServiceMock)
	svc.On("Create", mock.Anything, mock.Anything).
		Return(models.MessageView{}, &services.RateLimitError{Max: 10, RetryAfter: 1500 * time.Millisecond})

	w := serve(setupHandlerRouter(svc, nil), http.MethodPost, "/api/messages", `{"name":"a","text":"b"}`)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Rate limit exceeded. Max 10 messages per minute."}`, w.Body.String())
}

func TestPostMessageNonStringFieldsBecomeEmpty(t *testing.T) {
	svc := new(messageServiceMock)
	svc.On("Create", mock.Anything, mock.MatchedBy(func(in services.CreateInput) bool {
		return in.Name == "" && in.Text == "hi"
	})).Return(models.MessageView{}, &services.ValidationError{Field: "name", Message: "name must be a string between 1 and 100 characters"})

	w := serve(setupHandlerRouter(svc, nil), http.MethodPost, "/api/messages", `{"name":["x"],"text":"hi"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"name must be a string between 1 and 100 characters"}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestRegenerateReturnsNewCode(t *testing.T) {
	rotator := new(codeRotatorMock)
	rotator.On("Regenerate", mock.Anything).Return("abc123", nil)

	w := serve(setupHandlerRouter(nil, rotator), http.MethodPost, "/api/security-code/regenerate", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":"abc123"}`, w.Body.String())
}

func TestRegenerateFailure(t *testing.T) {
	rotator := new(codeRotatorMock)
	rotator.On("Regenerate", mock.Anything).Return("", errors.New("store security code: boom"))

	w := serve(setupHandlerRouter(nil, rotator), http.MethodPost, "/api/security-code/regenerate", "")

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}
