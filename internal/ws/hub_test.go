package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentspace/internal/models"
	"agentspace/internal/services"
)

type staticGate struct {
	mu   sync.Mutex
	code string
}

func (g *staticGate) Check(_ context.Context, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if code == "" {
		return services.ErrCodeRequired
	}
	if code != g.code {
		return services.ErrInvalidCode
	}
	return nil
}

func newTestServer(t *testing.T, hub *Hub, gate Gate) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewBoardWebSocketHandler(hub, gate, nil).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubAddAndRemove(t *testing.T) {
	hub := NewHub(nil)

	c, ok := hub.Add(nil, ConnInfo{ConnID: "a"}, hub.Epoch())
	require.True(t, ok)
	require.Equal(t, 1, hub.Len())
	assert.True(t, c.Open())
	assert.True(t, c.Alive())

	assert.True(t, hub.Remove(c, "test"))
	assert.False(t, hub.Remove(c, "test"))
	assert.Equal(t, 0, hub.Len())
	assert.False(t, c.Open())
}

func TestHandshakeRejectedWithoutValidCode(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, &staticGate{code: "secret"})

	for _, path := range []string{"/ws", "/ws?code=wrong"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, path), nil)
		require.Error(t, err, path)
		require.NotNil(t, resp, path)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp.Body.Close()
	}
	assert.Equal(t, 0, hub.Len())
}

func TestHandshakeRejectedOnOtherPath(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, &staticGate{code: "secret"})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/socket?code=secret"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 0, hub.Len())
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, &staticGate{code: "secret"})

	first := dial(t, wsURL(srv, "/ws?code=secret"))
	second := dial(t, wsURL(srv, "/ws?code=secret"))
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	view := models.MessageView{ID: 4, Name: "Alice", Text: "hi", Hash: "abc123"}
	delivered := hub.Broadcast(models.BoardEvent{Type: models.EventNewMessage, Data: &view})
	assert.Equal(t, 2, delivered)

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var event struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &event))
		assert.Equal(t, "new_message", event.Type)
		assert.Equal(t, "Alice", event.Data["name"])
		assert.Equal(t, "abc123", event.Data["hash"])
		assert.NotContains(t, event.Data, "client_ip")
	}
}

func TestCloseAllDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, &staticGate{code: "secret"})

	conn := dial(t, wsURL(srv, "/ws?code=secret"))
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, hub.CloseAll())
	assert.Equal(t, 0, hub.Len())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestSweepTerminatesSilentClients(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, &staticGate{code: "secret"})

	// The client never reads, so it never answers the ping.
	dial(t, wsURL(srv, "/ws?code=secret"))
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	hub.sweep()
	require.Equal(t, 1, hub.Len())
	hub.sweep()
	assert.Equal(t, 0, hub.Len())
}

func TestSweepKeepsResponsiveClients(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, &staticGate{code: "secret"})

	conn := dial(t, wsURL(srv, "/ws?code=secret"))
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	client := hub.snapshot()[0]

	for i := 0; i < 3; i++ {
		hub.sweep()
		require.Eventually(t, client.Alive, time.Second, 10*time.Millisecond)
	}
	assert.Equal(t, 1, hub.Len())
}

func TestRunClosesConnectionsOnCancel(t *testing.T) {
	hub := NewHub(nil, WithHeartbeat(time.Hour))
	_, ok := hub.Add(nil, ConnInfo{ConnID: "x"}, hub.Epoch())
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.Len())
}

func TestAddRefusesConnectionsCheckedBeforeCloseAll(t *testing.T) {
	hub := NewHub(nil)
	epoch := hub.Epoch()
	hub.CloseAll()

	c, ok := hub.Add(nil, ConnInfo{ConnID: "late"}, epoch)
	assert.False(t, ok)
	assert.Nil(t, c)
	assert.Equal(t, 0, hub.Len())

	_, ok = hub.Add(nil, ConnInfo{ConnID: "fresh"}, hub.Epoch())
	assert.True(t, ok)
}

// rotatingGate admits the current code, then rotates it and drops every
// connection before the handshake completes.
type rotatingGate struct {
	hub *Hub
}

func (g *rotatingGate) Check(_ context.Context, code string) error {
	if code != "old" {
		return services.ErrInvalidCode
	}
	g.hub.CloseAll()
	return nil
}

func TestHandshakeRacingRotationIsClosed(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, &rotatingGate{hub: hub})

	conn := dial(t, wsURL(srv, "/ws?code=old"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Equal(t, 0, hub.Len())
}

func TestRunSendsGoingAwayOnShutdown(t *testing.T) {
	hub := NewHub(nil, WithHeartbeat(time.Hour))
	srv := newTestServer(t, hub, &staticGate{code: "secret"})

	conn := dial(t, wsURL(srv, "/ws?code=secret"))
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestClientDisconnectRemovesConnection(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, &staticGate{code: "secret"})

	conn := dial(t, wsURL(srv, "/ws?code=secret"))
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	conn.Close()
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}
