package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalEngine/internal/services/notification"
)

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_PushToConnectedUser(t *testing.T) {
	hub := NewHub(nil)
	e := echo.New()
	e.GET("/ws/notifications", hub.Handle)
	srv := httptest.NewServer(e)
	defer srv.Close()

	assert.ErrorIs(t, hub.Push("alice", map[string]string{"title": "x"}), notification.ErrNoListeners)

	conn := dial(t, srv, "alice")
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("alice") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Push("alice", map[string]string{"title": "Buy signal: BTC"}))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)
	assert.Equal(t, "Buy signal: BTC", msg.Payload["title"])

	assert.ErrorIs(t, hub.Push("bob", "hi"), notification.ErrNoListeners)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_RequiresUserID(t *testing.T) {
	hub := NewHub(nil)
	e := echo.New()
	e.GET("/ws/notifications", hub.Handle)
	srv := httptest.NewServer(e)
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
