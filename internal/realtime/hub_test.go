package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/internal/config"
)

func newTestHub(t *testing.T, buffer int) *Hub {
	t.Helper()
	cfg := config.Config{Realtime: config.Realtime{
		WriteTimeout:   time.Second,
		PingInterval:   time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     buffer,
	}}
	return NewHub(cfg, zaptest.NewLogger(t), nil)
}

func TestPublishOnlyReachesRoom(t *testing.T) {
	hub := newTestHub(t, 4)
	alice := hub.join(1)
	bob := hub.join(2)

	n := hub.Publish(1, Event{Type: EventNotification, Data: "hello"})
	assert.Equal(t, 1, n)

	select {
	case raw := <-alice.send:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, EventNotification, ev.Type)
	default:
		t.Fatal("alice did not receive the event")
	}
	assert.Len(t, bob.send, 0)

	hub.leave(alice)
	assert.Equal(t, 0, hub.Connections(1))
	assert.Equal(t, 0, hub.Publish(1, Event{Type: EventNotification}))
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub(t, 1)
	hub.join(5)

	assert.Equal(t, 1, hub.Publish(5, Event{Type: EventChatMessage}))
	assert.Equal(t, 0, hub.Publish(5, Event{Type: EventChatMessage}))
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	hub := newTestHub(t, 1)
	c := hub.join(3)
	hub.Close()

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Connections(3))
	hub.leave(c)
}

func TestServeOverWebsocket(t *testing.T) {
	hub := newTestHub(t, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, 7)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.Connections(7) == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(7, Event{Type: EventChatMessage, Data: map[string]string{"body": "table 4 ready"}})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "table 4 ready")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Connections(7) == 0 }, 2*time.Second, 10*time.Millisecond)
}
