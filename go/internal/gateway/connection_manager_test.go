package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestConnection_RateLimitsClientMessages(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cm := NewConnectionManager(cfg)
	var syncs atomic.Int32
	cm.OnSync(func(*Connection) { syncs.Add(1) })

	c := &Connection{
		ID:      "conn-1",
		RoomID:  "room-1",
		Manager: cm,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst),
	}
	msg, err := json.Marshal(ClientMessage{Type: ClientMessageSync})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		c.handleClientMessage(msg)
	}

	// the burst plus whatever refilled while the loop ran
	got := int(syncs.Load())
	assert.GreaterOrEqual(t, got, cfg.MessageBurst)
	assert.LessOrEqual(t, got, cfg.MessageBurst+1)
}

func TestConnection_IgnoresUnknownMessages(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	var syncs atomic.Int32
	cm.OnSync(func(*Connection) { syncs.Add(1) })
	c := &Connection{ID: "conn-1", RoomID: "room-1", Manager: cm, limiter: rate.NewLimiter(rate.Inf, 1)}

	c.handleClientMessage([]byte(`{"type":"submit"}`))
	c.handleClientMessage([]byte(`not json`))
	assert.Zero(t, syncs.Load())
}

// serverConn returns the server side of a real WebSocket connection.
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(server.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-conns:
		return conn
	case <-time.After(time.Second):
		t.Fatal("server side of the connection never arrived")
		return nil
	}
}

func TestConnectionManager_DropsSlowConsumer(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.SendBuffer = 1
	cm := NewConnectionManager(cfg)

	slow := &Connection{
		ID:      "slow",
		RoomID:  "room-1",
		Conn:    serverConn(t),
		Send:    make(chan []byte, cfg.SendBuffer),
		Manager: cm,
	}
	fast := &Connection{
		ID:      "fast",
		RoomID:  "room-1",
		Conn:    serverConn(t),
		Send:    make(chan []byte, 8),
		Manager: cm,
	}
	cm.registerConnection(slow)
	cm.registerConnection(fast)

	event, err := NewRoomEvent("room-1", EventTypeView, map[string]int{"round": 1}, epoch)
	require.NoError(t, err)

	// no write pumps run, so the slow buffer fills after one event
	cm.handleBroadcast(BroadcastMessage{RoomID: "room-1", Event: event})
	cm.handleBroadcast(BroadcastMessage{RoomID: "room-1", Event: event})

	stats := cm.GetConnectionStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.RoomConnections["room-1"])

	<-slow.Send
	_, open := <-slow.Send
	assert.False(t, open, "slow connection's send channel is closed")
	assert.Len(t, fast.Send, 2)
}

func TestConnectionManager_TargetedSend(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	a := &Connection{ID: "a", RoomID: "room-1", Send: make(chan []byte, 4), Manager: cm}
	b := &Connection{ID: "b", RoomID: "room-1", Send: make(chan []byte, 4), Manager: cm}
	cm.registerConnection(a)
	cm.registerConnection(b)

	event, err := NewRoomEvent("room-1", EventTypeView, map[string]int{"round": 2}, epoch)
	require.NoError(t, err)
	cm.handleBroadcast(BroadcastMessage{RoomID: "room-1", Event: event, Target: b})

	assert.Empty(t, a.Send)
	assert.Len(t, b.Send, 1)
}
