package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"minesServer/game"
	"minesServer/service"
)

type frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func subscribe(t *testing.T, conn *websocket.Conn, channel string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type: "subscribe",
		Data: map[string]interface{}{"channel": channel},
	}))
}

func startHub(t *testing.T) (*Hub, *httptest.Server, func()) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))

	stop := func() {
		srv.Close()
		cancel()
		<-stopped
	}
	return hub, srv, stop
}

// waitDrained blocks until the hub has picked up every queued publish
func waitDrained(t *testing.T, hub *Hub) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(hub.broadcast) == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHubStreamsVerificationsAndHeatmap(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, srv, stop := startHub(t)
	defer stop()

	initial := game.InitialHeatmap(5, 5)
	hub.PublishHeatmap(initial)
	waitDrained(t, hub)

	conn := dial(t, srv)
	defer conn.Close()

	subscribe(t, conn, "heatmap")
	f := readFrame(t, conn)
	assert.Equal(t, "heatmap", f.Type)

	var hm game.Heatmap
	require.NoError(t, json.Unmarshal(f.Data, &hm))
	assert.Equal(t, initial, hm)

	subscribe(t, conn, "verifications")
	f = readFrame(t, conn)
	assert.Equal(t, "verification_history", f.Type)
	assert.JSONEq(t, `[]`, string(f.Data))

	hub.PublishVerification(service.VerificationEvent{
		SubmissionID: "sub-1",
		SubmitterID:  "alice",
		MineCount:    2,
		Outcome:      game.Outcome{3, 9},
	})

	f = readFrame(t, conn)
	assert.Equal(t, "verification", f.Type)
	assert.Equal(t, "verifications", f.Channel)

	var ev service.VerificationEvent
	require.NoError(t, json.Unmarshal(f.Data, &ev))
	assert.Equal(t, "sub-1", ev.SubmissionID)
	assert.Equal(t, game.Outcome{3, 9}, ev.Outcome)

	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubReplaysRecentVerifications(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, srv, stop := startHub(t)
	defer stop()

	for i := 0; i < maxRecentVerifications+5; i++ {
		hub.PublishVerification(service.VerificationEvent{SubmitterID: "bob"})
	}
	waitDrained(t, hub)

	conn := dial(t, srv)
	defer conn.Close()

	subscribe(t, conn, "verifications")
	f := readFrame(t, conn)
	require.Equal(t, "verification_history", f.Type)

	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(f.Data, &items))
	assert.Len(t, items, maxRecentVerifications)
}

func TestHubRejectsUnknownChannel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, srv, stop := startHub(t)
	defer stop()

	conn := dial(t, srv)
	defer conn.Close()

	subscribe(t, conn, "crash")
	f := readFrame(t, conn)
	assert.Equal(t, "error", f.Type)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, srv, stop := startHub(t)
	defer stop()

	conn := dial(t, srv)
	subscribe(t, conn, "verifications")
	readFrame(t, conn)
	require.Equal(t, 1, hub.ClientCount())

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHubShutdownClosesClients(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, srv, stop := startHub(t)

	conn := dial(t, srv)
	defer conn.Close()
	subscribe(t, conn, "heatmap")
	// no heatmap yet, so round-trip through verifications to sync
	subscribe(t, conn, "verifications")
	readFrame(t, conn)

	stop()
	assert.Equal(t, 0, hub.ClientCount())

	// publishing after shutdown must not block
	hub.PublishHeatmap(game.InitialHeatmap(5, 5))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
