package server_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"awakener/pkg/model"
	"awakener/pkg/server"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/gt"
)

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	gt.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *server.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d connected clients, got %d", n, hub.ClientCount())
}

func TestHubDeliversEventsInOrder(t *testing.T) {
	hub := server.NewHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)
	waitForClients(t, hub, 1)

	hub.Publish(model.NewEvent(model.EventStatus, map[string]any{"status": "running"}))
	hub.Publish(model.NewEvent(model.EventThoughtChunk, map[string]any{"text": "pondering"}))
	hub.Publish(model.NewEvent(model.EventRound, map[string]any{"round": float64(9)}))

	var got []model.Event
	for i := 0; i < 3; i++ {
		gt.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var evt model.Event
		gt.NoError(t, conn.ReadJSON(&evt))
		got = append(got, evt)
	}

	gt.Equal(t, got[0].Type, model.EventStatus)
	gt.Equal(t, got[1].Type, model.EventThoughtChunk)
	gt.Equal(t, got[2].Type, model.EventRound)
	gt.Equal(t, got[1].Data["text"], "pondering")
	gt.NotEqual(t, got[0].ID, "")
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub := server.NewHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	a := dialHub(t, ts)
	b := dialHub(t, ts)
	waitForClients(t, hub, 2)

	hub.Publish(model.NewEvent(model.EventLog, map[string]any{"text": "hello observers"}))

	for _, conn := range []*websocket.Conn{a, b} {
		gt.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var evt model.Event
		gt.NoError(t, conn.ReadJSON(&evt))
		gt.Equal(t, evt.Data["text"], "hello observers")
	}
}

func TestHubPrunesDisconnectedClients(t *testing.T) {
	hub := server.NewHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)
	waitForClients(t, hub, 1)

	gt.NoError(t, conn.Close())
	waitForClients(t, hub, 0)

	// Publishing into an empty hub must not panic or block.
	hub.Publish(model.NewEvent(model.EventLog, map[string]any{"text": "nobody listening"}))
}
