package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-proctor/pkg/protocol"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", nil)
	go h.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(h, conn, r.URL.Query().Get("session")).Run()
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvents(t *testing.T, conn *websocket.Conn) *protocol.EventsData {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ev, err := msg.GetEventsData()
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	return ev
}

func TestTopicRouting(t *testing.T) {
	h, srv := startHub(t)
	a := dial(t, srv, "s1")
	b := dial(t, srv, "s2")
	all := dial(t, srv, "")
	waitClients(t, h, 3)

	noFace := []violation.Event{{Type: violation.NoFace, Timestamp: time.Now(), Severity: violation.High}}
	if err := h.BroadcastEvents("s1", noFace); err != nil {
		t.Fatalf("BroadcastEvents: %v", err)
	}
	NewSink(h, "s2").Send(context.Background(), []violation.Event{{Type: violation.Phone, Severity: violation.High}})

	if ev := readEvents(t, a); ev.SessionID != "s1" || ev.Events[0].Type != violation.NoFace {
		t.Errorf("s1 client got %+v", ev)
	}
	// s2 must not see the s1 broadcast
	if ev := readEvents(t, b); ev.SessionID != "s2" || ev.Events[0].Type != violation.Phone {
		t.Errorf("s2 client got %+v", ev)
	}
	first, second := readEvents(t, all), readEvents(t, all)
	if first.SessionID != "s1" || second.SessionID != "s2" {
		t.Errorf("wildcard client got %s then %s", first.SessionID, second.SessionID)
	}
}

func TestClientDisconnect(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "s1")
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("cancel", nil)
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("Expected hub to report stopped")
	}
}

func TestSinkEmptyBatch(t *testing.T) {
	h := New("empty", nil)
	if err := NewSink(h, "s").Send(context.Background(), nil); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if len(h.broadcast) != 0 {
		t.Error("Empty batch should not be broadcast")
	}
}

func TestMessageMatches(t *testing.T) {
	m := NewJSONMessage("s1", nil)
	tests := []struct {
		topic string
		want  bool
	}{
		{"s1", true},
		{AllSessions, true},
		{"s2", false},
	}
	for _, tt := range tests {
		if got := m.matches(tt.topic); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.topic, got, tt.want)
		}
	}
}
