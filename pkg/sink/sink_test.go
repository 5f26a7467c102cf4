package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-proctor/pkg/protocol"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

func sampleEvents() []violation.Event {
	ts := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return []violation.Event{
		{Type: violation.NoFace, Timestamp: ts, Severity: violation.High, Description: "No face detected"},
		{Type: violation.FocusLost, Timestamp: ts.Add(time.Second), Severity: violation.Medium, DurationMs: 6000},
	}
}

func TestMultiAttemptsAll(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	boom := errors.New("boom")
	a.FailWith(boom)

	err := Multi{a, b}.Send(context.Background(), sampleEvents())
	if !errors.Is(err, boom) {
		t.Errorf("Expected joined error to wrap boom, got %v", err)
	}
	if len(b.Events()) != 2 {
		t.Errorf("Second sink should still receive the batch, got %d", len(b.Events()))
	}
}

func TestCollectorCopiesBatch(t *testing.T) {
	c := NewCollector()
	events := sampleEvents()
	c.Send(context.Background(), events)
	events[0].Description = "mutated"

	if c.Events()[0].Description != "No face detected" {
		t.Error("Collector should keep its own copy")
	}
	if len(c.Batches()) != 1 {
		t.Errorf("Expected 1 batch, got %d", len(c.Batches()))
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "s-42")
	if err := w.Send(context.Background(), sampleEvents()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sc := bufio.NewScanner(&buf)
	var lines int
	for sc.Scan() {
		var e protocol.SessionEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if e.SessionID != "s-42" {
			t.Errorf("line %d: session %q", lines, e.SessionID)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("Expected 2 lines, got %d", lines)
	}
}

func TestHTTPSink(t *testing.T) {
	var got protocol.BulkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != BulkPath {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL+"/", "sess-1", WithHTTPClient(srv.Client()))
	if err := h.Send(context.Background(), sampleEvents()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.Events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got.Events))
	}
	if got.Events[0].SessionID != "sess-1" || got.Events[1].DurationMs != 6000 {
		t.Errorf("Unexpected payload %+v", got.Events)
	}
}

func TestHTTPSinkRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Events array is required", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL, "s").Send(context.Background(), sampleEvents())
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DeliveryError, got %v", err)
	}
	if de.StatusCode != http.StatusBadRequest || !errors.Is(err, ErrRejected) {
		t.Errorf("Unexpected error %v", err)
	}
	if !strings.Contains(err.Error(), "Events array is required") {
		t.Errorf("Expected server message in error, got %v", err)
	}
}

func TestHTTPSinkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTP(url, "s").Send(context.Background(), sampleEvents())
	var de *DeliveryError
	if !errors.As(err, &de) || de.StatusCode != 0 {
		t.Errorf("Expected transport DeliveryError, got %v", err)
	}
}

func TestHTTPSinkEmptyBatch(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	if err := NewHTTP(srv.URL, "s").Send(context.Background(), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if called {
		t.Error("Empty batch should not hit the server")
	}
}

func TestWebSocketSink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan *protocol.Message, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				t.Errorf("parse: %v", err)
				return
			}
			received <- msg
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws := NewWebSocket(url, "sess-ws", nil)
	defer ws.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Send(ctx, sampleEvents()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Type != protocol.TypeEvents {
			t.Errorf("Type = %v, want events", msg.Type)
		}
		data, err := msg.GetEventsData()
		if err != nil {
			t.Fatalf("GetEventsData: %v", err)
		}
		if data.SessionID != "sess-ws" || len(data.Events) != 2 {
			t.Errorf("Unexpected payload %+v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for events message")
	}
}

func TestWebSocketSinkClosed(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1/none", "s", nil)
	ws.Close()
	if err := ws.Send(context.Background(), sampleEvents()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
