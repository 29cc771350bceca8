package dairy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newStreamServer runs script against every websocket connection and
// counts upgrades.
func newStreamServer(t *testing.T, script func(*websocket.Conn)) (*httptest.Server, string, *int64) {
	t.Helper()
	var upgrades int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt64(&upgrades, 1)
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http"), &upgrades
}

func streamConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.StreamURL = url
	cfg.ReconnectBase = 10 * time.Millisecond
	cfg.ReconnectCap = 50 * time.Millisecond
	cfg.MaxReconnects = 2
	return cfg
}

func newStreamCreds() *TokenStore {
	creds := NewTokenStore()
	creds.Set("stream-token")
	return creds
}

func collectEvents() (chan StreamEvent, func(StreamEvent)) {
	ch := make(chan StreamEvent, 64)
	return ch, func(ev StreamEvent) { ch <- ev }
}

func awaitEvent(t *testing.T, ch <-chan StreamEvent, kind StreamEventKind) StreamEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("event kind %d never arrived", kind)
		}
	}
}

func TestConnectWithoutCredential(t *testing.T) {
	creds := NewTokenStore()
	s := NewSession(streamConfig("ws://unused"), creds, nil)
	if err := s.Connect(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	s := NewSession(streamConfig("ws://unused"), newStreamCreds(), nil)
	if err := s.Send("prompt", "default"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	_, wsURL, _ := newStreamServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"type": "connected"})
		var out outboundFrame
		if err := conn.ReadJSON(&out); err != nil {
			return
		}
		if out.TemplateID != "default" || !strings.Contains(out.Prompt, "note body") {
			t.Errorf("unexpected outbound frame: %+v", out)
		}
		_ = conn.WriteJSON(map[string]any{"type": "chunk", "content": "Hello "})
		_ = conn.WriteJSON(map[string]any{"type": "chunk", "content": "world"})
		_ = conn.WriteJSON(map[string]any{"type": "complete"})
		// Hold the connection open until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	events, handler := collectEvents()
	s := NewSession(streamConfig(wsURL), newStreamCreds(), handler)
	defer s.Close()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	awaitEvent(t, events, StreamConnected)
	if s.State() != Connected {
		t.Fatalf("state = %v, want Connected", s.State())
	}

	s.StartStream("req-1")
	if err := s.Send("a prompt about the note body", "default"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	first := awaitEvent(t, events, StreamChunk)
	if first.StreamID != "req-1" || first.Content != "Hello " {
		t.Fatalf("first chunk = %+v", first)
	}
	second := awaitEvent(t, events, StreamChunk)
	if second.Content != "world" {
		t.Fatalf("second chunk = %+v", second)
	}
	done := awaitEvent(t, events, StreamComplete)
	if done.StreamID != "req-1" {
		t.Fatalf("complete = %+v", done)
	}
	if s.ActiveStream() != "" {
		t.Fatal("complete should clear the active stream")
	}
}

func TestErrorFrame(t *testing.T) {
	_, wsURL, _ := newStreamServer(t, func(conn *websocket.Conn) {
		var out outboundFrame
		if err := conn.ReadJSON(&out); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "chunk", "content": "partial"})
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "model overloaded"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	events, handler := collectEvents()
	s := NewSession(streamConfig(wsURL), newStreamCreds(), handler)
	defer s.Close()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.StartStream("req-1")
	if err := s.Send("prompt prompt prompt", "default"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	awaitEvent(t, events, StreamChunk)
	ev := awaitEvent(t, events, StreamError)
	if ev.StreamID != "req-1" || ev.Message != "model overloaded" {
		t.Fatalf("error event = %+v", ev)
	}
}

func TestFramesWithNoActiveStreamDropped(t *testing.T) {
	_, wsURL, _ := newStreamServer(t, func(conn *websocket.Conn) {
		// Unsolicited frames with no request outstanding.
		_ = conn.WriteJSON(map[string]any{"type": "chunk", "content": "stray"})
		_ = conn.WriteJSON(map[string]any{"type": "complete"})
		_ = conn.WriteJSON(map[string]any{"type": "mystery"})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	events, handler := collectEvents()
	s := NewSession(streamConfig(wsURL), newStreamCreds(), handler)
	defer s.Close()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	awaitEvent(t, events, StreamConnected)

	// Give the frames time to arrive; none may surface as stream events.
	time.Sleep(100 * time.Millisecond)
	for {
		select {
		case ev := <-events:
			if ev.Kind == StreamChunk || ev.Kind == StreamComplete || ev.Kind == StreamError {
				t.Fatalf("uncorrelated frame surfaced: %+v", ev)
			}
		default:
			return
		}
	}
}

func TestIntentionalCloseDoesNotReconnect(t *testing.T) {
	_, wsURL, upgrades := newStreamServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	events, handler := collectEvents()
	s := NewSession(streamConfig(wsURL), newStreamCreds(), handler)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	awaitEvent(t, events, StreamConnected)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	time.Sleep(100 * time.Millisecond) // several reconnect windows
	if got := atomic.LoadInt64(upgrades); got != 1 {
		t.Fatalf("upgrades = %d; an intentional close must not reconnect", got)
	}
	if s.State() != Disconnected {
		t.Fatalf("state = %v, want Disconnected", s.State())
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	var drops int64
	_, wsURL, upgrades := newStreamServer(t, func(conn *websocket.Conn) {
		if atomic.AddInt64(&drops, 1) == 1 {
			return // drop the first connection without a close frame
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	events, handler := collectEvents()
	s := NewSession(streamConfig(wsURL), newStreamCreds(), handler)
	defer s.Close()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	awaitEvent(t, events, StreamConnected)
	awaitEvent(t, events, StreamDisconnected)
	awaitEvent(t, events, StreamConnected) // reconnected

	if got := atomic.LoadInt64(upgrades); got < 2 {
		t.Fatalf("upgrades = %d, want at least 2", got)
	}
}

func TestDropMidStreamFailsActiveStream(t *testing.T) {
	_, wsURL, _ := newStreamServer(t, func(conn *websocket.Conn) {
		var out outboundFrame
		if err := conn.ReadJSON(&out); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "chunk", "content": "partial"})
		// Drop without completing the stream.
	})

	events, handler := collectEvents()
	cfg := streamConfig(wsURL)
	cfg.MaxReconnects = 0 // keep the test focused on the abort path
	s := NewSession(cfg, newStreamCreds(), handler)
	defer s.Close()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.StartStream("req-1")
	if err := s.Send("prompt prompt prompt", "default"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	awaitEvent(t, events, StreamChunk)
	ev := awaitEvent(t, events, StreamError)
	if ev.StreamID != "req-1" {
		t.Fatalf("error event = %+v; a drop must fail the active stream", ev)
	}
}

func TestReconnectExhaustedEmitsLost(t *testing.T) {
	events, handler := collectEvents()
	// Nothing listens on this address, so every dial fails.
	s := NewSession(streamConfig("ws://127.0.0.1:1/ws"), newStreamCreds(), handler)
	defer s.Close()
	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	awaitEvent(t, events, StreamLost)
}

func TestReconnectBackoffSchedule(t *testing.T) {
	b := newReconnectBackoff(time.Second, 30*time.Second)
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("delay[%d] = %v, want %v", i, got, w)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != time.Second {
		t.Fatalf("after Reset delay = %v, want 1s", got)
	}
}
