package dairy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newIdleOrchestrator() *Orchestrator {
	cfg := DefaultConfig()
	session := NewSession(cfg, newStreamCreds(), nil)
	return NewOrchestrator(session, cfg)
}

func TestRequestTooShort(t *testing.T) {
	o := newIdleOrchestrator()
	if _, err := o.Request("tiny", TriggerManual); !errors.Is(err, ErrContentTooShort) {
		t.Fatalf("err = %v, want ErrContentTooShort", err)
	}
	// Whitespace padding must not count toward the minimum.
	if _, err := o.Request("   tiny        ", TriggerManual); !errors.Is(err, ErrContentTooShort) {
		t.Fatalf("padded err = %v, want ErrContentTooShort", err)
	}
	if _, ok := o.Current(); ok {
		t.Fatal("a rejected request must not create a suggestion")
	}
}

func TestRequestWhileDisconnected(t *testing.T) {
	o := newIdleOrchestrator()
	if _, err := o.Request("long enough content for a suggestion", TriggerManual); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	// The failed request leaves an errored suggestion, not a stuck
	// streaming one; a later request must be allowed.
	s, ok := o.Current()
	if !ok || s.Status != SuggestionError {
		t.Fatalf("suggestion = %+v, want error status", s)
	}
	if _, err := o.Request("another try with enough content", TriggerManual); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("retry err = %v, want ErrNotConnected (not ErrSuggestionInProgress)", err)
	}
}

func TestRequestWhileStreaming(t *testing.T) {
	o := newIdleOrchestrator()
	o.mu.Lock()
	o.current = &Suggestion{ID: "s1", Status: SuggestionStreaming}
	o.mu.Unlock()

	if _, err := o.Request("long enough content for a suggestion", TriggerManual); !errors.Is(err, ErrSuggestionInProgress) {
		t.Fatalf("err = %v, want ErrSuggestionInProgress", err)
	}
}

func TestChunkFolding(t *testing.T) {
	o := newIdleOrchestrator()
	o.mu.Lock()
	o.current = &Suggestion{ID: "s1", Status: SuggestionStreaming}
	o.mu.Unlock()

	o.handleEvent(StreamEvent{Kind: StreamChunk, StreamID: "s1", Content: "Consider "})
	o.handleEvent(StreamEvent{Kind: StreamChunk, StreamID: "s1", Content: "adding dates."})
	o.handleEvent(StreamEvent{Kind: StreamComplete, StreamID: "s1"})

	s, ok := o.Current()
	if !ok {
		t.Fatal("no current suggestion")
	}
	if s.Content != "Consider adding dates." {
		t.Fatalf("content = %q", s.Content)
	}
	if s.Status != SuggestionComplete {
		t.Fatalf("status = %v, want complete", s.Status)
	}
}

func TestStaleStreamEventsIgnored(t *testing.T) {
	o := newIdleOrchestrator()
	o.mu.Lock()
	o.current = &Suggestion{ID: "s2", Status: SuggestionStreaming, Content: "kept"}
	o.mu.Unlock()

	o.handleEvent(StreamEvent{Kind: StreamChunk, StreamID: "s1", Content: "stale"})
	o.handleEvent(StreamEvent{Kind: StreamError, StreamID: "s1", Message: "old failure"})

	s, _ := o.Current()
	if s.Content != "kept" || s.Status != SuggestionStreaming {
		t.Fatalf("stale events must not touch the current suggestion: %+v", s)
	}
}

func TestErrorEventKeepsPartialContent(t *testing.T) {
	o := newIdleOrchestrator()
	o.mu.Lock()
	o.current = &Suggestion{ID: "s1", Status: SuggestionStreaming}
	o.mu.Unlock()

	o.handleEvent(StreamEvent{Kind: StreamChunk, StreamID: "s1", Content: "partial text"})
	o.handleEvent(StreamEvent{Kind: StreamError, StreamID: "s1", Message: "backend overloaded"})

	s, _ := o.Current()
	if s.Status != SuggestionError || s.Message != "backend overloaded" {
		t.Fatalf("suggestion = %+v", s)
	}
	if s.Content != "partial text" {
		t.Fatalf("partial content must survive an error, got %q", s.Content)
	}
}

func TestNoteSwitchedFreezesSuggestion(t *testing.T) {
	o := newIdleOrchestrator()
	o.mu.Lock()
	o.current = &Suggestion{ID: "s1", Status: SuggestionStreaming, Content: "so far"}
	o.mu.Unlock()
	o.session.StartStream("s1")

	o.NoteSwitched()

	s, _ := o.Current()
	if s.Status != SuggestionComplete || s.Content != "so far" {
		t.Fatalf("frozen suggestion = %+v", s)
	}
	if o.session.ActiveStream() != "" {
		t.Fatal("the abandoned stream must be deactivated")
	}
	// A late chunk for the frozen stream is ignored.
	o.handleEvent(StreamEvent{Kind: StreamChunk, StreamID: "s1", Content: " more"})
	s, _ = o.Current()
	if s.Content != "so far" {
		t.Fatalf("late chunk mutated a frozen suggestion: %q", s.Content)
	}
}

func TestNoteSwitchedWithoutStream(t *testing.T) {
	o := newIdleOrchestrator()
	o.NoteSwitched() // no-op, must not panic
	if _, ok := o.Current(); ok {
		t.Fatal("no suggestion expected")
	}
}

func TestSuggestionEndToEnd(t *testing.T) {
	_, wsURL, _ := newStreamServer(t, func(conn *websocket.Conn) {
		var out outboundFrame
		if err := conn.ReadJSON(&out); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "chunk", "content": "Try splitting "})
		_ = conn.WriteJSON(map[string]any{"type": "chunk", "content": "this entry."})
		_ = conn.WriteJSON(map[string]any{"type": "complete"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := streamConfig(wsURL)
	session := NewSession(cfg, newStreamCreds(), nil)
	defer session.Close()
	o := NewOrchestrator(session, cfg)

	done := make(chan Suggestion, 1)
	o.Updated = func(s Suggestion) {
		if s.Status == SuggestionComplete {
			select {
			case done <- s:
			default:
			}
		}
	}

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	id, err := o.Request("a note with plenty of content to suggest on", TriggerManual)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case s := <-done:
		if s.ID != id {
			t.Fatalf("suggestion id = %q, want %q", s.ID, id)
		}
		if s.Content != "Try splitting this entry." {
			t.Fatalf("content = %q", s.Content)
		}
		if s.Trigger != TriggerManual {
			t.Fatalf("trigger = %q", s.Trigger)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("suggestion never completed")
	}
}

func TestAutoRequestSkipsShortNotes(t *testing.T) {
	o := newIdleOrchestrator()
	o.AutoRequest(Note{ID: "n1", Content: "short"})
	if _, ok := o.Current(); ok {
		t.Fatal("short note must not produce a suggestion")
	}
}
