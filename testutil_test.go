package dairy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// noteServer is an in-memory stand-in for the backend: enveloped JSON
// responses, bearer auth, durable ids assigned on create. Failure modes
// are injected per verb via the *Status fields.
type noteServer struct {
	t *testing.T

	mu    sync.Mutex
	notes []Note
	seq   int

	createStatus int // non-zero forces this status on POST /notes
	updateStatus int
	deleteStatus int
	listStatus   int

	createGate chan struct{} // when non-nil, POST /notes blocks until closed

	creates int
	puts    map[string][]UpdateNoteRequest
	deletes []string

	srv *httptest.Server
}

func newNoteServer(t *testing.T, seed ...Note) *noteServer {
	t.Helper()
	s := &noteServer{t: t, puts: make(map[string][]UpdateNoteRequest)}
	s.notes = append(s.notes, seed...)
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *noteServer) baseURL() string { return s.srv.URL + "/api" }

func (s *noteServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/api/notes" && r.Method == http.MethodGet:
		s.mu.Lock()
		status := s.listStatus
		notes := make([]Note, len(s.notes))
		copy(notes, s.notes)
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		s.writeEnvelope(w, http.StatusOK, notes)

	case r.URL.Path == "/api/notes" && r.Method == http.MethodPost:
		s.mu.Lock()
		gate := s.createGate
		s.mu.Unlock()
		if gate != nil {
			<-gate
		}
		var req CreateNoteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.creates++
		if s.createStatus != 0 {
			status := s.createStatus
			s.mu.Unlock()
			w.WriteHeader(status)
			return
		}
		s.seq++
		now := time.Now().UTC()
		n := Note{ID: fmt.Sprintf("note-%d", s.seq), Title: req.Title, Content: req.Content, CreatedAt: now, UpdatedAt: now}
		s.notes = append([]Note{n}, s.notes...)
		s.mu.Unlock()
		s.writeEnvelope(w, http.StatusCreated, n)

	case strings.HasPrefix(r.URL.Path, "/api/notes/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/notes/")
		switch r.Method {
		case http.MethodPut:
			var req UpdateNoteRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			s.mu.Lock()
			s.puts[id] = append(s.puts[id], req)
			if s.updateStatus != 0 {
				status := s.updateStatus
				s.mu.Unlock()
				w.WriteHeader(status)
				return
			}
			var updated Note
			for i := range s.notes {
				if s.notes[i].ID == id {
					s.notes[i].Title = req.Title
					s.notes[i].Content = req.Content
					s.notes[i].UpdatedAt = time.Now().UTC()
					updated = s.notes[i]
				}
			}
			s.mu.Unlock()
			if updated.ID == "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			s.writeEnvelope(w, http.StatusOK, updated)

		case http.MethodDelete:
			s.mu.Lock()
			s.deletes = append(s.deletes, id)
			if s.deleteStatus != 0 {
				status := s.deleteStatus
				s.mu.Unlock()
				w.WriteHeader(status)
				return
			}
			for i := range s.notes {
				if s.notes[i].ID == id {
					s.notes = append(s.notes[:i], s.notes[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			s.writeEnvelope(w, http.StatusOK, nil)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *noteServer) writeEnvelope(w http.ResponseWriter, status int, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.t.Errorf("marshal envelope data: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":true,"message":"","data":%s}`, raw)
}

func (s *noteServer) putCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts[id])
}

func (s *noteServer) lastPut(id string) (UpdateNoteRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := s.puts[id]
	if len(reqs) == 0 {
		return UpdateNoteRequest{}, false
	}
	return reqs[len(reqs)-1], true
}

func (s *noteServer) deleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deletes)
}

// newTestCache wires a cache to the given server with a short debounce so
// tests run fast.
func newTestCache(t *testing.T, s *noteServer) (*NoteCache, *TokenStore) {
	t.Helper()
	creds := NewTokenStore()
	creds.Set("test-token")
	cfg := DefaultConfig()
	cfg.APIURL = s.baseURL()
	cfg.SaveDebounce = 25 * time.Millisecond
	client := NewFromConfig(cfg, creds)
	cache := NewNoteCache(client, creds, cfg)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, creds
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
