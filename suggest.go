package dairy

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dairynotes/dairy-client/prompts"
)

// SuggestionStatus tracks the lifecycle of a suggestion.
type SuggestionStatus int

const (
	// SuggestionStreaming means chunks are still arriving.
	SuggestionStreaming SuggestionStatus = iota
	// SuggestionComplete means the text is final.
	SuggestionComplete
	// SuggestionError means the stream failed; Content holds whatever
	// arrived before the failure.
	SuggestionError
)

// String returns a human-readable representation of the status.
func (s SuggestionStatus) String() string {
	switch s {
	case SuggestionStreaming:
		return "streaming"
	case SuggestionComplete:
		return "complete"
	case SuggestionError:
		return "error"
	default:
		return "unknown"
	}
}

// SuggestionTrigger records how a suggestion was initiated.
type SuggestionTrigger string

const (
	// TriggerAuto marks suggestions requested after a successful save.
	TriggerAuto SuggestionTrigger = "auto"
	// TriggerManual marks suggestions the user asked for explicitly.
	TriggerManual SuggestionTrigger = "manual"
)

// Suggestion is one AI suggestion, possibly still accumulating.
type Suggestion struct {
	ID        string
	Content   string
	CreatedAt time.Time
	Trigger   SuggestionTrigger
	Status    SuggestionStatus
	Message   string // error detail when Status is SuggestionError
}

// Orchestrator drives suggestion requests over a Session and folds the
// resulting event stream into a single current Suggestion. At most one
// suggestion streams at a time.
type Orchestrator struct {
	session    *Session
	templateID string
	minLen     int
	log        zerolog.Logger

	mu      sync.Mutex
	current *Suggestion

	// Updated is invoked after every mutation of the current suggestion,
	// outside the orchestrator's lock. Optional.
	Updated func(Suggestion)
}

// NewOrchestrator wires an orchestrator to session; it installs itself as
// the session's event handler.
func NewOrchestrator(session *Session, cfg Config) *Orchestrator {
	o := &Orchestrator{
		session:    session,
		templateID: cfg.TemplateID,
		minLen:     cfg.MinSuggestionLen,
		log:        log.With().Str("component", "suggest").Logger(),
	}
	session.SetHandler(o.handleEvent)
	return o
}

// Request starts a suggestion for content. Content shorter than the
// configured minimum (after trimming whitespace, counted in runes) is
// rejected with ErrContentTooShort; a request while another suggestion is
// streaming is rejected with ErrSuggestionInProgress.
func (o *Orchestrator) Request(content string, trigger SuggestionTrigger) (string, error) {
	trimmed := strings.TrimSpace(content)
	if len([]rune(trimmed)) < o.minLen {
		return "", ErrContentTooShort
	}

	o.mu.Lock()
	if o.current != nil && o.current.Status == SuggestionStreaming {
		o.mu.Unlock()
		return "", ErrSuggestionInProgress
	}
	id := uuid.NewString()
	o.current = &Suggestion{
		ID:        id,
		CreatedAt: time.Now(),
		Trigger:   trigger,
		Status:    SuggestionStreaming,
	}
	o.mu.Unlock()

	prompt, err := prompts.Render(o.templateID, trimmed)
	if err != nil {
		o.fail(id, err.Error())
		return "", err
	}

	o.session.StartStream(id)
	if err := o.session.Send(prompt, o.templateID); err != nil {
		o.session.EndStream(id)
		o.fail(id, err.Error())
		return "", err
	}

	o.log.Debug().Str("stream_id", id).Str("trigger", string(trigger)).Msg("suggestion requested")
	o.notify()
	return id, nil
}

// AutoRequest asks for a suggestion after a note save. Rejections are
// expected here (short notes, a stream already running) and are only
// logged.
func (o *Orchestrator) AutoRequest(n Note) {
	if _, err := o.Request(n.Content, TriggerAuto); err != nil {
		o.log.Debug().Err(err).Str("note_id", n.ID).Msg("auto suggestion skipped")
	}
}

// Current returns a copy of the current suggestion, if any.
func (o *Orchestrator) Current() (Suggestion, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Suggestion{}, false
	}
	return *o.current, true
}

// NoteSwitched freezes an in-flight suggestion when the user moves to a
// different note: the stream is abandoned but accumulated content is kept
// and marked complete.
func (o *Orchestrator) NoteSwitched() {
	o.mu.Lock()
	cur := o.current
	if cur == nil || cur.Status != SuggestionStreaming {
		o.mu.Unlock()
		return
	}
	id := cur.ID
	cur.Status = SuggestionComplete
	o.mu.Unlock()

	o.session.EndStream(id)
	o.log.Debug().Str("stream_id", id).Msg("suggestion frozen on note switch")
	o.notify()
}

// handleEvent folds session events into the current suggestion. Events
// tagged with a stale stream identity are ignored.
func (o *Orchestrator) handleEvent(ev StreamEvent) {
	switch ev.Kind {
	case StreamChunk, StreamComplete, StreamError:
	case StreamLost:
		o.log.Error().Msg("suggestion stream lost")
		return
	default:
		return
	}

	o.mu.Lock()
	cur := o.current
	if cur == nil || cur.ID != ev.StreamID || cur.Status != SuggestionStreaming {
		o.mu.Unlock()
		return
	}
	switch ev.Kind {
	case StreamChunk:
		cur.Content += ev.Content
	case StreamComplete:
		cur.Status = SuggestionComplete
	case StreamError:
		cur.Status = SuggestionError
		cur.Message = ev.Message
	}
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) fail(id, msg string) {
	o.mu.Lock()
	if o.current != nil && o.current.ID == id {
		o.current.Status = SuggestionError
		o.current.Message = msg
	}
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	h := o.Updated
	var snap Suggestion
	ok := o.current != nil
	if ok {
		snap = *o.current
	}
	o.mu.Unlock()
	if h != nil && ok {
		h(snap)
	}
}
