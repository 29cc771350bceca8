package dairy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConnState is the streaming session's connection state.
type ConnState int32

const (
	// Disconnected means no transport is open and no dial is running.
	Disconnected ConnState = iota
	// Connecting means a dial attempt is in progress or scheduled.
	Connecting
	// Connected means the transport is open.
	Connected
)

// String returns a human-readable representation of the state.
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// StreamEventKind enumerates the events a Session delivers.
type StreamEventKind int

const (
	// StreamConnected fires when the transport opens.
	StreamConnected StreamEventKind = iota
	// StreamChunk carries an incremental text fragment for the active
	// stream.
	StreamChunk
	// StreamComplete marks the active stream finished.
	StreamComplete
	// StreamError marks the active stream failed; partial content already
	// delivered remains valid.
	StreamError
	// StreamDisconnected fires when the transport closes for any reason.
	StreamDisconnected
	// StreamLost is terminal: reconnect attempts are exhausted.
	StreamLost
)

// StreamEvent is a correlated session event. StreamID is set for
// chunk/complete/error events and names the logical request the frame
// belongs to.
type StreamEvent struct {
	Kind      StreamEventKind
	StreamID  string
	Content   string // chunk fragment
	Message   string // error detail
	Timestamp time.Time
}

// outbound/inbound wire frames, JSON-object framed.
type outboundFrame struct {
	Prompt     string `json:"prompt"`
	TemplateID string `json:"templateId"`
}

type inboundFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Session owns one logical duplex channel to the suggestion-streaming
// endpoint. It reconnects with exponential backoff after unintentional
// closes and correlates inbound frames to the single active stream; a
// frame arriving while no stream is active (or after the stream was
// superseded) is dropped.
type Session struct {
	streamURL   string
	creds       CredentialSource
	handler     func(StreamEvent)
	maxAttempts int
	log         zerolog.Logger

	// writeMu serializes writes to the transport, as required by the
	// websocket package.
	writeMu sync.Mutex

	mu             sync.Mutex
	state          ConnState
	conn           *websocket.Conn
	gen            uint64 // connection generation; guards stale read loops
	attempts       int
	bo             *backoff.ExponentialBackOff
	reconnectTimer *time.Timer
	activeStream   string
	closed         bool
}

// NewSession constructs a session for cfg.StreamURL. handler receives all
// session events; it is invoked from the session's read goroutine and
// must not block.
func NewSession(cfg Config, creds CredentialSource, handler func(StreamEvent)) *Session {
	return &Session{
		streamURL:   cfg.StreamURL,
		creds:       creds,
		handler:     handler,
		maxAttempts: cfg.MaxReconnects,
		bo:          newReconnectBackoff(cfg.ReconnectBase, cfg.ReconnectCap),
		log:         log.With().Str("component", "stream").Logger(),
	}
}

// newReconnectBackoff yields the deterministic schedule
// min(base * 2^attempt, cap).
func newReconnectBackoff(base, cap time.Duration) *backoff.ExponentialBackOff {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = cap
	b.MaxElapsedTime = 0 // attempts are counted explicitly
	b.Reset()
	return b
}

// SetHandler installs the event handler. Must be called before Connect.
func (s *Session) SetHandler(h func(StreamEvent)) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveStream returns the identity of the active stream, or "".
func (s *Session) ActiveStream() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeStream
}

// StartStream makes id the active stream, superseding any previous one.
// Frames still in flight for the superseded stream will be discarded.
func (s *Session) StartStream(id string) {
	s.mu.Lock()
	s.activeStream = id
	s.mu.Unlock()
}

// EndStream deactivates id if it is still the active stream. Late frames
// for it are then dropped.
func (s *Session) EndStream(id string) {
	s.mu.Lock()
	if s.activeStream == id {
		s.activeStream = ""
	}
	s.mu.Unlock()
}

// Connect dials the streaming endpoint. Credential absence is reported as
// ErrNoCredential without touching the network. A failed dial schedules a
// reconnect attempt; Connect returns the immediate dial error either way.
func (s *Session) Connect(ctx context.Context) error {
	token, ok := s.creds.Token()
	if !ok {
		return ErrNoCredential
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	s.mu.Unlock()

	return s.dial(ctx, token)
}

func (s *Session) dial(ctx context.Context, token string) error {
	u := s.streamURL + "?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("stream dial failed")
		s.scheduleReconnect()
		return fmt.Errorf("stream dial: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.state = Disconnected
		s.mu.Unlock()
		_ = conn.Close()
		return ErrSessionClosed
	}
	s.conn = conn
	s.state = Connected
	s.attempts = 0
	s.bo.Reset()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.log.Info().Msg("stream connected")
	s.emit(StreamEvent{Kind: StreamConnected, Timestamp: time.Now()})
	go s.readLoop(conn, gen)
	return nil
}

// Send transmits a prompt for the active stream. Sending while the
// transport is not open fails with ErrNotConnected; nothing is queued.
func (s *Session) Send(prompt, templateID string) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()
	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(outboundFrame{Prompt: prompt, TemplateID: templateID}); err != nil {
		return fmt.Errorf("stream send: %w", err)
	}
	return nil
}

// Close tears the session down intentionally: the transport is closed
// with a normal-closure code so the automatic reconnect does not fire,
// and any active stream is aborted.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = Disconnected
	active := s.activeStream
	s.activeStream = ""
	s.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown")
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	if active != "" {
		s.emit(StreamEvent{Kind: StreamError, StreamID: active, Message: "session closed", Timestamp: time.Now()})
	}
	return nil
}

// ------------------------- internals -------------------------

func (s *Session) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			intentional := websocket.IsCloseError(err, websocket.CloseNormalClosure)
			s.handleClose(gen, intentional)
			return
		}
		s.handleFrame(data)
	}
}

func (s *Session) handleClose(gen uint64, intentional bool) {
	s.mu.Lock()
	if gen != s.gen {
		// A newer connection replaced this one; nothing to do.
		s.mu.Unlock()
		return
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.state = Disconnected
	active := s.activeStream
	s.activeStream = ""
	closed := s.closed
	s.mu.Unlock()

	s.log.Info().Bool("intentional", intentional || closed).Msg("stream disconnected")
	s.emit(StreamEvent{Kind: StreamDisconnected, Timestamp: time.Now()})
	if active != "" {
		// The replacement socket has no memory of the request, so the
		// stream is dead; surface that with partial content preserved.
		s.emit(StreamEvent{Kind: StreamError, StreamID: active, Message: "connection closed mid-stream", Timestamp: time.Now()})
	}
	if closed || intentional {
		return
	}
	s.scheduleReconnect()
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.closed || s.state != Disconnected {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.maxAttempts {
		s.mu.Unlock()
		s.log.Error().Int("attempts", s.maxAttempts).Msg("stream reconnect attempts exhausted")
		s.emit(StreamEvent{Kind: StreamLost, Timestamp: time.Now()})
		return
	}
	delay := s.bo.NextBackOff()
	s.attempts++
	attempt := s.attempts
	s.state = Connecting
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(delay, s.reconnect)
	s.mu.Unlock()

	streamReconnectsTotal.Inc()
	s.log.Info().Dur("delay", delay).Int("attempt", attempt).Int("max", s.maxAttempts).Msg("stream reconnect scheduled")
}

func (s *Session) reconnect() {
	token, ok := s.creds.Token()
	if !ok {
		// Credential revoked while waiting; stop retrying quietly.
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		s.log.Warn().Msg("stream reconnect skipped: no credential")
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	_ = s.dial(context.Background(), token)
}

// handleFrame parses and correlates one inbound frame. Parse failures and
// frames with no active stream are dropped; they never terminate the
// connection.
func (s *Session) handleFrame(data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		streamFramesDroppedTotal.Inc()
		s.log.Warn().Err(err).Str("raw", truncate(string(data), 256)).Msg("dropping unparseable stream frame")
		return
	}

	switch f.Type {
	case "connected":
		// Handshake acknowledgement; already surfaced on transport open.
		return
	case "chunk", "complete", "error":
		s.mu.Lock()
		id := s.activeStream
		if id != "" && f.Type != "chunk" {
			// The stream is over either way.
			s.activeStream = ""
		}
		s.mu.Unlock()
		if id == "" {
			streamFramesDroppedTotal.Inc()
			s.log.Debug().Str("type", f.Type).Msg("dropping frame with no active stream")
			return
		}
		ev := StreamEvent{StreamID: id, Timestamp: time.Now()}
		switch f.Type {
		case "chunk":
			ev.Kind = StreamChunk
			ev.Content = f.Content
		case "complete":
			ev.Kind = StreamComplete
		case "error":
			ev.Kind = StreamError
			ev.Message = f.Message
		}
		s.emit(ev)
	default:
		streamFramesDroppedTotal.Inc()
		s.log.Warn().Str("type", f.Type).Msg("dropping stream frame of unknown type")
	}
}

func (s *Session) emit(ev StreamEvent) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
