// Package dairy is the client SDK for the dairy note service. It keeps an
// optimistic local cache of the user's notes in sync with the backend
// (NoteCache), maintains a resilient WebSocket session for streamed AI
// suggestions (Session), and folds the two together in the suggestion
// Orchestrator.
package dairy

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dairynotes/dairy-client/internal/api"
)

// --------------------------------------------------------------------
// Client core
// --------------------------------------------------------------------

// Client is the thin request/response wrapper around the note REST API.
// It holds no note state; the NoteCache owns that.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	log     zerolog.Logger
}

// New constructs a Client for baseURL, drawing bearer tokens from creds.
// Additional options can be provided via functional arguments.
func New(baseURL string, creds CredentialSource, opts ...Option) *Client {
	if baseURL == "" {
		panic("baseURL cannot be empty")
	}
	if creds == nil {
		panic("credential source cannot be nil")
	}

	c := &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "client").Logger(),
	}

	// Auto-enable debug via env variable without changing code.
	if debugLoggingRequested() {
		opts = append(opts, WithDebugLogging(true))
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			panic(err)
		}
	}

	// Wrap the transport so every request carries the current bearer token.
	c.wrapTransportWithBearer()

	return c
}

// NewFromConfig constructs a Client from a Config.
func NewFromConfig(cfg Config, creds CredentialSource, opts ...Option) *Client {
	opts = append([]Option{WithHTTPTimeout(cfg.HTTPTimeout)}, opts...)
	return New(cfg.APIURL, creds, opts...)
}

// wrapTransportWithBearer wraps the HTTP client's transport to add the
// Authorization header from the credential source on every request. The
// token is read per request so revocation takes effect immediately.
func (c *Client) wrapTransportWithBearer() {
	baseTransport := c.http.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	c.http.Transport = &bearerTransport{
		base:  baseTransport,
		creds: c.creds,
	}
}

// bearerTransport wraps an http.RoundTripper to inject the Authorization
// header when a credential is present.
type bearerTransport struct {
	base  http.RoundTripper
	creds CredentialSource
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := t.creds.Token()
	if !ok {
		return t.base.RoundTrip(req)
	}
	// Clone the request to avoid modifying the original.
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(cloned)
}

// requireCredential rejects authenticated calls up front when no token is
// present, so credential absence surfaces as ErrNoCredential rather than
// a 401 round trip.
func (c *Client) requireCredential() error {
	if _, ok := c.creds.Token(); !ok {
		return ErrNoCredential
	}
	return nil
}

// --------------------------------------------------------------------
// Note operations - delegated to internal/api
// --------------------------------------------------------------------

// ListNotes fetches all notes for the authenticated user.
func (c *Client) ListNotes(ctx context.Context) ([]Note, error) {
	if err := c.requireCredential(); err != nil {
		return nil, err
	}
	return api.ListNotes(ctx, c.http, c.baseURL)
}

// CreateNote persists a new note and returns the canonical record.
func (c *Client) CreateNote(ctx context.Context, req CreateNoteRequest) (*Note, error) {
	if err := c.requireCredential(); err != nil {
		return nil, err
	}
	return api.CreateNote(ctx, c.http, c.baseURL, req)
}

// UpdateNote writes the full field values of an existing note.
func (c *Client) UpdateNote(ctx context.Context, noteID string, req UpdateNoteRequest) (*Note, error) {
	if err := c.requireCredential(); err != nil {
		return nil, err
	}
	return api.UpdateNote(ctx, c.http, c.baseURL, noteID, req)
}

// DeleteNote removes a note by id.
func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	if err := c.requireCredential(); err != nil {
		return err
	}
	return api.DeleteNote(ctx, c.http, c.baseURL, noteID)
}

// GetNote retrieves a single note by id.
func (c *Client) GetNote(ctx context.Context, noteID string) (*Note, error) {
	if err := c.requireCredential(); err != nil {
		return nil, err
	}
	return api.GetNote(ctx, c.http, c.baseURL, noteID)
}

// --------------------------------------------------------------------
// Auth operations - no credential required
// --------------------------------------------------------------------

// SignIn exchanges username/password for a bearer token. The caller is
// responsible for storing the token in its CredentialSource.
func (c *Client) SignIn(ctx context.Context, username, password string) (string, error) {
	return api.SignIn(ctx, c.http, c.baseURL, username, password)
}

// Health probes the backend.
func (c *Client) Health(ctx context.Context) error {
	return api.Health(ctx, c.http, c.baseURL)
}
