package dairy

import "sync"

// CredentialSource supplies the opaque bearer token used by both the
// remote note service and the streaming endpoint. The SDK never inspects
// the token; it only checks presence and forwards the value.
type CredentialSource interface {
	// Token returns the current credential and whether one is present.
	Token() (string, bool)
	// Clear revokes the credential. Subsequent Token calls report absence.
	Clear()
}

// TokenStore is an in-memory CredentialSource. The token lives for the
// lifetime of the process; durable storage is the embedding
// application's concern.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewTokenStore returns an empty store.
func NewTokenStore() *TokenStore { return &TokenStore{} }

// Set installs a new credential, replacing any previous one.
func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Token implements CredentialSource.
func (s *TokenStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Clear implements CredentialSource.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}
