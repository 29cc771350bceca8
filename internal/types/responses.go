package types

import "encoding/json"

// ------------------------------
// Response Types
// ------------------------------

// Envelope mirrors the backend's uniform response wrapper. Data is left
// raw so each call site can decode into its own shape.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// SignInResponse carries the bearer token issued on login.
type SignInResponse struct {
	Token string `json:"token"`
}
