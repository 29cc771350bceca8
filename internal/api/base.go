// Package api contains the raw HTTP call functions for the dairy backend.
// Each function takes the caller's http.Client and base URL so the facade
// stays in charge of transport configuration (auth wrapper, timeouts,
// debug logging).
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dairynotes/dairy-client/internal/apierr"
	"github.com/dairynotes/dairy-client/internal/types"
)

// decodeEnvelope checks the response status against want and unwraps the
// backend's {success, message, data} envelope into out. Pass a nil out for
// endpoints whose data payload is irrelevant.
func decodeEnvelope(resp *http.Response, want int, op string, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apierr.FromStatus(op, resp.StatusCode, string(body))
	}

	var env types.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apierr.FromDecode(op, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apierr.FromDecode(op, err)
	}
	return nil
}
