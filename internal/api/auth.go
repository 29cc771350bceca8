package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dairynotes/dairy-client/internal/apierr"
	"github.com/dairynotes/dairy-client/internal/types"
)

// SignIn exchanges username/password for a bearer token. Unlike the note
// endpoints the login response is not enveloped.
func SignIn(ctx context.Context, httpClient *http.Client, baseURL, username, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body, err := json.Marshal(types.SignInRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/auth/signin", baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", apierr.FromTransport("sign in", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", apierr.FromStatus("sign in", resp.StatusCode, "")
	}

	var sr types.SignInResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", apierr.FromDecode("sign in", err)
	}
	if sr.Token == "" {
		return "", apierr.FromDecode("sign in", fmt.Errorf("no token in response"))
	}
	return sr.Token, nil
}

// Health probes the backend without authentication.
func Health(ctx context.Context, httpClient *http.Client, baseURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	url := fmt.Sprintf("%s/health", baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return apierr.FromTransport("health", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apierr.FromStatus("health", resp.StatusCode, "")
	}
	return nil
}
