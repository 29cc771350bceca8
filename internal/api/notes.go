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

// ListNotes fetches every note owned by the authenticated user.
func ListNotes(ctx context.Context, httpClient *http.Client, baseURL string) ([]types.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/notes", baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, apierr.FromTransport("list notes", err)
	}

	var notes []types.Note
	if err := decodeEnvelope(resp, http.StatusOK, "list notes", &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// CreateNote persists a new note and returns the canonical record with the
// durable identity assigned by the backend.
func CreateNote(ctx context.Context, httpClient *http.Client, baseURL string, req types.CreateNoteRequest) (*types.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := types.ValidateTitle(req.Title); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/notes", baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, apierr.FromTransport("create note", err)
	}

	var note types.Note
	if err := decodeEnvelope(resp, http.StatusCreated, "create note", &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateNote writes the full field values for an existing note and returns
// the canonical record.
func UpdateNote(ctx context.Context, httpClient *http.Client, baseURL, noteID string, req types.UpdateNoteRequest) (*types.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := types.ValidateIDPresent(noteID, "noteId"); err != nil {
		return nil, err
	}
	if err := types.ValidateTitle(req.Title); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/notes/%s", baseURL, noteID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, apierr.FromTransport("update note", err)
	}

	var note types.Note
	if err := decodeEnvelope(resp, http.StatusOK, "update note", &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// DeleteNote removes a note by id.
func DeleteNote(ctx context.Context, httpClient *http.Client, baseURL, noteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := types.ValidateIDPresent(noteID, "noteId"); err != nil {
		return err
	}
	url := fmt.Sprintf("%s/notes/%s", baseURL, noteID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return apierr.FromTransport("delete note", err)
	}
	return decodeEnvelope(resp, http.StatusOK, "delete note", nil)
}

// GetNote retrieves a single note by id.
func GetNote(ctx context.Context, httpClient *http.Client, baseURL, noteID string) (*types.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := types.ValidateIDPresent(noteID, "noteId"); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/notes/%s", baseURL, noteID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, apierr.FromTransport("get note", err)
	}

	var note types.Note
	if err := decodeEnvelope(resp, http.StatusOK, "get note", &note); err != nil {
		return nil, err
	}
	return &note, nil
}
