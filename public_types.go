package dairy

import "github.com/dairynotes/dairy-client/internal/types"

// Public type aliases so SDK consumers can import only the dairy package.
type (
	// Domain entities
	Note = types.Note

	// Requests
	CreateNoteRequest = types.CreateNoteRequest
	UpdateNoteRequest = types.UpdateNoteRequest
	NotePatch         = types.NotePatch
)
