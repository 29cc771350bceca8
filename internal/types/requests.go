package types

// ------------------------------
// Request Types
// ------------------------------

// CreateNoteRequest holds parameters for a new note.
type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateNoteRequest carries the full field values written by a save.
// The backend replaces both fields, so the caller must send the most
// recent values for each.
type UpdateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NotePatch is a partial, cache-level mutation. Nil fields are left
// untouched.
type NotePatch struct {
	Title   *string
	Content *string
}

// SignInRequest holds login credentials for token exchange.
type SignInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
