package types

import "time"

// ------------------------------
// Core Domain Entities
// ------------------------------

// Note represents a single note record as stored by the backend.
// Records are value snapshots: every mutation produces a new Note with a
// refreshed UpdatedAt. UpdatedAt is never earlier than CreatedAt.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
