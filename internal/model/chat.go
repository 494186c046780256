package model

// Chat is the slice of the chat table this service needs: resolving a shared
// chat link to its owner and cascading deletes when an account is removed.
// The chat content itself belongs to the chat backend.
type Chat struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}
