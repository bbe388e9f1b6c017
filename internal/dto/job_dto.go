package dto

import "github.com/google/uuid"

// IndexTeardownMessage asks the background consumer to drop a deleted
// session's vector index.
type IndexTeardownMessage struct {
	SessionId uuid.UUID `json:"session_id"`
}
