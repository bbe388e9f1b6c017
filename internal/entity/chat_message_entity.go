package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	Role          string
	Content       string
	// Filenames of the session's uploads at the time an answer was produced.
	FileReferences []string
	CreatedAt      time.Time
}
