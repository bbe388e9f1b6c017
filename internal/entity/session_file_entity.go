package entity

import (
	"time"

	"github.com/google/uuid"
)

type SessionFile struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	Filename      string
	FileType      string
	FileSize      int64
	ContentText   string
	Vectorized    bool
	UploadedAt    time.Time
}
