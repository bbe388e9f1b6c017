package dto

import (
	"time"

	"github.com/google/uuid"
)

type UploadFileResponse struct {
	FileId   uuid.UUID `json:"file_id"`
	Filename string    `json:"filename"`
	Chunks   int       `json:"chunks"`
	Message  string    `json:"message"`
}

type FileResponse struct {
	Id         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at"`
	Vectorized bool      `json:"vectorized"`
}
