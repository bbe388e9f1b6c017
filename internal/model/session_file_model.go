package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionFile struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChatSessionId uuid.UUID `gorm:"type:uuid;not null;index"`
	Filename      string    `gorm:"type:text;not null"`
	FileType      string    `gorm:"type:varchar(100)"`
	FileSize      int64     `gorm:"not null;default:0"`
	ContentText   string    `gorm:"type:text"`
	Vectorized    bool      `gorm:"not null;default:false"`
	UploadedAt    time.Time `gorm:"autoCreateTime"`
}

func (SessionFile) TableName() string {
	return "session_files"
}
