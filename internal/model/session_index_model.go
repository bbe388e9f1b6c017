package model

import (
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// SessionIndexVector is vector Position of a session's index. The column has
// no fixed dimension because embedding models differ between deployments.
type SessionIndexVector struct {
	SessionId string          `gorm:"type:text;primaryKey"`
	Position  int             `gorm:"primaryKey;autoIncrement:false"`
	Embedding pgvector.Vector `gorm:"type:vector;not null"`
}

func (SessionIndexVector) TableName() string {
	return "session_index_vectors"
}

// SessionIndexChunk is the chunk record paired with the vector at Position.
type SessionIndexChunk struct {
	SessionId string         `gorm:"type:text;primaryKey"`
	Position  int            `gorm:"primaryKey;autoIncrement:false"`
	Content   string         `gorm:"type:text;not null"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
}

func (SessionIndexChunk) TableName() string {
	return "session_index_chunks"
}
