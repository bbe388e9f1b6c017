package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByChatSessionID struct {
	ChatSessionID uuid.UUID
}

func (s ByChatSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("chat_session_id = ?", s.ChatSessionID)
}

// ByUserID scopes sessions to their owner.
type ByUserID struct {
	UserID uuid.UUID
}

func (s ByUserID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}

// Vectorized filters files by indexing state.
type Vectorized struct {
	Value bool
}

func (s Vectorized) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("vectorized = ?", s.Value)
}
