package contract

import (
	"context"

	"github.com/google/uuid"

	"rag-chat-be/internal/entity"
	"rag-chat-be/internal/repository/specification"
)

type SessionFileRepository interface {
	Create(ctx context.Context, file *entity.SessionFile) error
	MarkVectorized(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByChatSessionId(ctx context.Context, chatSessionId uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.SessionFile, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SessionFile, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
