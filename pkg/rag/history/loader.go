package history

import (
	"context"

	"github.com/google/uuid"

	"rag-chat-be/internal/entity"
	"rag-chat-be/internal/repository/specification"
	"rag-chat-be/internal/repository/unitofwork"
	"rag-chat-be/pkg/llm"
)

// Loader reads a session's earlier turns for the model.
type Loader struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewLoader(uowFactory unitofwork.RepositoryFactory) *Loader {
	return &Loader{uowFactory: uowFactory}
}

// LoadBefore returns up to limit messages of the session that precede the
// message current, oldest first. current is the user message of the turn
// being answered; it is already persisted and must not appear in its own
// history.
func (l *Loader) LoadBefore(ctx context.Context, sessionId, current uuid.UUID, limit int) ([]llm.Message, error) {
	if limit <= 0 {
		return []llm.Message{}, nil
	}

	uow := l.uowFactory.NewUnitOfWork(ctx)
	latest, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit + 1},
	)
	if err != nil {
		return nil, err
	}

	return ToMessages(latest, current, limit), nil
}

// ToMessages turns newest-first rows into an oldest-first history of at most
// limit turns, skipping the row with id exclude.
func ToMessages(newestFirst []*entity.ChatMessage, exclude uuid.UUID, limit int) []llm.Message {
	messages := make([]llm.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		msg := newestFirst[i]
		if msg.Id == exclude {
			continue
		}

		role := llm.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}

	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}
