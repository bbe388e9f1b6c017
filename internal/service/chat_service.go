package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"rag-chat-be/internal/dto"
	"rag-chat-be/internal/entity"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/internal/repository/memory"
	"rag-chat-be/internal/repository/specification"
	"rag-chat-be/internal/repository/unitofwork"
	"rag-chat-be/internal/websocket"
	"rag-chat-be/pkg/events"
	"rag-chat-be/pkg/llm"
	"rag-chat-be/pkg/rag/engine"
	"rag-chat-be/pkg/rag/history"
	"rag-chat-be/pkg/rag/ragerr"
)

const (
	chatModule = "CHAT"

	DefaultSessionTitle = "New Chat"
	maxSessionsListed   = 100
)

// ErrSessionNotFound is returned for sessions that do not exist and for
// sessions owned by someone else, so ids cannot be probed.
var ErrSessionNotFound = fmt.Errorf("Session %w", ragerr.ErrNotFound)

// ChatEngine produces answers and titles.
type ChatEngine interface {
	GenerateResponse(ctx context.Context, req engine.Request) (*engine.ResponseStream, error)
	GenerateChatTitle(ctx context.Context, firstMessage string) (string, error)
}

// Broadcaster delivers events to every live connection of a session.
type Broadcaster interface {
	Send(sessionId string, event websocket.Event) int
}

type IChatService interface {
	CreateSession(ctx context.Context, userId uuid.UUID) (*dto.CreateSessionResponse, error)
	ListSessions(ctx context.Context, userId uuid.UUID) ([]*dto.SessionResponse, error)
	ListMessages(ctx context.Context, userId, sessionId uuid.UUID) ([]*dto.MessageResponse, error)
	DeleteSession(ctx context.Context, userId, sessionId uuid.UUID) error

	// Authorize fails with ErrSessionNotFound unless userId owns sessionId.
	Authorize(ctx context.Context, userId, sessionId uuid.UUID) error

	// HandleTurn answers one user message and streams the answer to the
	// session's connections. Turns of one session never overlap.
	HandleTurn(ctx context.Context, sessionId uuid.UUID, content string) error

	// LockSession waits until no turn, delete or upload runs for the session
	// and holds it off until unlock is called.
	LockSession(sessionId uuid.UUID) (unlock func())
}

type chatService struct {
	uowFactory    unitofwork.RepositoryFactory
	sessionCache  *memory.SessionRepository
	engine        ChatEngine
	history       *history.Loader
	broadcaster   Broadcaster
	events        *events.ChatPublisher
	teardown      IPublisherService
	logger        logger.ILogger
	historyWindow int
	gate          *turnGate
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	sessionCache *memory.SessionRepository,
	chatEngine ChatEngine,
	historyLoader *history.Loader,
	broadcaster Broadcaster,
	chatEvents *events.ChatPublisher,
	teardown IPublisherService,
	log logger.ILogger,
	historyWindow int,
) IChatService {
	return &chatService{
		uowFactory:    uowFactory,
		sessionCache:  sessionCache,
		engine:        chatEngine,
		history:       historyLoader,
		broadcaster:   broadcaster,
		events:        chatEvents,
		teardown:      teardown,
		logger:        log,
		historyWindow: historyWindow,
		gate:          newTurnGate(),
	}
}

func (s *chatService) CreateSession(ctx context.Context, userId uuid.UUID) (*dto.CreateSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	now := time.Now()
	session := entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     DefaultSessionTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uow.ChatSessionRepository().Create(ctx, &session); err != nil {
		return nil, err
	}
	s.sessionCache.SaveOwner(session.Id, userId)
	s.sessionCache.SaveFilenames(session.Id, nil)

	return &dto.CreateSessionResponse{SessionId: session.Id, Title: session.Title}, nil
}

func (s *chatService) ListSessions(ctx context.Context, userId uuid.UUID) ([]*dto.SessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.ByUserID{UserID: userId},
		specification.OrderBy{Field: "updated_at", Desc: true},
		specification.Pagination{Limit: maxSessionsListed},
	)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, &dto.SessionResponse{
			Id:        session.Id,
			Title:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		})
	}
	return result, nil
}

func (s *chatService) ListMessages(ctx context.Context, userId, sessionId uuid.UUID) ([]*dto.MessageResponse, error) {
	if err := s.Authorize(ctx, userId, sessionId); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		result = append(result, &dto.MessageResponse{
			Id:             msg.Id,
			Role:           msg.Role,
			Content:        msg.Content,
			Timestamp:      msg.CreatedAt,
			FileReferences: msg.FileReferences,
		})
	}
	return result, nil
}

// DeleteSession removes the session with its messages and files, then
// queues the index teardown. It waits for an in-flight turn to finish.
func (s *chatService) DeleteSession(ctx context.Context, userId, sessionId uuid.UUID) error {
	if err := s.Authorize(ctx, userId, sessionId); err != nil {
		return err
	}

	unlock := s.gate.Lock(sessionId)
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.SessionFileRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}
	s.sessionCache.Delete(sessionId)

	payload, err := json.Marshal(dto.IndexTeardownMessage{SessionId: sessionId})
	if err != nil {
		return err
	}
	if err := s.teardown.Publish(ctx, payload); err != nil {
		// The rows are gone; an orphaned index only costs storage.
		s.logger.Error(chatModule, "Failed to queue index teardown", map[string]interface{}{
			"session_id": sessionId.String(),
			"error":      err.Error(),
		})
	}

	s.events.PublishSessionDeleted(ctx, sessionId, userId)
	return nil
}

func (s *chatService) LockSession(sessionId uuid.UUID) (unlock func()) {
	return s.gate.Lock(sessionId)
}

func (s *chatService) Authorize(ctx context.Context, userId, sessionId uuid.UUID) error {
	if owner, ok := s.sessionCache.GetOwner(sessionId); ok {
		if owner != userId {
			return ErrSessionNotFound
		}
		return nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	s.sessionCache.SaveOwner(sessionId, session.UserId)
	if session.UserId != userId {
		return ErrSessionNotFound
	}
	return nil
}

// filenames returns the names of the session's indexed uploads, oldest first.
func (s *chatService) filenames(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) ([]string, error) {
	if names, ok := s.sessionCache.GetFilenames(sessionId); ok {
		return names, nil
	}

	files, err := uow.SessionFileRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.Vectorized{Value: true},
		specification.OrderBy{Field: "uploaded_at"},
	)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
	}
	s.sessionCache.SaveFilenames(sessionId, names)
	return names, nil
}

func (s *chatService) HandleTurn(ctx context.Context, sessionId uuid.UUID, content string) error {
	unlock := s.gate.Lock(sessionId)
	defer unlock()

	key := sessionId.String()
	answer, err := s.runTurn(ctx, sessionId, content)
	if err != nil {
		s.logger.Error(chatModule, "Turn failed", map[string]interface{}{
			"session_id": key,
			"error":      err.Error(),
		})
		s.broadcaster.Send(key, websocket.ErrorEvent(clientMessage(err)))
		s.broadcaster.Send(key, websocket.EndEvent())
		return err
	}
	s.broadcaster.Send(key, websocket.EndEvent())

	s.afterTurn(ctx, sessionId, content, answer)
	return nil
}

// runTurn persists the user message, streams the answer and persists it.
// Nothing of the answer is stored unless the model finished.
func (s *chatService) runTurn(ctx context.Context, sessionId uuid.UUID, content string) (*entity.ChatMessage, error) {
	key := sessionId.String()
	uow := s.uowFactory.NewUnitOfWork(ctx)

	userMsg := entity.ChatMessage{
		Id:             uuid.New(),
		ChatSessionId:  sessionId,
		Role:           llm.RoleUser,
		Content:        content,
		FileReferences: []string{},
		CreatedAt:      time.Now(),
	}
	if err := uow.ChatMessageRepository().Create(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	turns, err := s.history.LoadBefore(ctx, sessionId, userMsg.Id, s.historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	filenames, err := s.filenames(ctx, uow, sessionId)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}

	stream, err := s.engine.GenerateResponse(ctx, engine.Request{
		Query:        content,
		SessionId:    key,
		History:      turns,
		UseRetrieval: len(filenames) > 0,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		answer.WriteString(fragment)
		s.broadcaster.Send(key, websocket.ChunkEvent(fragment))
	}

	assistantMsg := entity.ChatMessage{
		Id:             uuid.New(),
		ChatSessionId:  sessionId,
		Role:           llm.RoleAssistant,
		Content:        answer.String(),
		FileReferences: filenames,
		CreatedAt:      time.Now(),
	}
	if err := uow.ChatMessageRepository().Create(ctx, &assistantMsg); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}
	return &assistantMsg, nil
}

// afterTurn names a fresh session after its first exchange, or marks the
// session as recently active. Failures here never affect the turn.
func (s *chatService) afterTurn(ctx context.Context, sessionId uuid.UUID, question string, answer *entity.ChatMessage) {
	key := sessionId.String()
	uow := s.uowFactory.NewUnitOfWork(ctx)

	count, err := uow.ChatMessageRepository().Count(ctx, specification.ByChatSessionID{ChatSessionID: sessionId})
	if err != nil {
		s.logger.Warn(chatModule, "Failed to count messages", map[string]interface{}{"session_id": key, "error": err.Error()})
		return
	}

	if count != 2 {
		if err := uow.ChatSessionRepository().Touch(ctx, sessionId); err != nil {
			s.logger.Warn(chatModule, "Failed to bump session activity", map[string]interface{}{"session_id": key, "error": err.Error()})
		}
		return
	}

	title, err := s.engine.GenerateChatTitle(ctx, question)
	if err != nil || title == "" {
		fields := map[string]interface{}{"session_id": key}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.Warn(chatModule, "Title generation failed", fields)
		if err := uow.ChatSessionRepository().Touch(ctx, sessionId); err != nil {
			s.logger.Warn(chatModule, "Failed to bump session activity", map[string]interface{}{"session_id": key, "error": err.Error()})
		}
		return
	}

	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil || session == nil {
		s.logger.Warn(chatModule, "Session vanished before titling", map[string]interface{}{"session_id": key})
		return
	}
	session.Title = title
	session.UpdatedAt = time.Now()
	if err := uow.ChatSessionRepository().Update(ctx, session); err != nil {
		s.logger.Warn(chatModule, "Failed to save title", map[string]interface{}{"session_id": key, "error": err.Error()})
		return
	}

	s.broadcaster.Send(key, websocket.TitleEvent(title))
	s.events.PublishTitleGenerated(ctx, sessionId, title)
	s.logger.Info(chatModule, "Session titled", map[string]interface{}{
		"session_id": key,
		"title":      title,
		"answer_id":  answer.Id.String(),
	})
}

// clientMessage is the error text sent over the socket. Internal details stay
// in the logs.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ragerr.ErrExternalService):
		return "The AI service failed to answer. Please try again."
	case errors.Is(err, ragerr.ErrCorruptState):
		return "This chat's document index is damaged. Reconnect or upload a file to rebuild it."
	default:
		return "Something went wrong while answering."
	}
}
