package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rag-chat-be/internal/dto"
	"rag-chat-be/internal/entity"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/internal/repository/memory"
	"rag-chat-be/internal/repository/specification"
	"rag-chat-be/internal/repository/unitofwork"
	"rag-chat-be/pkg/events"
	"rag-chat-be/pkg/extract"
	"rag-chat-be/pkg/rag/ragerr"
	"rag-chat-be/pkg/rag/vectorindex"
)

const fileModule = "FILES"

// DocumentIndexer maintains a session's vector index.
type DocumentIndexer interface {
	Add(ctx context.Context, sessionId string, texts []string, metadatas []vectorindex.ChunkMetadata) (int, error)
	Rebuild(ctx context.Context, sessionId string, texts []string, metadatas []vectorindex.ChunkMetadata) (int, error)
	Load(ctx context.Context, sessionId string) (bool, error)
}

type UploadFileRequest struct {
	Filename    string
	ContentType string
	Data        []byte
}

type IFileService interface {
	Upload(ctx context.Context, userId, sessionId uuid.UUID, req *UploadFileRequest) (*dto.UploadFileResponse, error)
	List(ctx context.Context, userId, sessionId uuid.UUID) ([]*dto.FileResponse, error)
	RestoreIndex(ctx context.Context, sessionId uuid.UUID) error
}

type fileService struct {
	uowFactory   unitofwork.RepositoryFactory
	sessionCache *memory.SessionRepository
	access       IChatService
	indexer      DocumentIndexer
	events       *events.ChatPublisher
	logger       logger.ILogger
}

func NewFileService(
	uowFactory unitofwork.RepositoryFactory,
	sessionCache *memory.SessionRepository,
	access IChatService,
	indexer DocumentIndexer,
	chatEvents *events.ChatPublisher,
	log logger.ILogger,
) IFileService {
	return &fileService{
		uowFactory:   uowFactory,
		sessionCache: sessionCache,
		access:       access,
		indexer:      indexer,
		events:       chatEvents,
		logger:       log,
	}
}

// Upload extracts the file's text, stores the file row and indexes the text.
// The row is flagged vectorized only once the index has been persisted, and
// removed again when indexing fails.
func (s *fileService) Upload(ctx context.Context, userId, sessionId uuid.UUID, req *UploadFileRequest) (*dto.UploadFileResponse, error) {
	unlock := s.access.LockSession(sessionId)
	defer unlock()

	// Checked under the lock so an upload never outlives a delete.
	if err := s.access.Authorize(ctx, userId, sessionId); err != nil {
		return nil, err
	}

	text, err := extract.Extract(req.Filename, req.Data)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	file := entity.SessionFile{
		Id:            uuid.New(),
		ChatSessionId: sessionId,
		Filename:      req.Filename,
		FileType:      req.ContentType,
		FileSize:      int64(len(req.Data)),
		ContentText:   text,
		UploadedAt:    time.Now(),
	}
	if err := uow.SessionFileRepository().Create(ctx, &file); err != nil {
		return nil, err
	}

	key := sessionId.String()
	metadata := []vectorindex.ChunkMetadata{{SourceFilename: file.Filename, SourceFileId: file.Id.String()}}
	chunks, err := s.indexer.Add(ctx, key, []string{text}, metadata)
	if errors.Is(err, ragerr.ErrCorruptState) {
		s.logger.Warn(fileModule, "Persisted index is corrupt, rebuilding from stored files", map[string]interface{}{
			"session_id": key,
			"error":      err.Error(),
		})
		if err = s.reindex(ctx, uow, sessionId); err == nil {
			chunks, err = s.indexer.Add(ctx, key, []string{text}, metadata)
		}
	}
	if err != nil {
		s.logger.Error(fileModule, "Failed to index file", map[string]interface{}{
			"session_id": key,
			"file_id":    file.Id.String(),
			"error":      err.Error(),
		})
		if delErr := uow.SessionFileRepository().Delete(ctx, file.Id); delErr != nil {
			s.logger.Warn(fileModule, "Failed to remove unindexed file", map[string]interface{}{
				"file_id": file.Id.String(),
				"error":   delErr.Error(),
			})
		}
		return nil, fmt.Errorf("index %s: %w", file.Filename, err)
	}

	if err := uow.SessionFileRepository().MarkVectorized(ctx, file.Id); err != nil {
		return nil, err
	}
	// Retrieval switches on once an indexed file exists.
	s.sessionCache.ForgetFilenames(sessionId)

	s.events.PublishFileIndexed(ctx, sessionId, file.Id, file.Filename, chunks)
	s.logger.Info(fileModule, "File indexed", map[string]interface{}{
		"session_id": key,
		"file_id":    file.Id.String(),
		"chunks":     chunks,
	})

	return &dto.UploadFileResponse{
		FileId:   file.Id,
		Filename: file.Filename,
		Chunks:   chunks,
		Message:  "File uploaded and vectorized successfully",
	}, nil
}

// RestoreIndex brings a session's index into memory. A corrupt persisted copy
// is replaced by one rebuilt from the stored file texts.
func (s *fileService) RestoreIndex(ctx context.Context, sessionId uuid.UUID) error {
	_, err := s.indexer.Load(ctx, sessionId.String())
	if !errors.Is(err, ragerr.ErrCorruptState) {
		return err
	}

	unlock := s.access.LockSession(sessionId)
	defer unlock()

	s.logger.Warn(fileModule, "Persisted index is corrupt, rebuilding from stored files", map[string]interface{}{
		"session_id": sessionId.String(),
		"error":      err.Error(),
	})
	return s.reindex(ctx, s.uowFactory.NewUnitOfWork(ctx), sessionId)
}

// reindex rebuilds the session index from every indexed file's stored text.
func (s *fileService) reindex(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) error {
	files, err := uow.SessionFileRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.Vectorized{Value: true},
		specification.OrderBy{Field: "uploaded_at"},
	)
	if err != nil {
		return err
	}

	texts := make([]string, 0, len(files))
	metadatas := make([]vectorindex.ChunkMetadata, 0, len(files))
	for _, f := range files {
		texts = append(texts, f.ContentText)
		metadatas = append(metadatas, vectorindex.ChunkMetadata{SourceFilename: f.Filename, SourceFileId: f.Id.String()})
	}

	chunks, err := s.indexer.Rebuild(ctx, sessionId.String(), texts, metadatas)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	s.logger.Info(fileModule, "Session index rebuilt", map[string]interface{}{
		"session_id": sessionId.String(),
		"files":      len(files),
		"chunks":     chunks,
	})
	return nil
}

func (s *fileService) List(ctx context.Context, userId, sessionId uuid.UUID) ([]*dto.FileResponse, error) {
	if err := s.access.Authorize(ctx, userId, sessionId); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	files, err := uow.SessionFileRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "uploaded_at"},
	)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.FileResponse, 0, len(files))
	for _, f := range files {
		result = append(result, &dto.FileResponse{
			Id:         f.Id,
			Filename:   f.Filename,
			FileType:   f.FileType,
			FileSize:   f.FileSize,
			UploadedAt: f.UploadedAt,
			Vectorized: f.Vectorized,
		})
	}
	return result, nil
}
