package implementation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rag-chat-be/internal/entity"
	"rag-chat-be/internal/mapper"
	"rag-chat-be/internal/model"
	"rag-chat-be/internal/repository/contract"
	"rag-chat-be/internal/repository/specification"
)

type SessionFileRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewSessionFileRepository(db *gorm.DB) contract.SessionFileRepository {
	return &SessionFileRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *SessionFileRepositoryImpl) Create(ctx context.Context, file *entity.SessionFile) error {
	m := r.mapper.SessionFileToModel(file)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*file = *r.mapper.SessionFileToEntity(m)
	return nil
}

func (r *SessionFileRepositoryImpl) MarkVectorized(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.SessionFile{}).
		Where("id = ?", id).
		Update("vectorized", true).Error
}

func (r *SessionFileRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.SessionFile{}).Error
}

func (r *SessionFileRepositoryImpl) DeleteByChatSessionId(ctx context.Context, chatSessionId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("chat_session_id = ?", chatSessionId).Delete(&model.SessionFile{}).Error
}

func (r *SessionFileRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.SessionFile, error) {
	var m model.SessionFile
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.SessionFileToEntity(&m), nil
}

func (r *SessionFileRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SessionFile, error) {
	var models []*model.SessionFile
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.SessionFile, len(models))
	for i, m := range models {
		entities[i] = r.mapper.SessionFileToEntity(m)
	}
	return entities, nil
}

func (r *SessionFileRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.SessionFile{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
