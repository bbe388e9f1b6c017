package mapper

import (
	"rag-chat-be/internal/entity"
	"rag-chat-be/internal/model"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}
	return &entity.ChatSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}
	return &model.ChatSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}
	refs := []string(msg.FileReferences)
	if refs == nil {
		refs = []string{}
	}
	return &entity.ChatMessage{
		Id:             msg.Id,
		ChatSessionId:  msg.ChatSessionId,
		Role:           msg.Role,
		Content:        msg.Content,
		FileReferences: refs,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}
	return &model.ChatMessage{
		Id:             msg.Id,
		ChatSessionId:  msg.ChatSessionId,
		Role:           msg.Role,
		Content:        msg.Content,
		FileReferences: msg.FileReferences,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessagesToEntities(msgs []*model.ChatMessage) []*entity.ChatMessage {
	out := make([]*entity.ChatMessage, len(msgs))
	for i, msg := range msgs {
		out[i] = m.ChatMessageToEntity(msg)
	}
	return out
}

// File Mappers

func (m *ChatMapper) SessionFileToEntity(f *model.SessionFile) *entity.SessionFile {
	if f == nil {
		return nil
	}
	return &entity.SessionFile{
		Id:            f.Id,
		ChatSessionId: f.ChatSessionId,
		Filename:      f.Filename,
		FileType:      f.FileType,
		FileSize:      f.FileSize,
		ContentText:   f.ContentText,
		Vectorized:    f.Vectorized,
		UploadedAt:    f.UploadedAt,
	}
}

func (m *ChatMapper) SessionFileToModel(f *entity.SessionFile) *model.SessionFile {
	if f == nil {
		return nil
	}
	return &model.SessionFile{
		Id:            f.Id,
		ChatSessionId: f.ChatSessionId,
		Filename:      f.Filename,
		FileType:      f.FileType,
		FileSize:      f.FileSize,
		ContentText:   f.ContentText,
		Vectorized:    f.Vectorized,
		UploadedAt:    f.UploadedAt,
	}
}
