package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"rag-chat-be/internal/model"
	"rag-chat-be/pkg/rag/ragerr"
	"rag-chat-be/pkg/rag/vectorindex"
)

const indexInsertBatch = 500

// SessionIndexPersister stores session indexes as rows: one table for
// vectors, one for chunk records, both keyed by (session_id, position).
type SessionIndexPersister struct {
	db *gorm.DB
}

var _ vectorindex.Persister = (*SessionIndexPersister)(nil)

func NewSessionIndexPersister(db *gorm.DB) *SessionIndexPersister {
	return &SessionIndexPersister{db: db}
}

// Save appends the rows the database does not have yet. Indexes only grow,
// so when both tables already hold a prefix of the snapshot only the tail is
// written; anything else is rewritten from scratch.
func (p *SessionIndexPersister) Save(ctx context.Context, sessionId string, snap *vectorindex.Snapshot) error {
	if len(snap.Vectors) != len(snap.Records) {
		return fmt.Errorf("%w: %d vectors for %d records", ragerr.ErrCorruptState, len(snap.Vectors), len(snap.Records))
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var vectorCount, chunkCount int64
		if err := tx.Model(&model.SessionIndexVector{}).Where("session_id = ?", sessionId).Count(&vectorCount).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.SessionIndexChunk{}).Where("session_id = ?", sessionId).Count(&chunkCount).Error; err != nil {
			return err
		}

		start := int(vectorCount)
		if vectorCount != chunkCount || start > len(snap.Vectors) {
			if err := deleteIndexRows(tx, sessionId); err != nil {
				return err
			}
			start = 0
		}
		if start == len(snap.Vectors) {
			return nil
		}

		vectors := make([]model.SessionIndexVector, 0, len(snap.Vectors)-start)
		chunks := make([]model.SessionIndexChunk, 0, len(snap.Records)-start)
		for i := start; i < len(snap.Vectors); i++ {
			meta, err := json.Marshal(snap.Records[i].Metadata)
			if err != nil {
				return err
			}
			vectors = append(vectors, model.SessionIndexVector{
				SessionId: sessionId,
				Position:  i,
				Embedding: pgvector.NewVector(snap.Vectors[i]),
			})
			chunks = append(chunks, model.SessionIndexChunk{
				SessionId: sessionId,
				Position:  i,
				Content:   snap.Records[i].Content,
				Metadata:  meta,
			})
		}

		if err := tx.CreateInBatches(vectors, indexInsertBatch).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(chunks, indexInsertBatch).Error
	})
}

func (p *SessionIndexPersister) Load(ctx context.Context, sessionId string) (*vectorindex.Snapshot, error) {
	var vectors []model.SessionIndexVector
	var chunks []model.SessionIndexChunk

	db := p.db.WithContext(ctx)
	if err := db.Where("session_id = ?", sessionId).Order("position ASC").Find(&vectors).Error; err != nil {
		return nil, err
	}
	if err := db.Where("session_id = ?", sessionId).Order("position ASC").Find(&chunks).Error; err != nil {
		return nil, err
	}

	switch {
	case len(vectors) == 0 && len(chunks) == 0:
		return nil, ragerr.ErrNotFound
	case len(vectors) != len(chunks):
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ragerr.ErrCorruptState, len(vectors), len(chunks))
	}

	snap := &vectorindex.Snapshot{
		Dimension: len(vectors[0].Embedding.Slice()),
		Vectors:   make([][]float32, len(vectors)),
		Records:   make([]vectorindex.ChunkRecord, len(chunks)),
	}
	for i := range vectors {
		if vectors[i].Position != i || chunks[i].Position != i {
			return nil, fmt.Errorf("%w: gap at position %d", ragerr.ErrCorruptState, i)
		}
		vec := vectors[i].Embedding.Slice()
		if len(vec) != snap.Dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", ragerr.ErrCorruptState, i, len(vec), snap.Dimension)
		}
		snap.Vectors[i] = vec

		var meta vectorindex.ChunkMetadata
		if len(chunks[i].Metadata) > 0 {
			if err := json.Unmarshal(chunks[i].Metadata, &meta); err != nil {
				return nil, fmt.Errorf("%w: chunk %d metadata: %v", ragerr.ErrCorruptState, i, err)
			}
		}
		snap.Records[i] = vectorindex.ChunkRecord{Content: chunks[i].Content, Metadata: meta}
	}
	return snap, nil
}

func (p *SessionIndexPersister) Delete(ctx context.Context, sessionId string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteIndexRows(tx, sessionId)
	})
}

func deleteIndexRows(tx *gorm.DB, sessionId string) error {
	return errors.Join(
		tx.Where("session_id = ?", sessionId).Delete(&model.SessionIndexVector{}).Error,
		tx.Where("session_id = ?", sessionId).Delete(&model.SessionIndexChunk{}).Error,
	)
}
