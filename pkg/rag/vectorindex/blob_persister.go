package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"rag-chat-be/pkg/rag/ragerr"
)

// ArtifactKind names one of the two blobs kept per session.
type ArtifactKind string

const (
	ArtifactIndex   ArtifactKind = "index"
	ArtifactRecords ArtifactKind = "records"
)

// ArtifactStore is a key/value blob store. Get returns ragerr.ErrNotFound for
// absent keys.
type ArtifactStore interface {
	Put(ctx context.Context, sessionId string, kind ArtifactKind, data []byte) error
	Get(ctx context.Context, sessionId string, kind ArtifactKind) ([]byte, error)
	Delete(ctx context.Context, sessionId string, kind ArtifactKind) error
}

// BatchArtifactStore is implemented by stores that can write all artifacts of
// a session in one transaction.
type BatchArtifactStore interface {
	ArtifactStore
	PutAll(ctx context.Context, sessionId string, artifacts map[ArtifactKind][]byte) error
}

// BlobPersister writes a snapshot as a binary index artifact plus a JSON
// records artifact.
type BlobPersister struct {
	store ArtifactStore
}

var _ Persister = (*BlobPersister)(nil)

func NewBlobPersister(store ArtifactStore) *BlobPersister {
	return &BlobPersister{store: store}
}

// Save writes both artifacts in one transaction when the store supports it.
// Otherwise records go first and the index last, and an interrupted save
// leaves counts that disagree, which Load reports as corrupt.
func (p *BlobPersister) Save(ctx context.Context, sessionId string, snap *Snapshot) error {
	idx := NewFlatIndex(snap.Dimension)
	if err := idx.Add(snap.Vectors); err != nil {
		return err
	}
	indexBytes, err := idx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	recordBytes, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	if batch, ok := p.store.(BatchArtifactStore); ok {
		if err := batch.PutAll(ctx, sessionId, map[ArtifactKind][]byte{
			ArtifactIndex:   indexBytes,
			ArtifactRecords: recordBytes,
		}); err != nil {
			return fmt.Errorf("write artifacts: %w", err)
		}
		return nil
	}

	if err := p.store.Put(ctx, sessionId, ArtifactRecords, recordBytes); err != nil {
		return fmt.Errorf("write records artifact: %w", err)
	}
	if err := p.store.Put(ctx, sessionId, ArtifactIndex, indexBytes); err != nil {
		return fmt.Errorf("write index artifact: %w", err)
	}
	return nil
}

func (p *BlobPersister) Load(ctx context.Context, sessionId string) (*Snapshot, error) {
	indexBytes, indexErr := p.store.Get(ctx, sessionId, ArtifactIndex)
	recordBytes, recordErr := p.store.Get(ctx, sessionId, ArtifactRecords)

	indexMissing := errors.Is(indexErr, ragerr.ErrNotFound)
	recordsMissing := errors.Is(recordErr, ragerr.ErrNotFound)
	switch {
	case indexMissing && recordsMissing:
		return nil, ragerr.ErrNotFound
	case indexMissing || recordsMissing:
		return nil, fmt.Errorf("%w: session %s has only one of its two artifacts", ragerr.ErrCorruptState, sessionId)
	case indexErr != nil:
		return nil, fmt.Errorf("read index artifact: %w", indexErr)
	case recordErr != nil:
		return nil, fmt.Errorf("read records artifact: %w", recordErr)
	}

	var idx FlatIndex
	if err := idx.UnmarshalBinary(indexBytes); err != nil {
		return nil, err
	}
	var records []ChunkRecord
	if err := json.Unmarshal(recordBytes, &records); err != nil {
		return nil, fmt.Errorf("%w: decode records: %v", ragerr.ErrCorruptState, err)
	}
	if len(records) != idx.Len() {
		return nil, fmt.Errorf("%w: %d records for %d vectors", ragerr.ErrCorruptState, len(records), idx.Len())
	}

	vectors := make([][]float32, idx.Len())
	for i := range vectors {
		vectors[i] = idx.Vector(i)
	}
	return &Snapshot{Dimension: idx.Dim(), Vectors: vectors, Records: records}, nil
}

func (p *BlobPersister) Delete(ctx context.Context, sessionId string) error {
	return errors.Join(
		p.store.Delete(ctx, sessionId, ArtifactIndex),
		p.store.Delete(ctx, sessionId, ArtifactRecords),
	)
}
