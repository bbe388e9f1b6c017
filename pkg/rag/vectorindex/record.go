package vectorindex

import "context"

// ChunkMetadata identifies where a chunk came from.
type ChunkMetadata struct {
	SourceFilename string `json:"source_filename"`
	SourceFileId   string `json:"source_file_id"`
}

// ChunkRecord is one stored chunk. Record i corresponds to vector i of the
// session's index.
type ChunkRecord struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Snapshot is the durable form of one session's index.
type Snapshot struct {
	Dimension int
	Vectors   [][]float32
	Records   []ChunkRecord
}

// Persister stores snapshots keyed by session id.
//
// Load returns ragerr.ErrNotFound when nothing is stored and
// ragerr.ErrCorruptState when stored state is partial or inconsistent.
type Persister interface {
	Save(ctx context.Context, sessionId string, snap *Snapshot) error
	Load(ctx context.Context, sessionId string) (*Snapshot, error)
	Delete(ctx context.Context, sessionId string) error
}
