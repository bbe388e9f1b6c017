package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rag-chat-be/pkg/rag/ragerr"
)

// FileArtifactStore keeps artifacts as <dir>/<session>.index and
// <dir>/<session>.records.json.
type FileArtifactStore struct {
	dir string
}

var _ ArtifactStore = (*FileArtifactStore)(nil)

func NewFileArtifactStore(dir string) (*FileArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	return &FileArtifactStore{dir: dir}, nil
}

func (s *FileArtifactStore) path(sessionId string, kind ArtifactKind) (string, error) {
	// Session ids become file names; refuse anything that could escape dir.
	if sessionId == "" || sessionId != filepath.Base(sessionId) || sessionId == "." || sessionId == ".." {
		return "", fmt.Errorf("%w: invalid session id %q", ragerr.ErrUnsupportedInput, sessionId)
	}
	switch kind {
	case ArtifactIndex:
		return filepath.Join(s.dir, sessionId+".index"), nil
	case ArtifactRecords:
		return filepath.Join(s.dir, sessionId+".records.json"), nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
}

// Put writes to a temp file and renames it over the target.
func (s *FileArtifactStore) Put(_ context.Context, sessionId string, kind ArtifactKind, data []byte) error {
	target, err := s.path(sessionId, kind)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *FileArtifactStore) Get(_ context.Context, sessionId string, kind ArtifactKind) ([]byte, error) {
	target, err := s.path(sessionId, kind)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ragerr.ErrNotFound
	}
	return data, err
}

func (s *FileArtifactStore) Delete(_ context.Context, sessionId string, kind ArtifactKind) error {
	target, err := s.path(sessionId, kind)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
