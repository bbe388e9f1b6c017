package vectorindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat-be/pkg/rag/ragerr"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Dimension: 3,
		Vectors:   [][]float32{{1, 0, 0}, {0, 1, 0}},
		Records: []ChunkRecord{
			{Content: "first", Metadata: ChunkMetadata{SourceFilename: "a.txt", SourceFileId: "f1"}},
			{Content: "second", Metadata: ChunkMetadata{SourceFilename: "b.txt", SourceFileId: "f2"}},
		},
	}
}

// exerciseArtifactStore runs the persister contract against one backend.
func exerciseArtifactStore(t *testing.T, store ArtifactStore) {
	ctx := context.Background()
	p := NewBlobPersister(store)

	_, err := p.Load(ctx, "missing")
	assert.ErrorIs(t, err, ragerr.ErrNotFound)

	require.NoError(t, p.Save(ctx, "s1", sampleSnapshot()))
	got, err := p.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)

	// Only the records artifact left behind.
	require.NoError(t, store.Delete(ctx, "s1", ArtifactIndex))
	_, err = p.Load(ctx, "s1")
	assert.ErrorIs(t, err, ragerr.ErrCorruptState)

	require.NoError(t, p.Delete(ctx, "s1"))
	_, err = p.Load(ctx, "s1")
	assert.ErrorIs(t, err, ragerr.ErrNotFound)

	// Deleting twice is fine.
	assert.NoError(t, p.Delete(ctx, "s1"))
}

func TestBlobPersisterFileStore(t *testing.T) {
	store, err := NewFileArtifactStore(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)
	exerciseArtifactStore(t, store)
}

func TestBlobPersisterBoltStore(t *testing.T) {
	store, err := NewBoltArtifactStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer store.Close()
	exerciseArtifactStore(t, store)
}

func TestBoltPutAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store, err := NewBoltArtifactStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer store.Close()

	err = store.PutAll(ctx, "s1", map[ArtifactKind][]byte{
		ArtifactIndex: []byte("index bytes"),
		"thumbnail":   []byte("no bucket for this"),
	})
	require.Error(t, err)

	_, err = store.Get(ctx, "s1", ArtifactIndex)
	assert.ErrorIs(t, err, ragerr.ErrNotFound)
}

func TestBlobPersisterRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL_TEST")
	if url == "" {
		t.Skip("Skipping redis test: REDIS_URL_TEST not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	exerciseArtifactStore(t, NewRedisArtifactStore(client))
}

func TestBlobPersisterDetectsCountMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileArtifactStore(t.TempDir())
	require.NoError(t, err)
	p := NewBlobPersister(store)

	require.NoError(t, p.Save(ctx, "s1", sampleSnapshot()))
	require.NoError(t, store.Put(ctx, "s1", ArtifactRecords, []byte(`[{"content":"only one"}]`)))

	_, err = p.Load(ctx, "s1")
	assert.ErrorIs(t, err, ragerr.ErrCorruptState)
}

func TestBlobPersisterDetectsGarbageRecords(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileArtifactStore(t.TempDir())
	require.NoError(t, err)
	p := NewBlobPersister(store)

	require.NoError(t, p.Save(ctx, "s1", sampleSnapshot()))
	require.NoError(t, store.Put(ctx, "s1", ArtifactRecords, []byte("{not json")))

	_, err = p.Load(ctx, "s1")
	assert.ErrorIs(t, err, ragerr.ErrCorruptState)
}

func TestFileArtifactStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewFileArtifactStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../escape", ArtifactIndex, []byte("x"))
	assert.ErrorIs(t, err, ragerr.ErrUnsupportedInput)
}
