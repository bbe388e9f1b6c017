package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/pkg/embedding"
	"rag-chat-be/pkg/rag/ragerr"
	"rag-chat-be/pkg/utils"
)

const moduleName = "VECTOR_STORE"

// Store is the registry of per-session indexes. One Store is created at
// startup and shared by every request.
type Store struct {
	embedder  embedding.EmbeddingProvider
	splitter  *utils.TextSplitter
	persister Persister
	logger    logger.ILogger
	tracer    trace.Tracer

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	loads singleflight.Group
}

// sessionEntry serializes writers through addMu. Readers take a pointer to
// the current state under mu and search it without further locking; writers
// build a new state and swap it in.
type sessionEntry struct {
	addMu sync.Mutex

	mu    sync.RWMutex
	state *sessionState
}

// sessionState is immutable once published.
type sessionState struct {
	index   *FlatIndex
	records []ChunkRecord
}

// SessionStats describes one in-memory session index.
type SessionStats struct {
	Dimension    int
	Vectors      int
	Records      int
	ChunksByFile map[string]int
}

func NewStore(embedder embedding.EmbeddingProvider, splitter *utils.TextSplitter, persister Persister, log logger.ILogger) *Store {
	return &Store{
		embedder:  embedder,
		splitter:  splitter,
		persister: persister,
		logger:    log,
		tracer:    otel.Tracer("rag"),
		sessions:  make(map[string]*sessionEntry),
	}
}

func (s *Store) entry(sessionId string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionId]
	if !ok {
		e = &sessionEntry{}
		s.sessions[sessionId] = e
	}
	return e
}

// lockEntry returns the registered entry with its addMu held. An entry removed
// by Drop while we waited is not returned.
func (s *Store) lockEntry(sessionId string) *sessionEntry {
	for {
		e := s.entry(sessionId)
		e.addMu.Lock()
		s.mu.Lock()
		live := s.sessions[sessionId] == e
		s.mu.Unlock()
		if live {
			return e
		}
		e.addMu.Unlock()
	}
}

// unlockEntry releases e and unregisters it if it holds no state, so sessions
// that never got an index do not pile up in the registry.
func (s *Store) unlockEntry(sessionId string, e *sessionEntry) {
	e.mu.RLock()
	empty := e.state == nil
	e.mu.RUnlock()
	if empty {
		s.mu.Lock()
		if s.sessions[sessionId] == e {
			delete(s.sessions, sessionId)
		}
		s.mu.Unlock()
	}
	e.addMu.Unlock()
}

func (s *Store) current(sessionId string) *sessionState {
	s.mu.Lock()
	e, ok := s.sessions[sessionId]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Add chunks every text, embeds all chunks in one batch, appends them to the
// session index and persists the result. metadatas[i] is attached to every
// chunk of texts[i]. Returns the number of chunks added.
//
// Adds to one session run one at a time; the new state becomes visible to
// searches only after it has been persisted.
func (s *Store) Add(ctx context.Context, sessionId string, texts []string, metadatas []ChunkMetadata) (int, error) {
	ctx, span := s.tracer.Start(ctx, "vectorindex.Add")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionId))

	records, vectors, err := s.embed(ctx, texts, metadatas)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("chunks", len(records)))
	if len(records) == 0 {
		return 0, nil
	}

	e := s.lockEntry(sessionId)
	defer s.unlockEntry(sessionId, e)

	// A session persisted before a restart must be extended, not replaced.
	base, err := s.loadLocked(ctx, sessionId, e)
	if err != nil && !errors.Is(err, ragerr.ErrNotFound) {
		return 0, fmt.Errorf("load existing index: %w", err)
	}

	next, err := s.commit(ctx, sessionId, e, base, records, vectors)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	s.logger.Info(moduleName, "Indexed documents", map[string]interface{}{
		"session_id":    sessionId,
		"texts":         len(texts),
		"chunks_added":  len(records),
		"total_vectors": next.index.Len(),
	})
	return len(records), nil
}

// Rebuild replaces whatever the session has in memory or in storage with an
// index of texts alone. It is the way back from ragerr.ErrCorruptState: the
// caller passes every document the session should contain.
func (s *Store) Rebuild(ctx context.Context, sessionId string, texts []string, metadatas []ChunkMetadata) (int, error) {
	ctx, span := s.tracer.Start(ctx, "vectorindex.Rebuild")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionId))

	records, vectors, err := s.embed(ctx, texts, metadatas)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	e := s.lockEntry(sessionId)
	defer s.unlockEntry(sessionId, e)

	e.mu.Lock()
	e.state = nil
	e.mu.Unlock()
	if err := s.persister.Delete(ctx, sessionId); err != nil {
		return 0, fmt.Errorf("delete persisted index: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	next, err := s.commit(ctx, sessionId, e, nil, records, vectors)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	s.logger.Warn(moduleName, "Rebuilt session index", map[string]interface{}{
		"session_id":    sessionId,
		"texts":         len(texts),
		"total_vectors": next.index.Len(),
	})
	return len(records), nil
}

// embed chunks texts and embeds the chunks in one batch. Records and vectors
// correspond by position.
func (s *Store) embed(ctx context.Context, texts []string, metadatas []ChunkMetadata) ([]ChunkRecord, [][]float32, error) {
	if len(texts) != len(metadatas) {
		return nil, nil, fmt.Errorf("%w: %d texts but %d metadatas", ragerr.ErrUnsupportedInput, len(texts), len(metadatas))
	}

	var chunks []string
	var records []ChunkRecord
	for i, text := range texts {
		for _, chunk := range s.splitter.Split(text) {
			chunks = append(chunks, chunk)
			records = append(records, ChunkRecord{Content: chunk, Metadata: metadatas[i]})
		}
	}
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: embed documents: %v", ragerr.ErrExternalService, err)
	}
	if len(vectors) != len(chunks) {
		return nil, nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", ragerr.ErrExternalService, len(vectors), len(chunks))
	}
	if len(vectors[0]) == 0 {
		return nil, nil, fmt.Errorf("%w: embedder returned empty vectors", ragerr.ErrExternalService)
	}
	return records, vectors, nil
}

// commit appends records and vectors to base, persists the result and
// publishes it. The caller holds e.addMu.
func (s *Store) commit(ctx context.Context, sessionId string, e *sessionEntry, base *sessionState, records []ChunkRecord, vectors [][]float32) (*sessionState, error) {
	var next sessionState
	if base == nil {
		next.index = NewFlatIndex(len(vectors[0]))
	} else {
		next.index = base.index.Clone()
		next.records = make([]ChunkRecord, len(base.records), len(base.records)+len(records))
		copy(next.records, base.records)
	}
	if err := next.index.Add(vectors); err != nil {
		return nil, err
	}
	next.records = append(next.records, records...)

	if err := s.persister.Save(ctx, sessionId, next.snapshot()); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	e.mu.Lock()
	e.state = &next
	e.mu.Unlock()
	return &next, nil
}

// Persist writes the session's in-memory index through the persister. Add
// calls the persister itself; Persist re-syncs storage that was wiped.
func (s *Store) Persist(ctx context.Context, sessionId string) error {
	e := s.lockEntry(sessionId)
	defer s.unlockEntry(sessionId, e)

	e.mu.RLock()
	state := e.state
	e.mu.RUnlock()
	if state == nil {
		return fmt.Errorf("session index %s: %w", sessionId, ragerr.ErrNotFound)
	}

	if err := s.persister.Save(ctx, sessionId, state.snapshot()); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

// Search returns up to k records nearest to query, nearest first. A session
// without an index yields an empty result.
func (s *Store) Search(ctx context.Context, sessionId, query string, k int) ([]ChunkRecord, error) {
	ctx, span := s.tracer.Start(ctx, "vectorindex.Search")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionId), attribute.Int("k", k))

	state := s.current(sessionId)
	if state == nil {
		found, err := s.Load(ctx, sessionId)
		if err != nil {
			return nil, err
		}
		if !found {
			return []ChunkRecord{}, nil
		}
		state = s.current(sessionId)
	}
	if state == nil || k <= 0 || state.index.Len() == 0 {
		return []ChunkRecord{}, nil
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: embed query: %v", ragerr.ErrExternalService, err)
	}

	hits, err := state.index.Search(queryVec, k)
	if err != nil {
		return nil, err
	}

	results := make([]ChunkRecord, 0, len(hits))
	for _, hit := range hits {
		if hit.Position >= len(state.records) {
			continue
		}
		results = append(results, state.records[hit.Position])
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// Load rehydrates a session from the persister. It reports true when the
// session is in memory afterwards. Nothing is installed when the persisted
// state is partial or inconsistent; the error then wraps
// ragerr.ErrCorruptState.
func (s *Store) Load(ctx context.Context, sessionId string) (bool, error) {
	if s.current(sessionId) != nil {
		return true, nil
	}

	v, err, _ := s.loads.Do(sessionId, func() (interface{}, error) {
		// Holding addMu keeps us from reading artifacts an Add is rewriting.
		e := s.lockEntry(sessionId)
		defer s.unlockEntry(sessionId, e)
		return s.loadLocked(ctx, sessionId, e)
	})

	if errors.Is(err, ragerr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		s.logger.Error(moduleName, "Failed to load session index", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		return false, err
	}

	s.logger.Info(moduleName, "Loaded session index", map[string]interface{}{
		"session_id": sessionId,
		"vectors":    v.(*sessionState).index.Len(),
	})
	return true, nil
}

// loadLocked installs persisted state into e unless it already has some.
// The caller holds e.addMu.
func (s *Store) loadLocked(ctx context.Context, sessionId string, e *sessionEntry) (*sessionState, error) {
	e.mu.RLock()
	existing := e.state
	e.mu.RUnlock()
	if existing != nil {
		return existing, nil
	}

	snap, err := s.persister.Load(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	state := &sessionState{index: NewFlatIndex(snap.Dimension)}
	if err := state.index.Add(snap.Vectors); err != nil {
		return nil, err
	}
	if len(snap.Records) != state.index.Len() {
		return nil, fmt.Errorf("%w: %d records for %d vectors", ragerr.ErrCorruptState, len(snap.Records), state.index.Len())
	}
	state.records = snap.Records

	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
	return state, nil
}

// Drop forgets the session in memory and deletes its persisted state.
func (s *Store) Drop(ctx context.Context, sessionId string) error {
	e := s.lockEntry(sessionId)
	defer e.addMu.Unlock()

	s.mu.Lock()
	delete(s.sessions, sessionId)
	s.mu.Unlock()

	if err := s.persister.Delete(ctx, sessionId); err != nil {
		return fmt.Errorf("delete persisted index: %w", err)
	}
	return nil
}

// Stats reports the in-memory index of a session, if any.
func (s *Store) Stats(sessionId string) (SessionStats, bool) {
	state := s.current(sessionId)
	if state == nil {
		return SessionStats{}, false
	}
	byFile := make(map[string]int)
	for _, r := range state.records {
		byFile[r.Metadata.SourceFilename]++
	}
	return SessionStats{
		Dimension:    state.index.Dim(),
		Vectors:      state.index.Len(),
		Records:      len(state.records),
		ChunksByFile: byFile,
	}, true
}

func (st *sessionState) snapshot() *Snapshot {
	n := st.index.Len()
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vectors[i] = st.index.data[i*st.index.dim : (i+1)*st.index.dim]
	}
	return &Snapshot{Dimension: st.index.Dim(), Vectors: vectors, Records: st.records}
}
