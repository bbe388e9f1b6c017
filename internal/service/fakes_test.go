package service

import (
	"context"
	"errors"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rag-chat-be/internal/entity"
	"rag-chat-be/internal/repository/contract"
	"rag-chat-be/internal/repository/specification"
	"rag-chat-be/internal/repository/unitofwork"
	"rag-chat-be/internal/websocket"
	"rag-chat-be/pkg/events"
	"rag-chat-be/pkg/llm"
)

// memoryDB backs the fake repositories. Specifications are interpreted for
// the handful of filters and orderings the services use.
type memoryDB struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.ChatSession
	messages []*entity.ChatMessage
	files    []*entity.SessionFile
	failOn   string
}

func newMemoryDB() *memoryDB {
	return &memoryDB{sessions: make(map[uuid.UUID]*entity.ChatSession)}
}

func (db *memoryDB) check(op string) error {
	if db.failOn == op {
		return errors.New("db unavailable")
	}
	return nil
}

type query struct {
	id, userId, sessionId *uuid.UUID
	vectorized            *bool
	orderField            string
	desc                  bool
	limit                 int
}

func parse(specs []specification.Specification) query {
	var q query
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			q.id = &s.ID
		case specification.ByUserID:
			q.userId = &s.UserID
		case specification.ByChatSessionID:
			q.sessionId = &s.ChatSessionID
		case specification.Vectorized:
			q.vectorized = &s.Value
		case specification.OrderBy:
			q.orderField, q.desc = s.Field, s.Desc
		case specification.Pagination:
			q.limit = s.Limit
		}
	}
	return q
}

func page[T any](rows []T, q query, at func(T) time.Time) []T {
	if q.orderField != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			if q.desc {
				return at(rows[i]).After(at(rows[j]))
			}
			return at(rows[i]).Before(at(rows[j]))
		})
	}
	if q.limit > 0 && len(rows) > q.limit {
		rows = rows[:q.limit]
	}
	return rows
}

type fakeSessionRepo struct{ db *memoryDB }

func (r fakeSessionRepo) Create(_ context.Context, s *entity.ChatSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("session.create"); err != nil {
		return err
	}
	c := *s
	r.db.sessions[s.Id] = &c
	return nil
}

func (r fakeSessionRepo) Update(_ context.Context, s *entity.ChatSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := *s
	r.db.sessions[s.Id] = &c
	return nil
}

func (r fakeSessionRepo) Touch(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s, ok := r.db.sessions[id]; ok {
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (r fakeSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, id)
	return nil
}

func (r fakeSessionRepo) find(specs []specification.Specification) []*entity.ChatSession {
	q := parse(specs)
	var out []*entity.ChatSession
	for _, s := range r.db.sessions {
		if (q.id != nil && s.Id != *q.id) || (q.userId != nil && s.UserId != *q.userId) {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	return page(out, q, func(s *entity.ChatSession) time.Time { return s.UpdatedAt })
}

func (r fakeSessionRepo) FindOne(_ context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if found := r.find(specs); len(found) > 0 {
		return found[0], nil
	}
	return nil, nil
}

func (r fakeSessionRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.find(specs), nil
}

func (r fakeSessionRepo) Count(_ context.Context, specs ...specification.Specification) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.find(specs))), nil
}

type fakeMessageRepo struct{ db *memoryDB }

func (r fakeMessageRepo) Create(_ context.Context, m *entity.ChatMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("message.create." + m.Role); err != nil {
		return err
	}
	c := *m
	r.db.messages = append(r.db.messages, &c)
	return nil
}

func (r fakeMessageRepo) DeleteByChatSessionId(_ context.Context, sessionId uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.messages[:0]
	for _, m := range r.db.messages {
		if m.ChatSessionId != sessionId {
			kept = append(kept, m)
		}
	}
	r.db.messages = kept
	return nil
}

func (r fakeMessageRepo) find(specs []specification.Specification) []*entity.ChatMessage {
	q := parse(specs)
	var out []*entity.ChatMessage
	for _, m := range r.db.messages {
		if q.sessionId != nil && m.ChatSessionId != *q.sessionId {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return page(out, q, func(m *entity.ChatMessage) time.Time { return m.CreatedAt })
}

func (r fakeMessageRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.find(specs), nil
}

func (r fakeMessageRepo) Count(_ context.Context, specs ...specification.Specification) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.find(specs))), nil
}

type fakeFileRepo struct{ db *memoryDB }

func (r fakeFileRepo) Create(_ context.Context, f *entity.SessionFile) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := *f
	r.db.files = append(r.db.files, &c)
	return nil
}

func (r fakeFileRepo) MarkVectorized(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, f := range r.db.files {
		if f.Id == id {
			f.Vectorized = true
		}
	}
	return nil
}

func (r fakeFileRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.files[:0]
	for _, f := range r.db.files {
		if f.Id != id {
			kept = append(kept, f)
		}
	}
	r.db.files = kept
	return nil
}

func (r fakeFileRepo) DeleteByChatSessionId(_ context.Context, sessionId uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.files[:0]
	for _, f := range r.db.files {
		if f.ChatSessionId != sessionId {
			kept = append(kept, f)
		}
	}
	r.db.files = kept
	return nil
}

func (r fakeFileRepo) find(specs []specification.Specification) []*entity.SessionFile {
	q := parse(specs)
	var out []*entity.SessionFile
	for _, f := range r.db.files {
		if (q.sessionId != nil && f.ChatSessionId != *q.sessionId) || (q.vectorized != nil && f.Vectorized != *q.vectorized) {
			continue
		}
		c := *f
		out = append(out, &c)
	}
	return page(out, q, func(f *entity.SessionFile) time.Time { return f.UploadedAt })
}

func (r fakeFileRepo) FindOne(_ context.Context, specs ...specification.Specification) (*entity.SessionFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if found := r.find(specs); len(found) > 0 {
		return found[0], nil
	}
	return nil, nil
}

func (r fakeFileRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.SessionFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.find(specs), nil
}

func (r fakeFileRepo) Count(_ context.Context, specs ...specification.Specification) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.find(specs))), nil
}

type fakeUow struct {
	db     *memoryDB
	inTx   bool
	commit int
}

func (u *fakeUow) Begin(context.Context) error {
	if u.inTx {
		return errors.New("transaction already started")
	}
	u.inTx = true
	return nil
}

func (u *fakeUow) Commit() error {
	if !u.inTx {
		return errors.New("no transaction to commit")
	}
	u.inTx = false
	u.commit++
	return nil
}

func (u *fakeUow) Rollback() error {
	if !u.inTx {
		return errors.New("no transaction to rollback")
	}
	u.inTx = false
	return nil
}

func (u *fakeUow) ChatSessionRepository() contract.ChatSessionRepository {
	return fakeSessionRepo{db: u.db}
}

func (u *fakeUow) ChatMessageRepository() contract.ChatMessageRepository {
	return fakeMessageRepo{db: u.db}
}

func (u *fakeUow) SessionFileRepository() contract.SessionFileRepository {
	return fakeFileRepo{db: u.db}
}

type fakeFactory struct{ db *memoryDB }

func (f fakeFactory) NewUnitOfWork(context.Context) unitofwork.UnitOfWork {
	return &fakeUow{db: f.db}
}

// recordingHub captures every event sent per session, in order.
type recordingHub struct {
	mu     sync.Mutex
	events map[string][]websocket.Event
}

func newRecordingHub() *recordingHub {
	return &recordingHub{events: make(map[string][]websocket.Event)}
}

func (h *recordingHub) Send(sessionId string, event websocket.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[sessionId] = append(h.events[sessionId], event)
	return 1
}

func (h *recordingHub) sent(sessionId string) []websocket.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]websocket.Event, len(h.events[sessionId]))
	copy(out, h.events[sessionId])
	return out
}

// sliceStream replays fixed fragments, optionally failing after them.
type sliceStream struct {
	fragments []string
	err       error
	pos       int
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos < len(s.fragments) {
		s.pos++
		return s.fragments[s.pos-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *sliceStream) Close() error { return nil }

// scriptedLLM answers every stream call with the next script entry (the last
// entry repeats) and records each composed request.
type scriptedLLM struct {
	mu       sync.Mutex
	scripts  [][]string
	failWith error
	calls    int
	requests [][]llm.Message
	title    string
	titleErr error
}

func (l *scriptedLLM) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (l *scriptedLLM) ChatStream(_ context.Context, history []llm.Message, _ ...llm.Option) (llm.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, history)
	idx := l.calls
	if idx >= len(l.scripts) {
		idx = len(l.scripts) - 1
	}
	l.calls++
	return &sliceStream{fragments: l.scripts[idx], err: l.failWith}, nil
}

func (l *scriptedLLM) Generate(context.Context, string, ...llm.Option) (string, error) {
	return l.title, l.titleErr
}

func (l *scriptedLLM) lastRequest() []llm.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.requests) == 0 {
		return nil
	}
	return l.requests[len(l.requests)-1]
}

// letterEmbedder maps text to its normalized letter histogram, which is
// enough to make "sky" queries land on sky documents.
type letterEmbedder struct{}

func (letterEmbedder) vector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / math.Sqrt(norm))
		}
	}
	return v
}

func (e letterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e letterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType())
	}
	return out
}
