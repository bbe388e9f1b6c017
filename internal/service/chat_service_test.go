package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat-be/internal/dto"
	"rag-chat-be/internal/entity"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/internal/repository/memory"
	"rag-chat-be/internal/websocket"
	"rag-chat-be/pkg/events"
	"rag-chat-be/pkg/llm"
	"rag-chat-be/pkg/rag/engine"
	"rag-chat-be/pkg/rag/history"
	"rag-chat-be/pkg/rag/prompt"
	"rag-chat-be/pkg/rag/ragerr"
	"rag-chat-be/pkg/rag/search"
	"rag-chat-be/pkg/rag/vectorindex"
	"rag-chat-be/pkg/utils"
)

type harness struct {
	db        *memoryDB
	cache     *memory.SessionRepository
	hub       *recordingHub
	model     *scriptedLLM
	store     *vectorindex.Store
	artifacts vectorindex.ArtifactStore
	sink      *recordingSink
	teardown  *recordingPublisher
	chat      IChatService
	files     IFileService
}

func newHarness(t *testing.T, retriever engine.Retriever) *harness {
	t.Helper()
	artifacts, err := vectorindex.NewFileArtifactStore(t.TempDir())
	require.NoError(t, err)
	return buildHarness(t, retriever, newMemoryDB(), artifacts)
}

// buildHarness wires the services over db and artifacts. Building a second
// harness over the same two stands in for a process restart.
func buildHarness(t *testing.T, retriever engine.Retriever, db *memoryDB, artifacts vectorindex.ArtifactStore) *harness {
	t.Helper()
	log := logger.NewNopLogger()

	splitter, err := utils.NewTextSplitter(1000, 200)
	require.NoError(t, err)
	store := vectorindex.NewStore(letterEmbedder{}, splitter, vectorindex.NewBlobPersister(artifacts), log)

	if retriever == nil {
		retriever = search.NewRetriever(store, search.DefaultTopK)
	}

	h := &harness{
		db:        db,
		cache:     memory.NewSessionRepository(),
		hub:       newRecordingHub(),
		model:     &scriptedLLM{scripts: [][]string{{"Hello", " there"}}, title: "  Sky Colors \n"},
		store:     store,
		artifacts: artifacts,
		sink:      &recordingSink{},
		teardown:  &recordingPublisher{},
	}
	factory := fakeFactory{db: h.db}
	chatEngine := engine.NewEngine(h.model, retriever, prompt.NewBuilder(prompt.DefaultHistoryWindow), nil, log)
	publisher := events.NewChatPublisher(h.sink, log)

	h.chat = NewChatService(factory, h.cache, chatEngine, history.NewLoader(factory), h.hub, publisher, h.teardown, log, prompt.DefaultHistoryWindow)
	h.files = NewFileService(factory, h.cache, h.chat, store, publisher, log)
	return h
}

func (h *harness) newSession(t *testing.T, userId uuid.UUID) uuid.UUID {
	t.Helper()
	res, err := h.chat.CreateSession(context.Background(), userId)
	require.NoError(t, err)
	return res.SessionId
}

func (h *harness) messages(sessionId uuid.UUID) []*entity.ChatMessage {
	rows, _ := fakeMessageRepo{db: h.db}.FindAll(context.Background())
	var out []*entity.ChatMessage
	for _, m := range rows {
		if m.ChatSessionId == sessionId {
			out = append(out, m)
		}
	}
	return out
}

func types(evts []websocket.Event) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.Type
	}
	return out
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, string, string) ([]vectorindex.ChunkRecord, error) {
	return nil, fmt.Errorf("%w: embeddings endpoint timed out", ragerr.ErrExternalService)
}

func TestCreateAndListSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	first := h.newSession(t, alice)
	time.Sleep(time.Millisecond)
	second := h.newSession(t, alice)
	h.newSession(t, bob)

	sessions, err := h.chat.ListSessions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second, sessions[0].Id, "most recently updated first")
	assert.Equal(t, first, sessions[1].Id)
	assert.Equal(t, DefaultSessionTitle, sessions[0].Title)
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	sessionId := h.newSession(t, owner)

	tests := []struct {
		name      string
		userId    uuid.UUID
		sessionId uuid.UUID
		coldCache bool
		wantErr   bool
	}{
		{name: "owner", userId: owner, sessionId: sessionId},
		{name: "owner with cold cache", userId: owner, sessionId: sessionId, coldCache: true},
		{name: "stranger", userId: uuid.New(), sessionId: sessionId, wantErr: true},
		{name: "stranger with cold cache", userId: uuid.New(), sessionId: sessionId, coldCache: true, wantErr: true},
		{name: "unknown session", userId: owner, sessionId: uuid.New(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.coldCache {
				h.cache.Delete(tt.sessionId)
			}
			err := h.chat.Authorize(ctx, tt.userId, tt.sessionId)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSessionNotFound)
				assert.True(t, errors.Is(err, ragerr.ErrNotFound))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHandleTurnStreamsPersistsAndTitles(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userId := uuid.New()
	sessionId := h.newSession(t, userId)

	require.NoError(t, h.chat.HandleTurn(ctx, sessionId, "What colour is the sky?"))

	sent := h.hub.sent(sessionId.String())
	assert.Equal(t, []string{websocket.EventChunk, websocket.EventChunk, websocket.EventEnd, websocket.EventTitle}, types(sent))
	assert.Equal(t, "Hello", sent[0].Content)
	assert.Equal(t, " there", sent[1].Content)
	assert.Equal(t, "Sky Colors", sent[3].Content)

	msgs := h.messages(sessionId)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, "What colour is the sky?", msgs[0].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello there", msgs[1].Content)
	assert.Empty(t, msgs[1].FileReferences)

	// No files, so the model saw only the instructions and the bare question.
	request := h.model.lastRequest()
	require.Len(t, request, 2)
	assert.Equal(t, llm.RoleSystem, request[0].Role)
	assert.Equal(t, "What colour is the sky?", request[1].Content)

	session, _ := fakeSessionRepo{db: h.db}.FindOne(ctx)
	require.NotNil(t, session)
	assert.Equal(t, "Sky Colors", session.Title)
	assert.Contains(t, h.sink.types(), events.ChatTitleGenerated)
}

func TestHandleTurnOnlyTitlesFirstExchange(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sessionId := h.newSession(t, uuid.New())

	require.NoError(t, h.chat.HandleTurn(ctx, sessionId, "first"))
	h.model.title = "Another Title"
	require.NoError(t, h.chat.HandleTurn(ctx, sessionId, "second"))

	session, _ := fakeSessionRepo{db: h.db}.FindOne(ctx)
	assert.Equal(t, "Sky Colors", session.Title)

	titles := 0
	for _, e := range h.hub.sent(sessionId.String()) {
		if e.Type == websocket.EventTitle {
			titles++
		}
	}
	assert.Equal(t, 1, titles)
}

func TestHandleTurnTitleFailureKeepsTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.model.titleErr = errors.New("rate limited")
	ctx := context.Background()
	sessionId := h.newSession(t, uuid.New())

	require.NoError(t, h.chat.HandleTurn(ctx, sessionId, "hi"))

	assert.Equal(t, []string{websocket.EventChunk, websocket.EventChunk, websocket.EventEnd}, types(h.hub.sent(sessionId.String())))
	assert.Len(t, h.messages(sessionId), 2)
	session, _ := fakeSessionRepo{db: h.db}.FindOne(ctx)
	assert.Equal(t, DefaultSessionTitle, session.Title)
}

func TestHandleTurnUsesUploadedFiles(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userId := uuid.New()
	sessionId := h.newSession(t, userId)

	res, err := h.files.Upload(ctx, userId, sessionId, &UploadFileRequest{
		Filename:    "sky.txt",
		ContentType: "text/plain",
		Data:        []byte("The sky is blue. Grass is green."),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)

	require.NoError(t, h.chat.HandleTurn(ctx, sessionId, "sky color"))

	request := h.model.lastRequest()
	require.Len(t, request, 2)
	final := request[1].Content
	assert.True(t, strings.HasPrefix(final, "Based on the following context from uploaded files:"))
	assert.Contains(t, final, "Document: sky.txt\nThe sky is blue. Grass is green.")
	assert.True(t, strings.HasSuffix(final, "User Question: sky color"))

	msgs := h.messages(sessionId)
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"sky.txt"}, msgs[1].FileReferences)
}

func TestHandleTurnHistoryWindow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sessionId := h.newSession(t, uuid.New())

	base := time.Now().Add(-time.Hour)
	repo := fakeMessageRepo{db: h.db}
	for i := 0; i < 15; i++ {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		require.NoError(t, repo.Create(ctx, &entity.ChatMessage{
			Id:            uuid.New(),
			ChatSessionId: sessionId,
			Role:          role,
			Content:       fmt.Sprintf("turn %d", i),
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}))
	}

	require.NoError(t, h.chat.HandleTurn(ctx, sessionId, "latest"))

	request := h.model.lastRequest()
	require.Len(t, request, 12, "system + 10 turns + question")
	assert.Equal(t, "turn 5", request[1].Content)
	assert.Equal(t, llm.RoleAssistant, request[1].Role)
	assert.Equal(t, "turn 14", request[10].Content)
	assert.Equal(t, "latest", request[11].Content)
}

func TestHandleTurnModelFailurePersistsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.model.scripts = [][]string{{"partial"}}
	h.model.failWith = errors.New("stream reset")
	ctx := context.Background()
	sessionId := h.newSession(t, uuid.New())

	err := h.chat.HandleTurn(ctx, sessionId, "hi")
	assert.ErrorIs(t, err, ragerr.ErrExternalService)

	sent := h.hub.sent(sessionId.String())
	assert.Equal(t, []string{websocket.EventChunk, websocket.EventError, websocket.EventEnd}, types(sent))
	assert.NotEmpty(t, sent[1].Message)

	msgs := h.messages(sessionId)
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
}

func TestHandleTurnRetrievalFailureSkipsModel(t *testing.T) {
	h := newHarness(t, failingRetriever{})
	ctx := context.Background()
	userId := uuid.New()
	sessionId := h.newSession(t, userId)
	h.cache.SaveFilenames(sessionId, []string{"notes.txt"})

	err := h.chat.HandleTurn(ctx, sessionId, "what do my notes say?")
	assert.ErrorIs(t, err, ragerr.ErrExternalService)

	assert.Equal(t, []string{websocket.EventError, websocket.EventEnd}, types(h.hub.sent(sessionId.String())))
	assert.Equal(t, 0, h.model.calls)
	assert.Len(t, h.messages(sessionId), 1)
}

func TestHandleTurnUserMessageWriteFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.db.failOn = "message.create.user"
	sessionId := h.newSession(t, uuid.New())

	err := h.chat.HandleTurn(context.Background(), sessionId, "hi")
	assert.Error(t, err)
	assert.Equal(t, []string{websocket.EventError, websocket.EventEnd}, types(h.hub.sent(sessionId.String())))
	assert.Equal(t, 0, h.model.calls)
}

func TestConcurrentTurnsDoNotInterleave(t *testing.T) {
	h := newHarness(t, nil)
	h.model.scripts = [][]string{{"a1", "a2", "a3"}, {"b1", "b2", "b3"}}
	sessionId := h.newSession(t, uuid.New())

	var wg sync.WaitGroup
	for _, q := range []string{"one", "two"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			assert.NoError(t, h.chat.HandleTurn(context.Background(), sessionId, q))
		}(q)
	}
	wg.Wait()

	var stream []string
	for _, e := range h.hub.sent(sessionId.String()) {
		switch e.Type {
		case websocket.EventChunk:
			stream = append(stream, e.Content)
		case websocket.EventEnd:
			stream = append(stream, "<end>")
		}
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "<end>", "b1", "b2", "b3", "<end>"}, stream)

	msgs := h.messages(sessionId)
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{llm.RoleUser, llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant},
		[]string{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role})
	assert.Equal(t, "a1a2a3", msgs[1].Content)
	assert.Equal(t, "b1b2b3", msgs[3].Content)

	// The second turn saw the first exchange as history.
	second := h.model.lastRequest()
	require.Len(t, second, 4)
	assert.Equal(t, "a1a2a3", second[2].Content)
}

func TestListMessages(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userId := uuid.New()
	sessionId := h.newSession(t, userId)
	require.NoError(t, h.chat.HandleTurn(ctx, sessionId, "hi"))

	msgs, err := h.chat.ListMessages(ctx, userId, sessionId)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Hello there", msgs[1].Content)
	assert.NotNil(t, msgs[1].FileReferences)

	_, err = h.chat.ListMessages(ctx, uuid.New(), sessionId)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	userId := uuid.New()
	sessionId := h.newSession(t, userId)

	_, err := h.files.Upload(ctx, userId, sessionId, &UploadFileRequest{Filename: "a.txt", Data: []byte("alpha beta")})
	require.NoError(t, err)
	require.NoError(t, h.chat.HandleTurn(ctx, sessionId, "hi"))

	assert.ErrorIs(t, h.chat.DeleteSession(ctx, uuid.New(), sessionId), ErrSessionNotFound)
	require.NoError(t, h.chat.DeleteSession(ctx, userId, sessionId))

	assert.Empty(t, h.messages(sessionId))
	files, _ := fakeFileRepo{db: h.db}.FindAll(ctx)
	assert.Empty(t, files)
	assert.ErrorIs(t, h.chat.Authorize(ctx, userId, sessionId), ErrSessionNotFound)

	require.Len(t, h.teardown.payloads, 1)
	var job dto.IndexTeardownMessage
	require.NoError(t, json.Unmarshal(h.teardown.payloads[0], &job))
	assert.Equal(t, sessionId, job.SessionId)
	assert.Contains(t, h.sink.types(), events.SessionDeleted)
}
