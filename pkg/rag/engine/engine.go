// Package engine turns a query, a session's history and its retrieved
// context into a streamed model answer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/pkg/llm"
	"rag-chat-be/pkg/rag/prompt"
	"rag-chat-be/pkg/rag/ragerr"
	"rag-chat-be/pkg/rag/tokens"
	"rag-chat-be/pkg/rag/vectorindex"
)

const moduleName = "RAG_ENGINE"

type Retriever interface {
	Retrieve(ctx context.Context, sessionId, query string) ([]vectorindex.ChunkRecord, error)
}

type Engine struct {
	llm       llm.LLMProvider
	retriever Retriever
	builder   *prompt.Builder
	estimator *tokens.Estimator
	logger    logger.ILogger
	tracer    trace.Tracer
}

// NewEngine wires the engine. estimator may be nil, which disables prompt
// size logging.
func NewEngine(provider llm.LLMProvider, retriever Retriever, builder *prompt.Builder, estimator *tokens.Estimator, log logger.ILogger) *Engine {
	return &Engine{
		llm:       provider,
		retriever: retriever,
		builder:   builder,
		estimator: estimator,
		logger:    log,
		tracer:    otel.Tracer("rag"),
	}
}

// Request is one query to answer.
type Request struct {
	Query     string
	SessionId string
	// History holds the session's earlier turns, oldest first. Only the
	// configured window of it reaches the model.
	History      []llm.Message
	UseRetrieval bool
}

// GenerateResponse retrieves context when asked to, composes the request and
// starts the model stream. A retrieval failure fails the whole call; the
// answer is never generated without the context it was supposed to have.
func (e *Engine) GenerateResponse(ctx context.Context, req Request) (*ResponseStream, error) {
	ctx, span := e.tracer.Start(ctx, "rag.GenerateResponse")
	span.SetAttributes(
		attribute.String("session.id", req.SessionId),
		attribute.Bool("rag.use_retrieval", req.UseRetrieval),
		attribute.Int("rag.history_turns", len(req.History)),
	)

	var retrieved []vectorindex.ChunkRecord
	if req.UseRetrieval {
		records, err := e.retriever.Retrieve(ctx, req.SessionId, req.Query)
		if err != nil {
			e.fail(span, err)
			e.logger.Error(moduleName, "Retrieval failed", map[string]interface{}{
				"session_id": req.SessionId,
				"error":      err.Error(),
			})
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
		retrieved = records
	}
	span.SetAttributes(attribute.Int("rag.retrieved", len(retrieved)))

	messages := e.builder.BuildMessages(req.Query, req.History, retrieved)

	e.logger.Info(moduleName, "Composed generation request", map[string]interface{}{
		"session_id":    req.SessionId,
		"messages":      len(messages),
		"retrieved":     len(retrieved),
		"prompt_tokens": e.estimator.CountMessages(messages),
	})

	stream, err := e.llm.ChatStream(ctx, messages)
	if err != nil {
		e.fail(span, err)
		return nil, fmt.Errorf("%w: start model stream: %v", ragerr.ErrExternalService, err)
	}

	return &ResponseStream{stream: stream, span: span, sources: retrieved}, nil
}

// GenerateChatTitle asks the model for a 3-5 word title based on the first
// message of a chat.
func (e *Engine) GenerateChatTitle(ctx context.Context, firstMessage string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "rag.GenerateChatTitle")
	defer span.End()

	title, err := e.llm.Generate(ctx, prompt.TitlePrompt(firstMessage))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: generate title: %v", ragerr.ErrExternalService, err)
	}
	return strings.TrimSpace(title), nil
}

func (e *Engine) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// ResponseStream is the model's answer as a pull-driven fragment sequence.
// It is finite and cannot be restarted.
type ResponseStream struct {
	stream    llm.Stream
	span      trace.Span
	sources   []vectorindex.ChunkRecord
	fragments int
	finished  bool
	err       error
}

// Next returns the next non-empty fragment. It returns io.EOF once the model
// has completed, and keeps returning the same terminal error afterwards.
func (r *ResponseStream) Next() (string, error) {
	if r.finished {
		return "", r.err
	}

	for {
		fragment, err := r.stream.Recv()
		if errors.Is(err, io.EOF) {
			r.finish(io.EOF)
			return "", io.EOF
		}
		if err != nil {
			wrapped := fmt.Errorf("%w: model stream: %v", ragerr.ErrExternalService, err)
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, err.Error())
			r.finish(wrapped)
			return "", wrapped
		}
		if fragment == "" {
			continue
		}
		r.fragments++
		return fragment, nil
	}
}

// Sources are the chunks that were placed in the prompt.
func (r *ResponseStream) Sources() []vectorindex.ChunkRecord {
	return r.sources
}

// Close abandons the stream. Safe to call more than once and after
// completion.
func (r *ResponseStream) Close() error {
	if r.finished {
		return nil
	}
	r.finish(context.Canceled)
	return nil
}

func (r *ResponseStream) finish(err error) {
	r.finished = true
	r.err = err
	r.stream.Close()
	r.span.SetAttributes(attribute.Int("rag.fragments", r.fragments))
	r.span.End()
}
