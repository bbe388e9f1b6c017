package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rag-chat-be/internal/pkg/logger"
)

// Sink is the transport an event is handed to (NATS in production).
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// ChatPublisher emits the chat domain's notifications. Publishing is
// auxiliary: failures are logged and never reach the caller.
type ChatPublisher struct {
	sink   Sink
	logger logger.ILogger
	now    func() time.Time
}

// NewChatPublisher accepts a nil sink, in which case every call is a no-op.
func NewChatPublisher(sink Sink, log logger.ILogger) *ChatPublisher {
	return &ChatPublisher{sink: sink, logger: log, now: time.Now}
}

func (p *ChatPublisher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if p == nil || p.sink == nil {
		return
	}
	evt := BaseEvent{Type: eventType, Data: data, OccurredAt: p.now()}
	if err := p.sink.Publish(ctx, evt); err != nil {
		p.logger.Error("EVENTS", "Failed to publish "+eventType+" event", map[string]interface{}{"error": err.Error()})
	}
}

func (p *ChatPublisher) PublishFileIndexed(ctx context.Context, sessionId, fileId uuid.UUID, filename string, chunks int) {
	p.publish(ctx, FileIndexed, map[string]interface{}{
		"session_id": sessionId.String(),
		"file_id":    fileId.String(),
		"filename":   filename,
		"chunks":     chunks,
	})
}

func (p *ChatPublisher) PublishTitleGenerated(ctx context.Context, sessionId uuid.UUID, title string) {
	p.publish(ctx, ChatTitleGenerated, map[string]interface{}{
		"session_id": sessionId.String(),
		"title":      title,
	})
}

func (p *ChatPublisher) PublishSessionDeleted(ctx context.Context, sessionId, userId uuid.UUID) {
	p.publish(ctx, SessionDeleted, map[string]interface{}{
		"session_id": sessionId.String(),
		"user_id":    userId.String(),
	})
}
