package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"rag-chat-be/internal/dto"
	"rag-chat-be/internal/pkg/logger"
)

const consumerModule = "INDEX_TEARDOWN"

const teardownAttempts = 3

var teardownBackoff = 200 * time.Millisecond

// IndexDropper removes a session's in-memory and persisted index.
type IndexDropper interface {
	Drop(ctx context.Context, sessionId string) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	indexes   IndexDropper
	logger    logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	indexes IndexDropper,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		indexes:   indexes,
		logger:    log,
	}
}

// Consume subscribes and processes teardown jobs in the background until ctx
// is done.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.IndexTeardownMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal teardown message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // a malformed job never becomes valid
		return
	}

	var err error
	for attempt := 1; attempt <= teardownAttempts; attempt++ {
		if err = cs.indexes.Drop(ctx, payload.SessionId.String()); err == nil {
			break
		}
		cs.logger.Warn(consumerModule, "Drop attempt failed", map[string]interface{}{
			"session_id": payload.SessionId.String(),
			"attempt":    attempt,
			"error":      err.Error(),
		})
		if attempt == teardownAttempts {
			break
		}
		select {
		case <-ctx.Done():
			msg.Nack()
			return
		case <-time.After(time.Duration(attempt) * teardownBackoff):
		}
	}
	if err != nil {
		// gochannel redelivers a nacked message at once, so give up here
		// instead of spinning on a broken store.
		cs.logger.Error(consumerModule, "Giving up on session index teardown", map[string]interface{}{
			"session_id": payload.SessionId.String(),
			"error":      err.Error(),
		})
		msg.Ack()
		return
	}

	cs.logger.Info(consumerModule, "Dropped session index", map[string]interface{}{"session_id": payload.SessionId.String()})
	msg.Ack()
}
