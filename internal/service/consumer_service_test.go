package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat-be/internal/dto"
	"rag-chat-be/internal/pkg/logger"
)

type flakyDropper struct {
	mu      sync.Mutex
	failFor int
	calls   map[string]int
}

func (d *flakyDropper) Drop(_ context.Context, sessionId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[sessionId]++
	if d.calls[sessionId] <= d.failFor {
		return errors.New("disk busy")
	}
	return nil
}

func (d *flakyDropper) count(sessionId string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[sessionId]
}

func TestConsumerDropsIndexes(t *testing.T) {
	prev := teardownBackoff
	teardownBackoff = time.Millisecond
	t.Cleanup(func() { teardownBackoff = prev })

	tests := []struct {
		name      string
		failFor   int
		wantCalls int
	}{
		{name: "first attempt", failFor: 0, wantCalls: 1},
		{name: "retried", failFor: 2, wantCalls: 3},
		{name: "gives up", failFor: 10, wantCalls: teardownAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
			defer pubSub.Close()

			dropper := &flakyDropper{failFor: tt.failFor, calls: make(map[string]int)}
			consumer := NewConsumerService(pubSub, "teardown", dropper, logger.NewNopLogger())
			require.NoError(t, consumer.Consume(ctx))

			sessionId := uuid.New()
			payload, err := json.Marshal(dto.IndexTeardownMessage{SessionId: sessionId})
			require.NoError(t, err)
			require.NoError(t, NewPublisherService("teardown", pubSub).Publish(ctx, payload))

			assert.Eventually(t, func() bool {
				return dropper.count(sessionId.String()) == tt.wantCalls
			}, time.Second, 5*time.Millisecond)

			// Acked either way: nothing is redelivered.
			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, tt.wantCalls, dropper.count(sessionId.String()))
		})
	}
}

func TestConsumerTearsDownDeletedSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userId := uuid.New()
	sessionId := h.newSession(t, userId)
	_, err := h.files.Upload(ctx, userId, sessionId, &UploadFileRequest{Filename: "a.txt", Data: []byte("alpha")})
	require.NoError(t, err)
	_, ok := h.store.Stats(sessionId.String())
	require.True(t, ok)

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	require.NoError(t, NewConsumerService(pubSub, "teardown", h.store, logger.NewNopLogger()).Consume(ctx))

	require.NoError(t, h.chat.DeleteSession(ctx, userId, sessionId))
	require.Len(t, h.teardown.payloads, 1)
	require.NoError(t, NewPublisherService("teardown", pubSub).Publish(ctx, h.teardown.payloads[0]))

	assert.Eventually(t, func() bool {
		_, ok := h.store.Stats(sessionId.String())
		return !ok
	}, time.Second, 5*time.Millisecond)

	found, err := h.store.Load(ctx, sessionId.String())
	require.NoError(t, err)
	assert.False(t, found)
}
