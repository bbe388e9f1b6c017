package websocket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"rag-chat-be/internal/pkg/logger"
)

func TestClientDeliverQueuesUntilClosed(t *testing.T) {
	c := NewClient(newTestHub(), nil, "s", uuid.New(), logger.NewNopLogger())

	assert.True(t, c.Deliver([]byte("a")))
	assert.Equal(t, []byte("a"), <-c.send)

	c.Close()
	c.Close()
	assert.False(t, c.Deliver([]byte("b")))
}
