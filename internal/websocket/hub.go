package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rag-chat-be/internal/pkg/logger"
)

// clusterChannel carries session events between API instances.
const clusterChannel = "session_events"

// Endpoint is one live connection attached to a session.
type Endpoint interface {
	// Deliver queues payload for the peer. false means the endpoint is gone
	// or cannot keep up; the hub then drops it.
	Deliver(payload []byte) bool
	Close()
}

type Hub struct {
	// Registered endpoints: SessionID -> endpoints (several tabs or devices)
	sessions map[string][]Endpoint

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// instanceId marks our own publications so the subscriber skips them.
	instanceId string

	// Dedicated Logger
	logger logger.ILogger
}

type clusterMessage struct {
	Origin    string          `json:"origin"`
	SessionId string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		sessions:   make(map[string][]Endpoint),
		rdb:        rdb,
		instanceId: uuid.NewString(),
		logger:     log,
	}
}

// Run relays events published by other instances until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		<-ctx.Done()
		return
	}
	h.subscribeToRedis(ctx)
}

// Connect registers ep for sessionId.
func (h *Hub) Connect(sessionId string, ep Endpoint) {
	h.mu.Lock()
	h.sessions[sessionId] = append(h.sessions[sessionId], ep)
	count := len(h.sessions[sessionId])
	h.mu.Unlock()

	h.logger.Info("Hub", "Endpoint registered", map[string]interface{}{
		"session_id":  sessionId,
		"connections": count,
	})
}

// Disconnect removes ep from sessionId. Removing an absent endpoint is a
// no-op. Returns whether ep was registered.
func (h *Hub) Disconnect(sessionId string, ep Endpoint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	endpoints, ok := h.sessions[sessionId]
	if !ok {
		return false
	}
	for i, e := range endpoints {
		if e == ep {
			// Fresh slice: concurrent broadcasts may still hold the old one.
			next := make([]Endpoint, 0, len(endpoints)-1)
			next = append(next, endpoints[:i]...)
			next = append(next, endpoints[i+1:]...)
			if len(next) == 0 {
				delete(h.sessions, sessionId)
				h.logger.Info("Hub", "Session has no live endpoints", map[string]interface{}{"session_id": sessionId})
			} else {
				h.sessions[sessionId] = next
			}
			return true
		}
	}
	return false
}

// Broadcast delivers payload to every endpoint of sessionId on this instance
// and publishes it for the others. An endpoint that fails delivery is removed
// and closed; the rest still receive the payload. Returns the number of
// local endpoints reached.
func (h *Hub) Broadcast(sessionId string, payload []byte) int {
	delivered := h.deliverLocal(sessionId, payload)

	if h.rdb != nil {
		msg, err := json.Marshal(clusterMessage{Origin: h.instanceId, SessionId: sessionId, Message: payload})
		if err == nil {
			if err := h.rdb.Publish(context.Background(), clusterChannel, msg).Err(); err != nil {
				h.logger.Warn("Hub", "Cluster publish failed", map[string]interface{}{
					"session_id": sessionId,
					"error":      err.Error(),
				})
			}
		}
	}
	return delivered
}

// Send marshals event and broadcasts it.
func (h *Hub) Send(sessionId string, event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{"error": err.Error()})
		return 0
	}
	return h.Broadcast(sessionId, data)
}

// ConnectionCount reports the local endpoints of a session.
func (h *Hub) ConnectionCount(sessionId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionId])
}

func (h *Hub) deliverLocal(sessionId string, payload []byte) int {
	h.mu.RLock()
	endpoints := h.sessions[sessionId]
	h.mu.RUnlock()

	delivered := 0
	for _, ep := range endpoints {
		if ep.Deliver(payload) {
			delivered++
			continue
		}
		if h.Disconnect(sessionId, ep) {
			h.logger.Warn("Hub", "Dropping endpoint after failed delivery", map[string]interface{}{"session_id": sessionId})
		}
		ep.Close()
	}
	return delivered
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Cluster message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceId {
				continue
			}
			h.deliverLocal(payload.SessionId, payload.Message)
		}
	}
}
