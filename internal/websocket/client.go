package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"rag-chat-be/internal/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBuffer = 256
	// deliverWait is how long a full send buffer may block a broadcast
	// before the endpoint counts as failed.
	deliverWait = 2 * time.Second

	inboundBuffer = 16
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	logger logger.ILogger

	SessionID string
	UserID    uuid.UUID

	// Buffered channel of outbound messages.
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

var _ Endpoint = (*Client)(nil)

func NewClient(hub *Hub, conn *websocket.Conn, sessionId string, userId uuid.UUID, log logger.ILogger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		logger:    log,
		SessionID: sessionId,
		UserID:    userId,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

func (c *Client) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
	}

	timer := time.NewTimer(deliverWait)
	defer timer.Stop()
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Reply queues event for this endpoint only.
func (c *Client) Reply(event Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		return false
	}
	return c.Deliver(payload)
}

// readPump reads frames and hands them to inbound in arrival order. It owns
// the read side of the connection and keeps pongs flowing while a turn runs.
func (c *Client) readPump(inbound chan<- []byte) {
	defer func() {
		close(inbound)
		c.hub.Disconnect(c.SessionID, c)
		c.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Client", "Unexpected close", map[string]interface{}{
					"session_id": c.SessionID,
					"error":      err.Error(),
				})
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case inbound <- message:
		case <-c.done:
			return
		}
	}
}

// writePump writes one frame per queued message and pings the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
