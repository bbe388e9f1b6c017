package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"rag-chat-be/internal/pkg/logger"
)

// ServeWs attaches conn to sessionId and runs until the peer goes away.
// onMessage is called for each text frame, one at a time and in arrival
// order; a slow turn delays the next frame but not pings or writes.
func ServeWs(hub *Hub, conn *websocket.Conn, sessionId string, userId uuid.UUID, log logger.ILogger, onMessage func(client *Client, message []byte)) {
	client := NewClient(hub, conn, sessionId, userId, log)
	hub.Connect(sessionId, client)

	inbound := make(chan []byte, inboundBuffer)
	go client.writePump()
	go client.readPump(inbound)

	// The handler goroutine must outlive the pumps: fiber closes the
	// connection as soon as it returns.
	for message := range inbound {
		onMessage(client, message)
	}
	<-client.done
}
