package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"rag-chat-be/internal/dto"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/internal/pkg/serverutils"
	"rag-chat-be/internal/service"
	internalWS "rag-chat-be/internal/websocket"
)

const socketModule = "ChatSocket"

// IndexRestorer warms a session's vector index from its persisted state,
// rebuilding it when that state is damaged.
type IndexRestorer interface {
	RestoreIndex(ctx context.Context, sessionId uuid.UUID) error
}

type ChatSocketHandler struct {
	chat      service.IChatService
	indexes   IndexRestorer
	hub       *internalWS.Hub
	jwtSecret string
	// turnCtx outlives every connection so a turn whose peer left still
	// finishes and persists. It ends with the server.
	turnCtx context.Context
	logger  logger.ILogger
}

func NewChatSocketHandler(
	turnCtx context.Context,
	chat service.IChatService,
	indexes IndexRestorer,
	hub *internalWS.Hub,
	jwtSecret string,
	log logger.ILogger,
) *ChatSocketHandler {
	return &ChatSocketHandler{
		chat:      chat,
		indexes:   indexes,
		hub:       hub,
		jwtSecret: jwtSecret,
		turnCtx:   turnCtx,
		logger:    log,
	}
}

func (h *ChatSocketHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/chat/ws/:session_id", h.ServeWs)
}

// ServeWs authenticates the handshake, checks session ownership and then
// upgrades. Browsers pass the token as a query parameter; other clients may
// use the Authorization header.
func (h *ChatSocketHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr, _ = strings.CutPrefix(c.Get("Authorization"), "Bearer ")
	}

	userId, err := serverutils.ParseUserId(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn(socketModule, "Rejected handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	sessionId, err := uuid.Parse(c.Params("session_id"))
	if err != nil {
		return service.ErrSessionNotFound
	}
	if err := h.chat.Authorize(c.UserContext(), userId, sessionId); err != nil {
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		key := sessionId.String()
		fields := map[string]interface{}{"session_id": key, "user_id": userId.String()}

		if err := h.indexes.RestoreIndex(h.turnCtx, sessionId); err != nil {
			// The turn that needs the index reports the failure to the peer.
			h.logger.Warn(socketModule, "Failed to load session index", map[string]interface{}{"session_id": key, "error": err.Error()})
		}

		h.logger.Info(socketModule, "Connection opened", fields)
		internalWS.ServeWs(h.hub, conn, key, userId, h.logger, func(client *internalWS.Client, message []byte) {
			h.onMessage(client, sessionId, message)
		})
		h.logger.Info(socketModule, "Connection closed", fields)
	})(c)
}

func (h *ChatSocketHandler) onMessage(client *internalWS.Client, sessionId uuid.UUID, message []byte) {
	var req dto.ChatTurnRequest
	if err := json.Unmarshal(message, &req); err != nil {
		h.reject(client, "Message must be a JSON object with a content field")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if err := serverutils.ValidateRequest(req); err != nil {
		h.reject(client, "Message content is empty or too long")
		return
	}

	// Errors were already sent to every endpoint of the session.
	_ = h.chat.HandleTurn(h.turnCtx, sessionId, req.Content)
}

func (h *ChatSocketHandler) reject(client *internalWS.Client, message string) {
	client.Reply(internalWS.ErrorEvent(message))
	client.Reply(internalWS.EndEvent())
}
