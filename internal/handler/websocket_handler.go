// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"serial-gateway/internal/api"
	"serial-gateway/internal/utils"
)

// WebSocketHandler exposes the method registry over WebSocket and carries
// broadcast events to connected clients. It is registered with the API
// server as an event-capable endpoint.
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	server      *api.Server
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(server *api.Server, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		server:      server,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// Name identifies the endpoint to the API server.
func (h *WebSocketHandler) Name() string { return "websocket" }

// Protocols advertises the endpoint capabilities.
func (h *WebSocketHandler) Protocols() []api.Protocol {
	return []api.Protocol{{
		Name:         "websocket",
		Capabilities: api.CapGet | api.CapSet | api.CapEvt,
	}}
}

// Poll is a no-op: WebSocket clients are served by per-connection
// goroutines rather than the cooperative poll loop.
func (h *WebSocketHandler) Poll() {}

// PushEvent broadcasts an event frame to every connected client.
func (h *WebSocketHandler) PushEvent(event string, data map[string]interface{}) {
	message := &WebSocketMessage{
		Type:      "event",
		Path:      event,
		Data:      data,
		Timestamp: time.Now(),
	}
	h.broadcast(message)
}

// RegisterRoutes registers the stream at the group root, so a group mounted
// at /ws serves connections on /ws itself.
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("", h.HandleConnection)
}

// HandleConnection upgrades an HTTP request to a WebSocket session.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Error("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "request":
		go h.executeRequest(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
	}
}

// executeRequest runs an API method on behalf of the client and sends the
// result back as a response or error frame.
func (h *WebSocketHandler) executeRequest(client *Client, message *WebSocketMessage) {
	response, err := h.server.Execute("websocket", message.Path, message.Params)
	if err != nil {
		h.sendMessage(client, &WebSocketMessage{
			Type:      "error",
			Path:      message.Path,
			Error:     errorReason(err),
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
		return
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "response",
		Path:      message.Path,
		Data:      response,
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// errorReason maps registry errors to wire-friendly reasons.
func errorReason(err error) string {
	switch {
	case errors.Is(err, api.ErrMethodNotFound):
		return "method not found"
	case errors.Is(err, api.ErrAuthFailed):
		return "authentication failed"
	case errors.Is(err, api.ErrInvalidParams):
		return "wrong request or parameters"
	default:
		return err.Error()
	}
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// broadcast sends a message to every connected client.
func (h *WebSocketHandler) broadcast(message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range h.connections.Clients() {
		select {
		case client.Send <- messageBytes:
		default:
			h.logger.Warn("Client send channel full during broadcast",
				zap.String("client_id", client.ID),
			)
		}
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
