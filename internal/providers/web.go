package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
)

const (
	maxConnectionsPerUser = 10
	writeWait             = 10 * time.Second
)

// Hub tracks the live websocket connections of each user.
type Hub struct {
	connections map[string]map[*websocket.Conn]bool // userID -> set of connections
	mutex       sync.Mutex
	logger      *logging.Logger
	upgrader    websocket.Upgrader
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*websocket.Conn]bool),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// AddConnection registers conn for userID. It returns false when the user
// already has the maximum number of connections.
func (h *Hub) AddConnection(userID string, conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[userID]; !exists {
		h.connections[userID] = make(map[*websocket.Conn]bool)
	}
	if len(h.connections[userID]) >= maxConnectionsPerUser {
		h.logger.Warnf("Max connections reached for user %s", userID)
		return false
	}
	h.connections[userID][conn] = true
	h.logger.Infof("Added WebSocket connection for user %s (total: %d)", userID, len(h.connections[userID]))
	return true
}

func (h *Hub) RemoveConnection(userID string, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, exists := h.connections[userID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, userID)
		}
		h.logger.Infof("Removed WebSocket connection for user %s (remaining: %d)", userID, len(conns))
	}
}

// Connections returns how many live connections userID has.
func (h *Hub) Connections(userID string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections[userID])
}

// SendToUser writes message to every connection of userID and returns how
// many accepted it. Connections that fail are dropped.
func (h *Hub) SendToUser(userID string, message []byte) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	conns, exists := h.connections[userID]
	if !exists {
		return 0
	}
	delivered := 0
	for conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to send WebSocket message to user %s: %v", userID, err)
			delete(conns, conn)
			conn.Close()
			continue
		}
		delivered++
	}
	if len(conns) == 0 {
		delete(h.connections, userID)
	}
	return delivered
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	if !h.AddConnection(userID, conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"),
			time.Now().Add(writeWait))
		conn.Close()
		return nil
	}
	go func() {
		defer func() {
			h.RemoveConnection(userID, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for userID, conns := range h.connections {
		for conn := range conns {
			conn.Close()
		}
		delete(h.connections, userID)
	}
}

type webFrame struct {
	Type           string    `json:"type"`
	NotificationID string    `json:"notificationId"`
	Subject        string    `json:"subject,omitempty"`
	Message        string    `json:"message"`
	At             time.Time `json:"at"`
}

// Web pushes in-app notifications to the connected users named as recipients.
type Web struct {
	hub *Hub
}

func NewWeb(hub *Hub) *Web {
	return &Web{hub: hub}
}

func (w *Web) Channel() models.Channel { return models.ChannelWeb }

func (w *Web) Transmit(ctx context.Context, msg Message) []Outcome {
	frame, err := json.Marshal(webFrame{
		Type:           "notification",
		NotificationID: msg.NotificationID,
		Subject:        msg.Subject,
		Message:        msg.Body,
		At:             time.Now().UTC(),
	})
	if err != nil {
		return failAll(msg.Recipients, "failed to encode frame")
	}
	out := make([]Outcome, len(msg.Recipients))
	for i, userID := range msg.Recipients {
		out[i] = Outcome{Recipient: userID}
		if err := ctx.Err(); err != nil {
			out[i].Status, out[i].Error = models.OutcomeFailed, err.Error()
			continue
		}
		if w.hub.SendToUser(userID, frame) == 0 {
			out[i].Status, out[i].Error = models.OutcomeFailed, "recipient offline"
			continue
		}
		out[i].Status = models.OutcomeDelivered
	}
	return out
}
