package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/models"
)

// WebSocket timeout constants following Gorilla best practices.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 32
)

// Client is one authenticated WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	role    models.UserRole
	logger  *zap.Logger
	onClose func()
}

// controlMessage is what clients may send: room subscription management.
type controlMessage struct {
	Action  string `json:"action"`
	DoubtID string `json:"doubt_id,omitempty"`
}

// NewClient registers a connection with the hub and joins its default rooms:
// the user room plus the educator/staff broadcast room for those roles.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, role models.UserRole, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		role:   role,
		logger: logger,
	}
	hub.join(c, UserRoom(userID))
	switch role {
	case models.RoleEducator:
		hub.join(c, RoomEducators)
	case models.RoleAdmin, models.RoleOperationManager:
		hub.join(c, RoomStaff)
	}
	return c
}

// OnClose registers a callback invoked once when the connection goes away.
// Must be called before Start.
func (c *Client) OnClose(fn func()) {
	c.onClose = fn
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("websocket: malformed control message", zap.String("user_id", c.userID))
			continue
		}

		switch msg.Action {
		case "subscribe":
			if msg.DoubtID != "" {
				c.hub.join(c, DoubtRoom(msg.DoubtID))
			}
		case "unsubscribe":
			if msg.DoubtID != "" {
				c.hub.leave(c, DoubtRoom(msg.DoubtID))
			}
		case "ping":
			// Deadline refresh happens in the pong handler.
		default:
			c.logger.Debug("websocket: unknown action", zap.String("action", msg.Action))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case body, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
