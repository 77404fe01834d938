package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// Client is one websocket connection bound to an authenticated user.
type Client struct {
	id     string
	userID uint
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// inboundFrame is a client-to-server frame. The live channel accepts
// delivery acks and typing signals; everything else goes over HTTP.
type inboundFrame struct {
	Type       string `json:"type"`
	MessageID  uint   `json:"message_id,omitempty"`
	ReceiverID uint   `json:"receiver_id,omitempty"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", "client_id", c.id, "error", err.Error())
			}
			break
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.hub.log.Warn("invalid websocket frame", "client_id", c.id, "error", err.Error())
			continue
		}

		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame inboundFrame) {
	switch frame.Type {
	case "delivered":
		if c.hub.delivery == nil || frame.MessageID == 0 {
			return
		}
		if _, err := c.hub.delivery.MarkDelivered(frame.MessageID); err != nil {
			c.hub.log.Warn("delivered ack failed",
				"client_id", c.id, "message_id", frame.MessageID, "error", err.Error())
		}
	case "typing":
		if c.hub.typing == nil || frame.ReceiverID == 0 {
			return
		}
		c.hub.typing.NotifyTyping(context.Background(), c.userID, frame.ReceiverID)
	default:
		c.hub.log.Warn("unknown frame type", "client_id", c.id, "type", frame.Type)
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
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

			// Flush any queued events as separate frames
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades an authenticated request and attaches the connection as
// the user's private channel.
func ServeWs(hub *Hub, c *gin.Context) {
	userID := c.GetUint("userID")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.LogError(err, "websocket upgrade failed", "user_id", userID)
		return
	}

	client := &Client{
		id:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    hub,
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}
