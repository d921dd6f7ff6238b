package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gowork_messaging/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Client is one WebSocket connection owned by a participant. Writes go
// through the send channel so the write pump is the only goroutine touching
// the connection.
type Client struct {
	participantID uuid.UUID
	conn          *websocket.Conn
	send          chan []byte
	hub           *Hub
	log           logger.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, participantID uuid.UUID, log logger.Logger) *Client {
	return &Client{
		participantID: participantID,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		hub:           hub,
		log:           log,
	}
}

// Enqueue queues a payload for delivery. A client that cannot keep up is
// dropped rather than blocking the hub.
func (c *Client) Enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.log.Warn("Dropping slow websocket client", "participant_id", c.participantID)
		c.conn.Close()
	}
}

// Run pumps the connection until either side closes it. The read loop only
// consumes control frames; all data flows server to client.
func (c *Client) Run() {
	c.hub.Register(c)
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Websocket read error", "error", err, "participant_id", c.participantID)
			}
			return
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
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
