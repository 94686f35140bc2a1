package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"security-monitor-service/internal/infrastructure/pubsub"
	"security-monitor-service/internal/logging"
)

// client pairs one connection with one broker subscription.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	sub  *pubsub.Subscription
	once sync.Once
}

func (c *client) shutdown() {
	c.once.Do(func() {
		c.hub.unregister(c)
		c.sub.Close()
		_ = c.conn.Close()
	})
}

// readPump only services control frames; inbound data is discarded.
func (c *client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", logging.AttachError(err)...)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case msg, ok := <-c.sub.C():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debug("websocket write failed", logging.AttachError(err, "topic", msg.Topic)...)
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
