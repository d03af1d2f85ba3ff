package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat-delivery/internal/config"
	"chat-delivery/internal/realtime"
	"chat-delivery/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one websocket connection. It satisfies realtime.Conn: the router
// pushes events through Send and the write pump serialises them to the wire.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	cfg  config.WebSocketConfig

	send chan realtime.Outbound
	done chan struct{}
	once sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		cfg:  cfg,
		send: make(chan realtime.Outbound, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send never blocks. A client whose buffer is full is too slow to keep up and
// gets disconnected.
func (c *Client) Send(evt realtime.Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- evt:
		return true
	default:
		logger.Error("Send buffer full for connection %s, closing", c.id)
		c.Close()
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Done is closed once the client has been asked to shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump feeds inbound frames to the router one at a time and releases the
// session when the connection ends.
func (c *Client) ReadPump(router *realtime.Router, session *realtime.Session) {
	defer func() {
		router.Disconnect(context.Background(), session)
		c.hub.Remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error on connection %s: %v", c.id, err)
			}
			return
		}

		var in realtime.Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			c.Send(realtime.Outbound{
				Event: realtime.EventError,
				Data:  realtime.ErrorPayload{Message: "Invalid request"},
			})
			continue
		}

		router.Handle(context.Background(), session, in)
		if in.Event == realtime.EventDisconnect {
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				logger.Error("Write error on connection %s: %v", c.id, err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before Close, such as a final error notice.
func (c *Client) flush() {
	for {
		select {
		case evt := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		default:
			return
		}
	}
}
