package handlers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qrave1/meetsignal/internal/application/config"
	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/domain/events"
)

// wsClient - очередь исходящих сообщений одного websocket соединения.
// It is the only writer to conn; writePump drains the queue.
type wsClient struct {
	conn *websocket.Conn
	cfg  config.WebSocketConfig

	send   chan events.Message
	closed chan struct{}
	once   sync.Once
}

func newWSClient(conn *websocket.Conn, cfg config.WebSocketConfig) *wsClient {
	return &wsClient{
		conn:   conn,
		cfg:    cfg,
		send:   make(chan events.Message, cfg.SendBuffer),
		closed: make(chan struct{}),
	}
}

// Send queues msg without blocking the signaling loop.
func (c *wsClient) Send(msg events.Message) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close asks writePump to flush what is queued and close the connection.
func (c *wsClient) Close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				slog.Debug("write to websocket", slog.Any(constant.Error, err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("ping failed", slog.Any(constant.Error, err))
				return
			}

		case <-c.closed:
			c.flush()

			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			return
		}
	}
}

func (c *wsClient) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsClient) write(msg events.Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.conn.WriteJSON(msg)
}
