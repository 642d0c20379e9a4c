package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/domain/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrTransportClosed = errors.New("signaling transport closed")

// Transport is the signaling channel a Session talks through.
type Transport interface {
	Send(msg events.Message) error
	Incoming() <-chan events.Message
}

// WSTransport manages the WebSocket connection to the signaling server.
type WSTransport struct {
	conn *websocket.Conn

	incoming chan events.Message
	outgoing chan events.Message

	done chan struct{}
	once sync.Once
}

// Dial connects to the signaling endpoint, e.g. ws://localhost:3000/ws.
func Dial(ctx context.Context, serverURL string) (*WSTransport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	t := &WSTransport{
		conn:     conn,
		incoming: make(chan events.Message, 64),
		outgoing: make(chan events.Message, 64),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go t.readPump()
	go t.writePump()

	return t, nil
}

func (t *WSTransport) readPump() {
	defer func() {
		t.conn.Close()
		close(t.incoming)
	}()

	t.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg events.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("unmarshal signaling message", slog.Any(constant.Error, err))
			continue
		}

		select {
		case t.incoming <- msg:
		case <-t.done:
			return
		}
	}
}

func (t *WSTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case msg := <-t.outgoing:
			if err := t.write(msg); err != nil {
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-t.done:
			// отправляем то, что успели поставить в очередь, например leave-room
			t.flush()

			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			t.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			return
		}
	}
}

func (t *WSTransport) flush() {
	for {
		select {
		case msg := <-t.outgoing:
			if err := t.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (t *WSTransport) write(msg events.Message) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(msg)
}

// Send queues msg for the write pump.
func (t *WSTransport) Send(msg events.Message) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.outgoing <- msg:
		return nil
	case <-t.done:
		return ErrTransportClosed
	}
}

// Incoming is closed once the connection is gone.
func (t *WSTransport) Incoming() <-chan events.Message {
	return t.incoming
}

// Close flushes queued messages and closes the connection. Safe to call twice.
func (t *WSTransport) Close() {
	t.once.Do(func() {
		close(t.done)
	})
}
