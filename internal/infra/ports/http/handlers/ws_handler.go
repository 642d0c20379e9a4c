package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/qrave1/meetsignal/internal/application/config"
	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/application/metric"
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
	"github.com/qrave1/meetsignal/internal/usecase"
)

type WebSocketHandler struct {
	cfg      *config.Config
	upgrader *websocket.Upgrader

	hub *usecase.Hub
}

func NewWebSocketHandler(cfg *config.Config, hub *usecase.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		cfg: cfg,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		hub: hub,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return nil
	}

	ctx := c.Request().Context()

	client := newWSClient(ws, h.cfg.WebSocket)
	defer client.Close()

	id, err := h.hub.Connect(ctx, client)
	if err != nil {
		slog.Error("register connection", slog.Any(constant.Error, err))
		ws.Close()
		return nil
	}

	metric.IncrementWSActiveConnections()
	defer metric.DecrementWSActiveConnections()

	go client.writePump()

	h.readPump(ctx, ws, id)

	// teardown must run even when the request context is already gone
	if err := h.hub.Disconnect(context.Background(), id); err != nil && !errors.Is(err, usecase.ErrHubStopped) {
		slog.Error("disconnect", slog.Any(constant.Error, err))
	}

	return nil
}

func (h *WebSocketHandler) readPump(ctx context.Context, ws *websocket.Conn, id models.ConnectionID) {
	wsCfg := h.cfg.WebSocket

	ws.SetReadLimit(wsCfg.ReadLimit)
	ws.SetReadDeadline(time.Now().Add(wsCfg.PongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(wsCfg.PongWait))
		return nil
	})

	limiter := newLimiter(wsCfg)

	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug(
					"webSocket read error",
					slog.String(constant.ConnectionID, id.String()),
					slog.Any(constant.Error, err),
				)
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			metric.RecordDrop(metric.DropRateLimited)
			continue
		}

		if msgType != websocket.TextMessage {
			metric.RecordDrop(metric.DropMalformed)
			continue
		}

		var msg events.Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			metric.RecordDrop(metric.DropMalformed)
			slog.Warn(
				"unmarshal websocket message",
				slog.String(constant.ConnectionID, id.String()),
				slog.Any(constant.Error, err),
			)
			continue
		}

		if err := h.hub.Dispatch(ctx, id, msg); err != nil {
			slog.Error("dispatch message", slog.Any(constant.Error, err))
			return
		}
	}
}

func newLimiter(cfg config.WebSocketConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}
