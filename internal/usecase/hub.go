package usecase

import (
	"context"

	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
	"github.com/qrave1/meetsignal/internal/infra/adapters/memory"
)

const hubQueueSize = 1024

// Hub - единственная горутина, которая трогает состояние комнат и реестра.
// Calls from one connection keep their order, calls from different
// connections interleave at message granularity.
type Hub struct {
	signaling SignalingUsecase

	commands chan func(context.Context)
	done     chan struct{}
}

func NewHub(signaling SignalingUsecase) *Hub {
	return &Hub{
		signaling: signaling,
		commands:  make(chan func(context.Context), hubQueueSize),
		done:      make(chan struct{}),
	}
}

// Run processes commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			cmd(ctx)
		}
	}
}

// Connect registers sink and returns its connection id once the loop has
// recorded it.
func (h *Hub) Connect(ctx context.Context, sink memory.Sink) (models.ConnectionID, error) {
	reply := make(chan models.ConnectionID, 1)

	err := h.enqueue(ctx, func(ctx context.Context) {
		reply <- h.signaling.HandleConnect(ctx, sink)
	})
	if err != nil {
		return "", err
	}

	select {
	case id := <-reply:
		return id, nil
	case <-h.done:
		return "", ErrHubStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Dispatch queues one inbound message without waiting for it to be handled.
func (h *Hub) Dispatch(ctx context.Context, id models.ConnectionID, msg events.Message) error {
	return h.enqueue(ctx, func(ctx context.Context) {
		h.signaling.HandleMessage(ctx, id, msg)
	})
}

// Disconnect queues teardown of id behind every message it sent before.
func (h *Hub) Disconnect(ctx context.Context, id models.ConnectionID) error {
	return h.enqueue(ctx, func(ctx context.Context) {
		h.signaling.HandleDisconnect(ctx, id)
	})
}

func (h *Hub) enqueue(ctx context.Context, cmd func(context.Context)) error {
	select {
	case h.commands <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
