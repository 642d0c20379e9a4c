package usecase

import (
	"errors"

	"github.com/qrave1/meetsignal/internal/application/metric"
)

var (
	ErrNotJoined     = errors.New("connection has not joined a room")
	ErrUnknownTarget = errors.New("target connection is not registered")
	ErrCrossRoom     = errors.New("target is outside the sender's room")
	ErrRoomSwitch    = errors.New("connection already joined another room")
	ErrHubStopped    = errors.New("signaling hub stopped")
)

// dropReason maps a handling error onto the metric label of the dropped message.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownTarget):
		return metric.DropUnknownTarget
	case errors.Is(err, ErrNotJoined):
		return metric.DropNotJoined
	case errors.Is(err, ErrCrossRoom), errors.Is(err, ErrRoomSwitch):
		return metric.DropCrossRoom
	default:
		// events.ErrMalformedEvent and anything unexpected
		return metric.DropMalformed
	}
}
