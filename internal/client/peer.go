package client

import (
	"encoding/json"
	"errors"

	"github.com/qrave1/meetsignal/internal/domain/models"
)

var ErrUnexpectedSignal = errors.New("unexpected signal")

// Peer is one side of a point-to-point connection. Payloads are the opaque
// blobs carried by offer-signal, return-signal and ice-candidate.
type Peer interface {
	CreateOffer() (json.RawMessage, error)
	AcceptOffer(offer json.RawMessage) (json.RawMessage, error)
	AcceptAnswer(answer json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error
	Close() error
}

// PeerCallbacks may be invoked from any goroutine.
type PeerCallbacks struct {
	OnICECandidate func(candidate json.RawMessage)
	OnConnected    func()
	OnFailed       func()
}

type PeerFactory func(remote models.ConnectionID, cb PeerCallbacks) (Peer, error)
