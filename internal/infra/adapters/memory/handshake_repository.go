package memory

import "github.com/qrave1/meetsignal/internal/domain/models"

// HandshakeRepository хранит незавершенные рукопожатия: initiator -> peer -> state.
// Not safe for concurrent use: the signaling loop is the only writer.
type HandshakeRepository interface {
	Offered(initiator, peer models.ConnectionID)

	// Answered moves an offered entry forward; it reports false when
	// initiator never offered to peer.
	Answered(initiator, peer models.ConnectionID) bool

	State(initiator, peer models.ConnectionID) (models.HandshakeState, bool)

	// Drop removes every entry involving id in either role and returns how
	// many of them were still in flight.
	Drop(id models.ConnectionID) int
}

type handshakeRepository struct {
	table map[models.ConnectionID]map[models.ConnectionID]models.HandshakeState
}

func NewHandshakeRepository() HandshakeRepository {
	return &handshakeRepository{
		table: make(map[models.ConnectionID]map[models.ConnectionID]models.HandshakeState),
	}
}

func (r *handshakeRepository) Offered(initiator, peer models.ConnectionID) {
	peers, ok := r.table[initiator]
	if !ok {
		peers = make(map[models.ConnectionID]models.HandshakeState)
		r.table[initiator] = peers
	}

	peers[peer] = models.HandshakeOffered
}

func (r *handshakeRepository) Answered(initiator, peer models.ConnectionID) bool {
	state, ok := r.table[initiator][peer]
	if !ok {
		return false
	}

	if state == models.HandshakeOffered {
		r.table[initiator][peer] = models.HandshakeAnswered
	}

	return true
}

func (r *handshakeRepository) State(initiator, peer models.ConnectionID) (models.HandshakeState, bool) {
	state, ok := r.table[initiator][peer]
	return state, ok
}

func (r *handshakeRepository) Drop(id models.ConnectionID) int {
	cancelled := 0

	for _, state := range r.table[id] {
		if state.InFlight() {
			cancelled++
		}
	}
	delete(r.table, id)

	for initiator, peers := range r.table {
		state, ok := peers[id]
		if !ok {
			continue
		}

		if state.InFlight() {
			cancelled++
		}

		delete(peers, id)
		if len(peers) == 0 {
			delete(r.table, initiator)
		}
	}

	return cancelled
}
