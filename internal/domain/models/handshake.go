package models

// HandshakeState tags one initiator->peer entry of a handshake table.
type HandshakeState int

const (
	HandshakeOffered HandshakeState = iota + 1
	HandshakeAnswered
	HandshakeEstablished
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeOffered:
		return "offered"
	case HandshakeAnswered:
		return "answered"
	case HandshakeEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// InFlight reports whether the handshake has not completed yet.
func (s HandshakeState) InFlight() bool {
	return s == HandshakeOffered || s == HandshakeAnswered
}
