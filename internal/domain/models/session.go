package models

// SessionState is the lifecycle of one connection: Connected -> Joined -> Left.
type SessionState int

const (
	SessionConnected SessionState = iota
	SessionJoined
	SessionLeft
)

func (s SessionState) String() string {
	switch s {
	case SessionConnected:
		return "connected"
	case SessionJoined:
		return "joined"
	case SessionLeft:
		return "left"
	default:
		return "unknown"
	}
}
