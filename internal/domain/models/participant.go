package models

import "github.com/google/uuid"

// ConnectionID выдается сервером на время жизни одного websocket соединения
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

func (id ConnectionID) String() string {
	return string(id)
}

type MediaState struct {
	Mic           bool `json:"mic"`
	Camera        bool `json:"camera"`
	ScreenSharing bool `json:"screenSharing"`
}

// Participant - членство соединения в комнате.
// UserID задается клиентом и не обязан быть уникальным.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       string       `json:"userId"`
	DisplayName  string       `json:"displayName"`
	MediaState   MediaState   `json:"mediaState"`
}

// SameIdentity reports whether p and other would look the same to a peer.
func (p Participant) SameIdentity(other Participant) bool {
	return p.ConnectionID == other.ConnectionID &&
		p.UserID == other.UserID &&
		p.DisplayName == other.DisplayName
}
