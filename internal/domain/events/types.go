package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/qrave1/meetsignal/internal/domain/models"
)

var ErrMalformedEvent = errors.New("malformed event")

// Типы сообщений клиент -> сервер
const (
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"
	TypePing      = "ping"
)

// Типы, которые сервер пересылает между клиентами
const (
	TypeOfferSignal  = "offer-signal"
	TypeReturnSignal = "return-signal"
	TypeIceCandidate = "ice-candidate"
	TypeMediaToggle  = "media-toggle"
	TypeChatMessage  = "chat-message"
	TypeReaction     = "reaction"
	TypeRaiseHand    = "raise-hand"
)

// Типы сообщений сервер -> клиент
const (
	TypeConnected  = "connected"
	TypeAllUsers   = "all-users"
	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
	TypeMediaAck   = "media-ack"
	TypePong       = "pong"
)

// IsPointToPoint reports whether messages of type t are addressed to one connection.
func IsPointToPoint(t string) bool {
	switch t {
	case TypeOfferSignal, TypeReturnSignal, TypeIceCandidate:
		return true
	}
	return false
}

// IsRoomBroadcast reports whether t is a room-wide broadcast with an opaque payload.
func IsRoomBroadcast(t string) bool {
	switch t {
	case TypeChatMessage, TypeReaction, TypeRaiseHand:
		return true
	}
	return false
}

// Message - общее событие
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New marshals data into a Message of the given type.
func New(msgType string, data any) (Message, error) {
	if data == nil {
		return Message{Type: msgType}, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s: %w", msgType, err)
	}

	return Message{Type: msgType, Data: raw}, nil
}

// Decode unmarshals the message data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformedEvent, m.Type)
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, m.Type, err)
	}

	return nil
}

// JoinRoomEvent - запрос на вход в комнату
type JoinRoomEvent struct {
	RoomID      string             `json:"roomId"`
	UserID      string             `json:"userId"`
	DisplayName string             `json:"displayName"`
	MediaState  *models.MediaState `json:"mediaState,omitempty"`
}

// ConnectedEvent - первое сообщение после апгрейда соединения
type ConnectedEvent struct {
	ConnectionID models.ConnectionID `json:"connectionId"`
}

// RosterEvent - участники, вошедшие раньше получателя, в порядке входа
type RosterEvent struct {
	RoomID string               `json:"roomId"`
	Users  []models.Participant `json:"users"`
}

// SignalEvent - offer, return и ice. Payload сервер не разбирает.
type SignalEvent struct {
	FromConnectionID models.ConnectionID `json:"fromConnectionId,omitempty"`
	ToConnectionID   models.ConnectionID `json:"toConnectionId"`
	Payload          json.RawMessage     `json:"payload"`
}

// MediaToggleEvent - клиент сообщает свое текущее состояние
type MediaToggleEvent struct {
	models.MediaState
}

// MediaStateEvent - состояние участника, разосланное комнате
type MediaStateEvent struct {
	ConnectionID models.ConnectionID `json:"connectionId"`
	UserID       string              `json:"userId"`
	models.MediaState
}

// RoomEvent - chat, reaction, raise-hand от клиента
type RoomEvent struct {
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// RoomBroadcastEvent - chat, reaction, raise-hand, разосланные комнате
type RoomBroadcastEvent struct {
	RoomID           string              `json:"roomId"`
	FromConnectionID models.ConnectionID `json:"fromConnectionId"`
	UserID           string              `json:"userId"`
	DisplayName      string              `json:"displayName"`
	Payload          json.RawMessage     `json:"payload"`
}

// UserLeftEvent - участник вышел или отключился
type UserLeftEvent struct {
	ConnectionID models.ConnectionID `json:"connectionId"`
	UserID       string              `json:"userId"`
}
