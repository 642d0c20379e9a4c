package memory

import (
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
)

// Sink доставляет сообщения одному соединению.
// Send must not block; it returns false when the message could not be queued.
type Sink interface {
	Send(events.Message) bool
	Close()
}

// Connection - запись реестра для одного живого соединения
type Connection struct {
	ID    models.ConnectionID
	Sink  Sink
	State models.SessionState

	// RoomID и Participant заполнены только в состоянии SessionJoined
	RoomID      string
	Participant models.Participant
}

// ConnectionRepository - реестр соединений.
// Not safe for concurrent use: the signaling loop is the only writer.
type ConnectionRepository interface {
	Add(id models.ConnectionID, sink Sink) *Connection
	Get(id models.ConnectionID) (*Connection, bool)
	Lookup(id models.ConnectionID) (models.Participant, bool)
	Remove(id models.ConnectionID) (*Connection, bool)
	Count() int
}

type connectionRepository struct {
	conns map[models.ConnectionID]*Connection
}

func NewConnectionRepository() ConnectionRepository {
	return &connectionRepository{
		conns: make(map[models.ConnectionID]*Connection, 64),
	}
}

func (r *connectionRepository) Add(id models.ConnectionID, sink Sink) *Connection {
	conn := &Connection{
		ID:    id,
		Sink:  sink,
		State: models.SessionConnected,
	}

	r.conns[id] = conn

	return conn
}

func (r *connectionRepository) Get(id models.ConnectionID) (*Connection, bool) {
	conn, ok := r.conns[id]
	return conn, ok
}

func (r *connectionRepository) Lookup(id models.ConnectionID) (models.Participant, bool) {
	conn, ok := r.conns[id]
	if !ok || conn.State != models.SessionJoined {
		return models.Participant{}, false
	}

	return conn.Participant, true
}

func (r *connectionRepository) Remove(id models.ConnectionID) (*Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, false
	}

	delete(r.conns, id)

	return conn, true
}

func (r *connectionRepository) Count() int {
	return len(r.conns)
}
