package memory

import (
	"slices"

	"github.com/qrave1/meetsignal/internal/domain/models"
)

// RoomRepository - каталог комнат: roomID -> участники в порядке входа.
// Not safe for concurrent use: the signaling loop is the only writer.
type RoomRepository interface {
	// Join inserts p or replaces its existing entry in place and returns the
	// participants that joined before it.
	Join(roomID string, p models.Participant) (roster []models.Participant, replaced bool)

	// Leave removes the participant and drops the room once it is empty.
	Leave(roomID string, id models.ConnectionID) (models.Participant, bool)

	// Roster returns the room in join order without exclude.
	Roster(roomID string, exclude models.ConnectionID) []models.Participant

	Get(roomID string, id models.ConnectionID) (models.Participant, bool)
	SetMediaState(roomID string, id models.ConnectionID, state models.MediaState) (models.Participant, bool)

	Rooms() int
	Participants() int
}

type room struct {
	order   []models.ConnectionID
	members map[models.ConnectionID]models.Participant
}

type roomRepository struct {
	rooms        map[string]*room
	participants int
}

func NewRoomRepository() RoomRepository {
	return &roomRepository{
		rooms: make(map[string]*room),
	}
}

func (r *roomRepository) Join(roomID string, p models.Participant) ([]models.Participant, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[models.ConnectionID]models.Participant)}
		r.rooms[roomID] = rm
	}

	_, replaced := rm.members[p.ConnectionID]
	if !replaced {
		rm.order = append(rm.order, p.ConnectionID)
		r.participants++
	}

	rm.members[p.ConnectionID] = p

	pos := slices.Index(rm.order, p.ConnectionID)
	roster := make([]models.Participant, 0, pos)

	for _, id := range rm.order[:pos] {
		roster = append(roster, rm.members[id])
	}

	return roster, replaced
}

func (r *roomRepository) Leave(roomID string, id models.ConnectionID) (models.Participant, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return models.Participant{}, false
	}

	p, ok := rm.members[id]
	if !ok {
		return models.Participant{}, false
	}

	delete(rm.members, id)
	rm.order = slices.DeleteFunc(rm.order, func(v models.ConnectionID) bool { return v == id })
	r.participants--

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
	}

	return p, true
}

func (r *roomRepository) Roster(roomID string, exclude models.ConnectionID) []models.Participant {
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}

	roster := make([]models.Participant, 0, len(rm.order))

	for _, id := range rm.order {
		if id == exclude {
			continue
		}
		roster = append(roster, rm.members[id])
	}

	return roster
}

func (r *roomRepository) Get(roomID string, id models.ConnectionID) (models.Participant, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return models.Participant{}, false
	}

	p, ok := rm.members[id]
	return p, ok
}

func (r *roomRepository) SetMediaState(roomID string, id models.ConnectionID, state models.MediaState) (models.Participant, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return models.Participant{}, false
	}

	p, ok := rm.members[id]
	if !ok {
		return models.Participant{}, false
	}

	p.MediaState = state
	rm.members[id] = p

	return p, true
}

func (r *roomRepository) Rooms() int {
	return len(r.rooms)
}

func (r *roomRepository) Participants() int {
	return r.participants
}
