package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/qrave1/meetsignal/internal/application/config"
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
	"github.com/qrave1/meetsignal/internal/infra/adapters/memory"
)

type fakeSink struct {
	mu       sync.Mutex
	msgs     []events.Message
	closed   int
	capacity int
}

func (f *fakeSink) Send(msg events.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.capacity > 0 && len(f.msgs) >= f.capacity {
		return false
	}

	f.msgs = append(f.msgs, msg)
	return true
}

func (f *fakeSink) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

func (f *fakeSink) ofType(msgType string) []events.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []events.Message
	for _, m := range f.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Type)
	}
	return out
}

func (f *fakeSink) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	uc       SignalingUsecase
	conns    memory.ConnectionRepository
	rooms    memory.RoomRepository
	handshks memory.HandshakeRepository
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()

	if cfg == nil {
		cfg = &config.Config{}
	}

	conns := memory.NewConnectionRepository()
	rooms := memory.NewRoomRepository()
	handshakes := memory.NewHandshakeRepository()

	return &harness{
		t:        t,
		ctx:      context.Background(),
		uc:       NewSignalingUsecase(cfg, conns, rooms, handshakes),
		conns:    conns,
		rooms:    rooms,
		handshks: handshakes,
	}
}

func (h *harness) connect() (models.ConnectionID, *fakeSink) {
	sink := &fakeSink{}
	id := h.uc.HandleConnect(h.ctx, sink)
	return id, sink
}

func (h *harness) send(id models.ConnectionID, msgType string, data any) {
	h.t.Helper()

	msg, err := events.New(msgType, data)
	if err != nil {
		h.t.Fatalf("build %s: %v", msgType, err)
	}
	h.uc.HandleMessage(h.ctx, id, msg)
}

func (h *harness) join(id models.ConnectionID, room, user string) {
	h.t.Helper()
	h.send(id, events.TypeJoinRoom, events.JoinRoomEvent{RoomID: room, UserID: user, DisplayName: user})
}

func decode[T any](t *testing.T, msg events.Message) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", msg.Type, err)
	}
	return v
}

func rosterIDs(t *testing.T, sink *fakeSink) []models.ConnectionID {
	t.Helper()

	rosters := sink.ofType(events.TypeAllUsers)
	if len(rosters) == 0 {
		t.Fatalf("no all-users received")
	}

	ev := decode[events.RosterEvent](t, rosters[len(rosters)-1])
	out := make([]models.ConnectionID, 0, len(ev.Users))
	for _, u := range ev.Users {
		out = append(out, u.ConnectionID)
	}
	return out
}

func requireIDs(t *testing.T, got []models.ConnectionID, want ...models.ConnectionID) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
