package usecase

import (
	"encoding/json"
	"testing"

	"github.com/qrave1/meetsignal/internal/application/config"
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
)

func TestSignaling_TwoPeerHandshakeAndDisconnect(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	b, sinkB := h.connect()

	if got := sinkA.types(); len(got) != 1 || got[0] != events.TypeConnected {
		t.Fatalf("first message must be connected, got %v", got)
	}

	h.join(a, "R1", "alice")
	requireIDs(t, rosterIDs(t, sinkA))

	h.join(b, "R1", "bob")
	requireIDs(t, rosterIDs(t, sinkB), a)

	joined := sinkA.ofType(events.TypeUserJoined)
	if len(joined) != 1 {
		t.Fatalf("A must receive exactly one user-joined, got %d", len(joined))
	}
	if p := decode[models.Participant](t, joined[0]); p.ConnectionID != b || p.UserID != "bob" {
		t.Fatalf("unexpected user-joined: %+v", p)
	}

	h.send(b, events.TypeOfferSignal, events.SignalEvent{ToConnectionID: a, Payload: json.RawMessage(`"sdp1"`)})

	offers := sinkA.ofType(events.TypeOfferSignal)
	if len(offers) != 1 {
		t.Fatalf("A must receive one offer, got %d", len(offers))
	}
	offer := decode[events.SignalEvent](t, offers[0])
	if offer.FromConnectionID != b || string(offer.Payload) != `"sdp1"` {
		t.Fatalf("unexpected offer: %+v", offer)
	}

	// user-joined{B} must precede B's offer in A's queue
	types := sinkA.types()
	joinedAt, offerAt := -1, -1
	for i, typ := range types {
		switch typ {
		case events.TypeUserJoined:
			joinedAt = i
		case events.TypeOfferSignal:
			offerAt = i
		}
	}
	if joinedAt < 0 || offerAt < joinedAt {
		t.Fatalf("user-joined must precede offer, got %v", types)
	}

	h.send(a, events.TypeReturnSignal, events.SignalEvent{ToConnectionID: b, Payload: json.RawMessage(`"sdp2"`)})

	answers := sinkB.ofType(events.TypeReturnSignal)
	if len(answers) != 1 {
		t.Fatalf("B must receive one return-signal, got %d", len(answers))
	}
	answer := decode[events.SignalEvent](t, answers[0])
	if answer.FromConnectionID != a || string(answer.Payload) != `"sdp2"` {
		t.Fatalf("unexpected return-signal: %+v", answer)
	}

	if st, ok := h.handshks.State(b, a); !ok || st != models.HandshakeAnswered {
		t.Fatalf("handshake b->a state=%s ok=%v, want answered", st, ok)
	}

	h.uc.HandleDisconnect(h.ctx, a)

	left := sinkB.ofType(events.TypeUserLeft)
	if len(left) != 1 {
		t.Fatalf("B must receive one user-left, got %d", len(left))
	}
	if ev := decode[events.UserLeftEvent](t, left[0]); ev.ConnectionID != a || ev.UserID != "alice" {
		t.Fatalf("unexpected user-left: %+v", ev)
	}

	if _, ok := h.handshks.State(b, a); ok {
		t.Fatalf("handshake with departed peer must be cancelled")
	}

	before := len(sinkB.types())
	h.send(b, events.TypeIceCandidate, events.SignalEvent{ToConnectionID: a, Payload: json.RawMessage(`{"candidate":"x"}`)})

	if len(sinkB.types()) != before {
		t.Fatalf("dropped candidate must not produce a reply to the sender")
	}
	if len(sinkA.ofType(events.TypeIceCandidate)) != 0 {
		t.Fatalf("no relay may target a disconnected connection")
	}
}

func TestSignaling_RosterHasEarlierStillConnectedParticipants(t *testing.T) {
	h := newHarness(t, nil)

	a, _ := h.connect()
	b, _ := h.connect()
	c, _ := h.connect()
	d, sinkD := h.connect()

	h.join(a, "R1", "alice")
	h.join(b, "R1", "bob")
	h.join(c, "R1", "carol")
	h.uc.HandleDisconnect(h.ctx, b)
	h.join(d, "R1", "dave")

	requireIDs(t, rosterIDs(t, sinkD), a, c)
}

func TestSignaling_MediaToggleReachesOnlyOthers(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	b, sinkB := h.connect()
	c, sinkC := h.connect()
	x, sinkX := h.connect()

	h.join(a, "R1", "alice")
	h.join(b, "R1", "bob")
	h.join(c, "R1", "carol")
	h.join(x, "R2", "xavier")

	h.send(a, events.TypeMediaToggle, events.MediaToggleEvent{MediaState: models.MediaState{Mic: true, Camera: false}})

	for name, sink := range map[string]*fakeSink{"B": sinkB, "C": sinkC} {
		got := sink.ofType(events.TypeMediaToggle)
		if len(got) != 1 {
			t.Fatalf("%s must receive exactly one media-toggle, got %d", name, len(got))
		}

		ev := decode[events.MediaStateEvent](t, got[0])
		if ev.ConnectionID != a || ev.UserID != "alice" || ev.Camera || !ev.Mic {
			t.Fatalf("%s got unexpected media-toggle: %+v", name, ev)
		}
	}

	if len(sinkA.ofType(events.TypeMediaToggle)) != 0 || len(sinkA.ofType(events.TypeMediaAck)) != 0 {
		t.Fatalf("sender must not receive its own toggle")
	}
	if len(sinkX.ofType(events.TypeMediaToggle)) != 0 {
		t.Fatalf("other rooms must not receive the toggle")
	}

	p, _ := h.conns.Lookup(a)
	if p.MediaState.Camera || !p.MediaState.Mic {
		t.Fatalf("registry must hold the recorded state: %+v", p.MediaState)
	}
}

func TestSignaling_MediaEcho(t *testing.T) {
	h := newHarness(t, &config.Config{MediaEcho: true})

	a, sinkA := h.connect()
	h.join(a, "R1", "alice")

	h.send(a, events.TypeMediaToggle, events.MediaToggleEvent{MediaState: models.MediaState{ScreenSharing: true}})

	acks := sinkA.ofType(events.TypeMediaAck)
	if len(acks) != 1 {
		t.Fatalf("expected one media-ack, got %d", len(acks))
	}
	if ev := decode[events.MediaStateEvent](t, acks[0]); !ev.ScreenSharing {
		t.Fatalf("ack must carry recorded state: %+v", ev)
	}
}

func TestSignaling_InterleavedReturnSignals(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	b, sinkB := h.connect()
	c, sinkC := h.connect()

	h.join(a, "R1", "alice")
	h.join(b, "R1", "bob")
	h.join(c, "R1", "carol")

	requireIDs(t, rosterIDs(t, sinkC), a, b)

	offerToA := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=a"}`)
	offerToB := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=b"}`)
	h.send(c, events.TypeOfferSignal, events.SignalEvent{ToConnectionID: a, Payload: offerToA})
	h.send(c, events.TypeOfferSignal, events.SignalEvent{ToConnectionID: b, Payload: offerToB})

	callerA := decode[events.SignalEvent](t, sinkA.ofType(events.TypeOfferSignal)[0]).FromConnectionID
	callerB := decode[events.SignalEvent](t, sinkB.ofType(events.TypeOfferSignal)[0]).FromConnectionID

	h.send(b, events.TypeReturnSignal, events.SignalEvent{ToConnectionID: callerB, Payload: json.RawMessage(`{"from":"b"}`)})
	h.send(a, events.TypeIceCandidate, events.SignalEvent{ToConnectionID: callerA, Payload: json.RawMessage(`{"candidate":"a1"}`)})
	h.send(a, events.TypeReturnSignal, events.SignalEvent{ToConnectionID: callerA, Payload: json.RawMessage(`{"from":"a"}`)})

	answers := sinkC.ofType(events.TypeReturnSignal)
	if len(answers) != 2 {
		t.Fatalf("C must receive two return-signals, got %d", len(answers))
	}

	first := decode[events.SignalEvent](t, answers[0])
	second := decode[events.SignalEvent](t, answers[1])
	if first.FromConnectionID != b || string(first.Payload) != `{"from":"b"}` {
		t.Fatalf("unexpected first answer: %+v", first)
	}
	if second.FromConnectionID != a || string(second.Payload) != `{"from":"a"}` {
		t.Fatalf("unexpected second answer: %+v", second)
	}

	got := decode[events.SignalEvent](t, sinkA.ofType(events.TypeOfferSignal)[0])
	if string(got.Payload) != string(offerToA) {
		t.Fatalf("payload altered: %s", got.Payload)
	}
}

func TestSignaling_LeaveThenDisconnectTearsDownOnce(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	b, sinkB := h.connect()
	h.join(a, "R1", "alice")
	h.join(b, "R1", "bob")

	h.send(a, events.TypeLeaveRoom, nil)
	h.uc.HandleDisconnect(h.ctx, a)
	h.uc.HandleDisconnect(h.ctx, a)

	if got := len(sinkB.ofType(events.TypeUserLeft)); got != 1 {
		t.Fatalf("user-left delivered %d times, want 1", got)
	}
	if sinkA.closeCount() != 1 {
		t.Fatalf("sink closed %d times, want 1", sinkA.closeCount())
	}
	if _, ok := h.conns.Get(a); ok {
		t.Fatalf("registry must forget a left connection")
	}

	// LEFT is terminal: a join on the old id is ignored
	h.join(a, "R1", "alice")
	if h.rooms.Participants() != 1 {
		t.Fatalf("Participants=%d, want 1", h.rooms.Participants())
	}
}

func TestSignaling_RejoinOnFreshConnectionIsNewParticipant(t *testing.T) {
	h := newHarness(t, nil)

	b, sinkB := h.connect()
	h.join(b, "R1", "bob")

	a1, _ := h.connect()
	h.send(a1, events.TypeJoinRoom, events.JoinRoomEvent{
		RoomID: "R1", UserID: "alice", DisplayName: "Alice",
		MediaState: &models.MediaState{Mic: true, Camera: true},
	})
	h.send(a1, events.TypeLeaveRoom, nil)

	a2, sinkA2 := h.connect()
	h.join(a2, "R1", "alice")

	if a1 == a2 {
		t.Fatalf("connection ids must not be reused")
	}

	requireIDs(t, rosterIDs(t, sinkA2), b)

	joined := sinkB.ofType(events.TypeUserJoined)
	if len(joined) != 2 {
		t.Fatalf("B must see two user-joined, got %d", len(joined))
	}
	fresh := decode[models.Participant](t, joined[1])
	if fresh.ConnectionID != a2 || fresh.MediaState != (models.MediaState{}) {
		t.Fatalf("stale state survived rejoin: %+v", fresh)
	}

	roster := h.rooms.Roster("R1", "")
	if len(roster) != 2 {
		t.Fatalf("room must hold exactly two participants, got %d", len(roster))
	}
}

func TestSignaling_DuplicateJoinIsRosterUpdate(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	b, sinkB := h.connect()
	h.join(a, "R1", "alice")
	h.join(b, "R1", "bob")

	h.join(b, "R1", "bob")

	if got := len(sinkB.ofType(events.TypeAllUsers)); got != 2 {
		t.Fatalf("roster must be re-sent, got %d", got)
	}
	requireIDs(t, rosterIDs(t, sinkB), a)

	if got := len(sinkA.ofType(events.TypeUserJoined)); got != 1 {
		t.Fatalf("unchanged identity must not be re-announced, got %d", got)
	}

	h.send(b, events.TypeJoinRoom, events.JoinRoomEvent{RoomID: "R1", UserID: "bob", DisplayName: "Bobby"})

	joined := sinkA.ofType(events.TypeUserJoined)
	if len(joined) != 2 {
		t.Fatalf("renamed participant must be re-announced, got %d", len(joined))
	}
	if p := decode[models.Participant](t, joined[1]); p.DisplayName != "Bobby" {
		t.Fatalf("unexpected update: %+v", p)
	}

	if h.rooms.Participants() != 2 {
		t.Fatalf("Participants=%d, want 2", h.rooms.Participants())
	}
}

func TestSignaling_DropsInvalidMessagesSilently(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	b, sinkB := h.connect()
	x, sinkX := h.connect()
	lurker, sinkL := h.connect()

	h.join(a, "R1", "alice")
	h.join(b, "R1", "bob")
	h.join(x, "R2", "xavier")

	baseA, baseB, baseX := len(sinkA.types()), len(sinkB.types()), len(sinkX.types())

	// before join
	h.send(lurker, events.TypeOfferSignal, events.SignalEvent{ToConnectionID: a, Payload: json.RawMessage(`"x"`)})
	h.send(lurker, events.TypeChatMessage, events.RoomEvent{RoomID: "R1", Payload: json.RawMessage(`"hi"`)})
	h.send(lurker, events.TypeMediaToggle, events.MediaToggleEvent{})

	// missing addressing
	h.send(a, events.TypeOfferSignal, events.SignalEvent{Payload: json.RawMessage(`"x"`)})
	h.uc.HandleMessage(h.ctx, a, events.Message{Type: events.TypeIceCandidate})
	h.uc.HandleMessage(h.ctx, a, events.Message{Type: events.TypeOfferSignal, Data: json.RawMessage(`{bad`)})
	h.send(a, events.TypeJoinRoom, events.JoinRoomEvent{UserID: "nobody"})

	// wrong room or self
	h.send(a, events.TypeOfferSignal, events.SignalEvent{ToConnectionID: x, Payload: json.RawMessage(`"x"`)})
	h.send(a, events.TypeOfferSignal, events.SignalEvent{ToConnectionID: a, Payload: json.RawMessage(`"x"`)})
	h.send(a, events.TypeChatMessage, events.RoomEvent{RoomID: "R2", Payload: json.RawMessage(`"hi"`)})
	h.join(a, "R2", "alice")

	h.uc.HandleMessage(h.ctx, a, events.Message{Type: "teleport"})
	h.uc.HandleMessage(h.ctx, "ghost", events.Message{Type: events.TypeLeaveRoom})

	if len(sinkA.types()) != baseA || len(sinkB.types()) != baseB || len(sinkX.types()) != baseX {
		t.Fatalf("invalid messages must not reach anyone: A=%v B=%v X=%v", sinkA.types(), sinkB.types(), sinkX.types())
	}
	if len(sinkL.types()) != 1 {
		t.Fatalf("lurker must only have its connected message, got %v", sinkL.types())
	}

	if p, _ := h.conns.Lookup(a); p.UserID != "alice" {
		t.Fatalf("A must still be joined to R1")
	}
	if conn, _ := h.conns.Get(a); conn.RoomID != "R1" {
		t.Fatalf("A switched rooms: %q", conn.RoomID)
	}
}

func TestSignaling_RoomBroadcastAudiences(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	b, sinkB := h.connect()
	h.join(a, "R1", "alice")
	h.join(b, "R1", "bob")

	h.send(a, events.TypeChatMessage, events.RoomEvent{RoomID: "R1", Payload: json.RawMessage(`{"text":"hi"}`)})
	h.send(a, events.TypeReaction, events.RoomEvent{Payload: json.RawMessage(`"clap"`)})
	h.send(a, events.TypeRaiseHand, events.RoomEvent{Payload: json.RawMessage(`true`)})

	if got := len(sinkA.ofType(events.TypeChatMessage)); got != 1 {
		t.Fatalf("chat must echo to the sender, got %d", got)
	}
	if len(sinkA.ofType(events.TypeReaction)) != 0 || len(sinkA.ofType(events.TypeRaiseHand)) != 0 {
		t.Fatalf("reaction and raise-hand must skip the sender")
	}

	chats := sinkB.ofType(events.TypeChatMessage)
	if len(chats) != 1 {
		t.Fatalf("B must receive the chat, got %d", len(chats))
	}
	chat := decode[events.RoomBroadcastEvent](t, chats[0])
	if chat.RoomID != "R1" || chat.FromConnectionID != a || chat.UserID != "alice" || string(chat.Payload) != `{"text":"hi"}` {
		t.Fatalf("unexpected chat: %+v", chat)
	}

	if len(sinkB.ofType(events.TypeReaction)) != 1 || len(sinkB.ofType(events.TypeRaiseHand)) != 1 {
		t.Fatalf("B must receive reaction and raise-hand")
	}
}

func TestSignaling_SlowConsumerIsTornDown(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	b, sinkB := h.connect()
	h.join(a, "R1", "alice")
	h.join(b, "R1", "bob")

	sinkB.mu.Lock()
	sinkB.capacity = len(sinkB.msgs)
	sinkB.mu.Unlock()

	h.send(a, events.TypeOfferSignal, events.SignalEvent{ToConnectionID: b, Payload: json.RawMessage(`"sdp"`)})

	if sinkB.closeCount() != 1 {
		t.Fatalf("slow consumer must be closed")
	}
	if _, ok := h.conns.Get(b); ok {
		t.Fatalf("slow consumer must be removed from the registry")
	}
	if got := len(sinkA.ofType(events.TypeUserLeft)); got != 1 {
		t.Fatalf("A must learn that B left, got %d", got)
	}
}

func TestSignaling_EmptyRoomsAreReclaimed(t *testing.T) {
	h := newHarness(t, nil)

	a, _ := h.connect()
	b, _ := h.connect()
	h.join(a, "R1", "alice")
	h.join(b, "R2", "bob")

	h.send(a, events.TypeLeaveRoom, nil)
	h.uc.HandleDisconnect(h.ctx, b)

	if h.rooms.Rooms() != 0 || h.rooms.Participants() != 0 {
		t.Fatalf("rooms=%d participants=%d, want 0", h.rooms.Rooms(), h.rooms.Participants())
	}
	if h.conns.Count() != 0 {
		t.Fatalf("connections=%d, want 0", h.conns.Count())
	}
}

func TestSignaling_Ping(t *testing.T) {
	h := newHarness(t, nil)

	a, sinkA := h.connect()
	h.send(a, events.TypePing, nil)

	if len(sinkA.ofType(events.TypePong)) != 1 {
		t.Fatalf("expected pong, got %v", sinkA.types())
	}
}
