package client

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
)

type SessionConfig struct {
	RoomID      string
	UserID      string
	DisplayName string
	MediaState  models.MediaState

	// Хуки вызываются из цикла сессии и не должны блокировать
	OnPeerState func(peer models.ConnectionID, state models.HandshakeState)
	OnPeerLeft  func(peer models.ConnectionID)
	OnRoomEvent func(msg events.Message)
}

type peerLink struct {
	peer      Peer
	initiator bool
	state     models.HandshakeState
	remoteSet bool
}

// Session joins one room and keeps a point-to-point link with every other
// participant. All state is owned by the Run loop; peer callbacks are
// marshalled onto it through local.
type Session struct {
	cfg       SessionConfig
	transport Transport
	newPeer   PeerFactory

	self   models.ConnectionID
	roster map[models.ConnectionID]models.Participant
	links  map[models.ConnectionID]*peerLink

	// offers from peers whose user-joined has not arrived yet
	pendingOffers map[models.ConnectionID]json.RawMessage
	// candidates received before the remote description was applied
	pendingICE map[models.ConnectionID][]json.RawMessage

	local chan func()
	done  chan struct{}
}

func NewSession(cfg SessionConfig, transport Transport, newPeer PeerFactory) *Session {
	return &Session{
		cfg:           cfg,
		transport:     transport,
		newPeer:       newPeer,
		roster:        make(map[models.ConnectionID]models.Participant),
		links:         make(map[models.ConnectionID]*peerLink),
		pendingOffers: make(map[models.ConnectionID]json.RawMessage),
		pendingICE:    make(map[models.ConnectionID][]json.RawMessage),
		local:         make(chan func(), 64),
		done:          make(chan struct{}),
	}
}

// Run processes signaling until ctx is done or the transport closes.
// On ctx cancellation a leave-room is queued before returning.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.closeAll()

	incoming := s.transport.Incoming()

	for {
		select {
		case <-ctx.Done():
			s.send(events.TypeLeaveRoom, nil)
			return nil

		case msg, ok := <-incoming:
			if !ok {
				return ErrTransportClosed
			}
			s.handle(msg)

		case fn := <-s.local:
			fn()
		}
	}
}

// Chat sends an opaque chat payload to the room.
func (s *Session) Chat(payload json.RawMessage) bool {
	return s.post(func() {
		s.send(events.TypeChatMessage, events.RoomEvent{RoomID: s.cfg.RoomID, Payload: payload})
	})
}

func (s *Session) RaiseHand(payload json.RawMessage) bool {
	return s.post(func() {
		s.send(events.TypeRaiseHand, events.RoomEvent{RoomID: s.cfg.RoomID, Payload: payload})
	})
}

// ToggleMedia publishes the new local media state.
func (s *Session) ToggleMedia(state models.MediaState) bool {
	return s.post(func() {
		s.cfg.MediaState = state
		s.send(events.TypeMediaToggle, events.MediaToggleEvent{MediaState: state})
	})
}

func (s *Session) post(fn func()) bool {
	select {
	case s.local <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) handle(msg events.Message) {
	switch msg.Type {
	case events.TypeConnected:
		s.onConnected(msg)
	case events.TypeAllUsers:
		s.onRoster(msg)
	case events.TypeUserJoined:
		s.onUserJoined(msg)
	case events.TypeUserLeft:
		s.onUserLeft(msg)
	case events.TypeOfferSignal:
		s.onOffer(msg)
	case events.TypeReturnSignal:
		s.onAnswer(msg)
	case events.TypeIceCandidate:
		s.onCandidate(msg)
	case events.TypeMediaToggle, events.TypeMediaAck,
		events.TypeChatMessage, events.TypeReaction, events.TypeRaiseHand:
		if s.cfg.OnRoomEvent != nil {
			s.cfg.OnRoomEvent(msg)
		}
	case events.TypePong:
	default:
		slog.Debug("unknown message", slog.String(constant.Type, msg.Type))
	}
}

func (s *Session) onConnected(msg events.Message) {
	var ev events.ConnectedEvent
	if !s.decode(msg, &ev) {
		return
	}

	s.self = ev.ConnectionID

	media := s.cfg.MediaState
	s.send(events.TypeJoinRoom, events.JoinRoomEvent{
		RoomID:      s.cfg.RoomID,
		UserID:      s.cfg.UserID,
		DisplayName: s.cfg.DisplayName,
		MediaState:  &media,
	})
}

// onRoster initiates toward everyone who joined before us.
func (s *Session) onRoster(msg events.Message) {
	var ev events.RosterEvent
	if !s.decode(msg, &ev) {
		return
	}

	for _, p := range ev.Users {
		if p.ConnectionID == s.self {
			continue
		}

		s.roster[p.ConnectionID] = p

		if _, exists := s.links[p.ConnectionID]; exists {
			continue
		}

		s.initiate(p.ConnectionID)
	}
}

func (s *Session) onUserJoined(msg events.Message) {
	var p models.Participant
	if !s.decode(msg, &p) {
		return
	}

	if p.ConnectionID == s.self {
		return
	}

	s.roster[p.ConnectionID] = p

	if offer, ok := s.pendingOffers[p.ConnectionID]; ok {
		delete(s.pendingOffers, p.ConnectionID)
		s.answer(p.ConnectionID, offer)
	}
}

func (s *Session) onUserLeft(msg events.Message) {
	var ev events.UserLeftEvent
	if !s.decode(msg, &ev) {
		return
	}

	s.dropPeer(ev.ConnectionID)

	if s.cfg.OnPeerLeft != nil {
		s.cfg.OnPeerLeft(ev.ConnectionID)
	}
}

func (s *Session) onOffer(msg events.Message) {
	var ev events.SignalEvent
	if !s.decode(msg, &ev) {
		return
	}

	from := ev.FromConnectionID

	if _, known := s.roster[from]; !known {
		slog.Debug("buffer offer from unknown peer", slog.String(constant.PeerID, from.String()))
		s.pendingOffers[from] = ev.Payload
		return
	}

	if _, exists := s.links[from]; exists {
		slog.Debug("duplicate offer", slog.String(constant.PeerID, from.String()))
		return
	}

	s.answer(from, ev.Payload)
}

func (s *Session) onAnswer(msg events.Message) {
	var ev events.SignalEvent
	if !s.decode(msg, &ev) {
		return
	}

	from := ev.FromConnectionID

	link, ok := s.links[from]
	if !ok || !link.initiator || link.state != models.HandshakeOffered {
		slog.Debug("unexpected answer", slog.String(constant.PeerID, from.String()))
		return
	}

	if err := link.peer.AcceptAnswer(ev.Payload); err != nil {
		slog.Warn(
			"accept answer",
			slog.String(constant.PeerID, from.String()),
			slog.Any(constant.Error, err),
		)
		s.dropPeer(from)
		return
	}

	link.remoteSet = true
	s.flushCandidates(from, link)
	s.setState(from, link, models.HandshakeAnswered)
}

func (s *Session) onCandidate(msg events.Message) {
	var ev events.SignalEvent
	if !s.decode(msg, &ev) {
		return
	}

	from := ev.FromConnectionID

	link, ok := s.links[from]
	if ok && link.remoteSet {
		s.addCandidate(from, link, ev.Payload)
		return
	}

	_, offerPending := s.pendingOffers[from]
	if !ok && !offerPending {
		slog.Debug("candidate from unknown peer", slog.String(constant.PeerID, from.String()))
		return
	}

	s.pendingICE[from] = append(s.pendingICE[from], ev.Payload)
}

func (s *Session) initiate(id models.ConnectionID) {
	link, err := s.openLink(id, true)
	if err != nil {
		return
	}

	offer, err := link.peer.CreateOffer()
	if err != nil {
		slog.Warn("create offer", slog.String(constant.PeerID, id.String()), slog.Any(constant.Error, err))
		s.dropPeer(id)
		return
	}

	s.send(events.TypeOfferSignal, events.SignalEvent{ToConnectionID: id, Payload: offer})
	s.setState(id, link, models.HandshakeOffered)
}

func (s *Session) answer(id models.ConnectionID, offer json.RawMessage) {
	link, err := s.openLink(id, false)
	if err != nil {
		return
	}

	answer, err := link.peer.AcceptOffer(offer)
	if err != nil {
		slog.Warn("accept offer", slog.String(constant.PeerID, id.String()), slog.Any(constant.Error, err))
		s.dropPeer(id)
		return
	}

	link.remoteSet = true

	s.send(events.TypeReturnSignal, events.SignalEvent{ToConnectionID: id, Payload: answer})
	s.flushCandidates(id, link)
	s.setState(id, link, models.HandshakeAnswered)
}

func (s *Session) openLink(id models.ConnectionID, initiator bool) (*peerLink, error) {
	link := &peerLink{initiator: initiator}

	peer, err := s.newPeer(id, PeerCallbacks{
		OnICECandidate: func(c json.RawMessage) {
			s.post(func() {
				if s.links[id] == link {
					s.send(events.TypeIceCandidate, events.SignalEvent{ToConnectionID: id, Payload: c})
				}
			})
		},
		OnConnected: func() {
			s.post(func() {
				if s.links[id] == link && link.state == models.HandshakeAnswered {
					s.setState(id, link, models.HandshakeEstablished)
				}
			})
		},
		OnFailed: func() {
			s.post(func() {
				if s.links[id] == link {
					slog.Warn("peer connection failed", slog.String(constant.PeerID, id.String()))
					s.dropPeer(id)
				}
			})
		},
	})
	if err != nil {
		slog.Error("create peer", slog.String(constant.PeerID, id.String()), slog.Any(constant.Error, err))
		return nil, err
	}

	link.peer = peer
	s.links[id] = link

	return link, nil
}

func (s *Session) flushCandidates(id models.ConnectionID, link *peerLink) {
	pending := s.pendingICE[id]
	delete(s.pendingICE, id)

	for _, c := range pending {
		s.addCandidate(id, link, c)
	}
}

func (s *Session) addCandidate(id models.ConnectionID, link *peerLink, c json.RawMessage) {
	if err := link.peer.AddICECandidate(c); err != nil {
		slog.Warn("add ice candidate", slog.String(constant.PeerID, id.String()), slog.Any(constant.Error, err))
	}
}

func (s *Session) setState(id models.ConnectionID, link *peerLink, state models.HandshakeState) {
	link.state = state

	slog.Debug(
		"handshake state",
		slog.String(constant.PeerID, id.String()),
		slog.String(constant.State, state.String()),
	)

	if s.cfg.OnPeerState != nil {
		s.cfg.OnPeerState(id, state)
	}
}

// dropPeer forgets everything known about id and closes its link.
func (s *Session) dropPeer(id models.ConnectionID) {
	if link, ok := s.links[id]; ok {
		delete(s.links, id)
		if err := link.peer.Close(); err != nil {
			slog.Debug("close peer", slog.String(constant.PeerID, id.String()), slog.Any(constant.Error, err))
		}
	}

	delete(s.roster, id)
	delete(s.pendingOffers, id)
	delete(s.pendingICE, id)
}

func (s *Session) closeAll() {
	for id := range s.links {
		s.dropPeer(id)
	}
}

func (s *Session) send(msgType string, data any) {
	msg, err := events.New(msgType, data)
	if err != nil {
		slog.Error("build message", slog.String(constant.Type, msgType), slog.Any(constant.Error, err))
		return
	}

	if err := s.transport.Send(msg); err != nil {
		slog.Warn("send message", slog.String(constant.Type, msgType), slog.Any(constant.Error, err))
	}
}

func (s *Session) decode(msg events.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		slog.Warn("decode message", slog.String(constant.Type, msg.Type), slog.Any(constant.Error, err))
		return false
	}
	return true
}
