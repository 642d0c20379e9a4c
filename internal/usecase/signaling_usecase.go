package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qrave1/meetsignal/internal/application/config"
	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/application/metric"
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
	"github.com/qrave1/meetsignal/internal/infra/adapters/memory"
)

const maxFieldLength = 256

// SignalingUsecase владеет жизненным циклом соединений: Connected -> Joined -> Left.
// Not safe for concurrent use; Hub serializes every call onto one goroutine.
type SignalingUsecase interface {
	HandleConnect(ctx context.Context, sink memory.Sink) models.ConnectionID
	HandleMessage(ctx context.Context, id models.ConnectionID, msg events.Message)
	HandleDisconnect(ctx context.Context, id models.ConnectionID)
}

type signalingUsecase struct {
	connRepo      memory.ConnectionRepository
	roomRepo      memory.RoomRepository
	handshakeRepo memory.HandshakeRepository

	out      *outbox
	presence PresenceUsecase
	relay    RelayUsecase
}

func NewSignalingUsecase(
	cfg *config.Config,
	connRepo memory.ConnectionRepository,
	roomRepo memory.RoomRepository,
	handshakeRepo memory.HandshakeRepository,
) SignalingUsecase {
	out := newOutbox(connRepo)

	return &signalingUsecase{
		connRepo:      connRepo,
		roomRepo:      roomRepo,
		handshakeRepo: handshakeRepo,
		out:           out,
		presence:      newPresenceUsecase(roomRepo, out, cfg.MediaEcho),
		relay:         newRelayUsecase(connRepo, roomRepo, handshakeRepo, out),
	}
}

func (s *signalingUsecase) HandleConnect(ctx context.Context, sink memory.Sink) models.ConnectionID {
	id := models.NewConnectionID()
	s.connRepo.Add(id, sink)

	msg, err := events.New(events.TypeConnected, events.ConnectedEvent{ConnectionID: id})
	if err == nil {
		s.out.send(id, msg)
	}

	slog.Debug("connection registered", slog.String(constant.ConnectionID, id.String()))

	s.reapSlow(ctx)

	return id
}

func (s *signalingUsecase) HandleMessage(ctx context.Context, id models.ConnectionID, msg events.Message) {
	defer s.reapSlow(ctx)

	conn, ok := s.connRepo.Get(id)
	if !ok {
		// опоздавшее сообщение от уже удаленного соединения
		slog.Debug(
			"message from unknown connection",
			slog.String(constant.ConnectionID, id.String()),
			slog.String(constant.Type, msg.Type),
		)
		return
	}

	metric.RecordMessage(msg.Type)

	var err error

	switch {
	case msg.Type == events.TypeJoinRoom:
		err = s.handleJoin(ctx, conn, msg)

	case msg.Type == events.TypeLeaveRoom:
		s.teardown(ctx, conn, "leave")

	case msg.Type == events.TypeMediaToggle:
		err = s.handleMediaToggle(ctx, conn, msg)

	case events.IsPointToPoint(msg.Type):
		err = s.relay.RelaySignal(ctx, conn, msg)

	case events.IsRoomBroadcast(msg.Type):
		err = s.relay.RelayRoomEvent(ctx, conn, msg)

	case msg.Type == events.TypePing:
		pong, _ := events.New(events.TypePong, nil)
		s.out.send(id, pong)

	default:
		err = fmt.Errorf("%w: unknown type %q", events.ErrMalformedEvent, msg.Type)
	}

	if err != nil {
		s.logDrop(ctx, id, msg.Type, err)
	}
}

func (s *signalingUsecase) HandleDisconnect(ctx context.Context, id models.ConnectionID) {
	defer s.reapSlow(ctx)

	conn, ok := s.connRepo.Get(id)
	if !ok {
		return
	}

	s.teardown(ctx, conn, "disconnect")
}

func (s *signalingUsecase) handleJoin(ctx context.Context, conn *memory.Connection, msg events.Message) error {
	var join events.JoinRoomEvent
	if err := msg.Decode(&join); err != nil {
		return err
	}

	if err := validateJoin(join); err != nil {
		return err
	}

	if conn.State == models.SessionJoined && conn.RoomID != join.RoomID {
		return fmt.Errorf("%w: in %q, asked for %q", ErrRoomSwitch, conn.RoomID, join.RoomID)
	}

	p := models.Participant{
		ConnectionID: conn.ID,
		UserID:       join.UserID,
		DisplayName:  join.DisplayName,
	}
	if p.DisplayName == "" {
		p.DisplayName = p.UserID
	}

	prev, wasJoined := conn.Participant, conn.State == models.SessionJoined

	switch {
	case join.MediaState != nil:
		p.MediaState = *join.MediaState
	case wasJoined:
		p.MediaState = prev.MediaState
	}

	roster, replaced := s.roomRepo.Join(join.RoomID, p)

	conn.State = models.SessionJoined
	conn.RoomID = join.RoomID
	conn.Participant = p

	// user-joined уходит остальным раньше, чем новичок узнает, кому слать offer
	if !replaced || !prev.SameIdentity(p) {
		if err := s.presence.AnnounceJoin(ctx, join.RoomID, p); err != nil {
			return fmt.Errorf("announce join: %w", err)
		}
	}

	if err := s.presence.SendRoster(ctx, join.RoomID, p, roster); err != nil {
		return fmt.Errorf("send roster: %w", err)
	}

	s.updateGauges()

	return nil
}

func (s *signalingUsecase) handleMediaToggle(ctx context.Context, conn *memory.Connection, msg events.Message) error {
	if conn.State != models.SessionJoined {
		return ErrNotJoined
	}

	var toggle events.MediaToggleEvent
	if err := msg.Decode(&toggle); err != nil {
		return err
	}

	p, ok := s.roomRepo.SetMediaState(conn.RoomID, conn.ID, toggle.MediaState)
	if !ok {
		return ErrNotJoined
	}

	conn.Participant = p

	if err := s.presence.BroadcastMediaState(ctx, conn.RoomID, p); err != nil {
		return fmt.Errorf("broadcast media state: %w", err)
	}

	return nil
}

// teardown runs directory removal, announceLeave and registry cleanup in that
// order. The registry entry disappears at the end, so a second call for the
// same connection never reaches this point.
func (s *signalingUsecase) teardown(ctx context.Context, conn *memory.Connection, reason string) {
	if conn.State == models.SessionLeft {
		return
	}

	if conn.State == models.SessionJoined {
		if p, ok := s.roomRepo.Leave(conn.RoomID, conn.ID); ok {
			if err := s.presence.AnnounceLeave(ctx, conn.RoomID, p); err != nil {
				slog.Error("announce leave", slog.Any(constant.Error, err))
			}
		}
	}

	cancelled := s.handshakeRepo.Drop(conn.ID)
	metric.AddCancelledHandshakes(cancelled)

	conn.State = models.SessionLeft
	s.connRepo.Remove(conn.ID)
	conn.Sink.Close()

	slog.Debug(
		"connection torn down",
		slog.String(constant.ConnectionID, conn.ID.String()),
		slog.String(constant.RoomID, conn.RoomID),
		slog.String(constant.Reason, reason),
		slog.Int("cancelled_handshakes", cancelled),
	)

	s.updateGauges()
}

// reapSlow tears down connections whose send queue overflowed while handling
// the current message. Teardown may overflow further queues, hence the loop.
func (s *signalingUsecase) reapSlow(ctx context.Context) {
	for {
		slow := s.out.takeSlow()
		if len(slow) == 0 {
			return
		}

		for _, id := range slow {
			if conn, ok := s.connRepo.Get(id); ok {
				s.teardown(ctx, conn, "slow consumer")
			}
		}
	}
}

func (s *signalingUsecase) updateGauges() {
	metric.SetActiveRooms(s.roomRepo.Rooms())
	metric.SetActiveParticipants(s.roomRepo.Participants())
}

func (s *signalingUsecase) logDrop(ctx context.Context, id models.ConnectionID, msgType string, err error) {
	reason := dropReason(err)
	metric.RecordDrop(reason)

	level := slog.LevelWarn
	if errors.Is(err, ErrUnknownTarget) {
		level = slog.LevelDebug
	}

	slog.Log(
		ctx,
		level,
		"message dropped",
		slog.String(constant.ConnectionID, id.String()),
		slog.String(constant.Type, msgType),
		slog.String(constant.Reason, reason),
		slog.Any(constant.Error, err),
	)
}

func validateJoin(join events.JoinRoomEvent) error {
	if join.RoomID == "" {
		return fmt.Errorf("%w: join-room without roomId", events.ErrMalformedEvent)
	}

	if join.UserID == "" {
		return fmt.Errorf("%w: join-room without userId", events.ErrMalformedEvent)
	}

	if len(join.RoomID) > maxFieldLength || len(join.UserID) > maxFieldLength || len(join.DisplayName) > maxFieldLength {
		return fmt.Errorf("%w: join-room field longer than %d bytes", events.ErrMalformedEvent, maxFieldLength)
	}

	return nil
}
