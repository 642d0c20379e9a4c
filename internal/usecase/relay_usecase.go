package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
	"github.com/qrave1/meetsignal/internal/infra/adapters/memory"
)

type RelayUsecase interface {
	// RelaySignal forwards offer-signal, return-signal and ice-candidate to
	// the addressed connection. The payload is passed through untouched.
	RelaySignal(ctx context.Context, from *memory.Connection, msg events.Message) error

	// RelayRoomEvent forwards chat-message, reaction and raise-hand to the
	// sender's room.
	RelayRoomEvent(ctx context.Context, from *memory.Connection, msg events.Message) error
}

type relayUsecase struct {
	connRepo      memory.ConnectionRepository
	roomRepo      memory.RoomRepository
	handshakeRepo memory.HandshakeRepository
	out           *outbox
}

func newRelayUsecase(
	connRepo memory.ConnectionRepository,
	roomRepo memory.RoomRepository,
	handshakeRepo memory.HandshakeRepository,
	out *outbox,
) *relayUsecase {
	return &relayUsecase{
		connRepo:      connRepo,
		roomRepo:      roomRepo,
		handshakeRepo: handshakeRepo,
		out:           out,
	}
}

func (u *relayUsecase) RelaySignal(ctx context.Context, from *memory.Connection, msg events.Message) error {
	if from.State != models.SessionJoined {
		return ErrNotJoined
	}

	var signal events.SignalEvent
	if err := msg.Decode(&signal); err != nil {
		return err
	}

	if signal.ToConnectionID == "" {
		return fmt.Errorf("%w: %s without toConnectionId", events.ErrMalformedEvent, msg.Type)
	}

	if signal.ToConnectionID == from.ID {
		return fmt.Errorf("%w: %s addressed to sender", events.ErrMalformedEvent, msg.Type)
	}

	target, ok := u.connRepo.Get(signal.ToConnectionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, signal.ToConnectionID)
	}

	if target.State != models.SessionJoined || target.RoomID != from.RoomID {
		return fmt.Errorf("%w: %s", ErrCrossRoom, signal.ToConnectionID)
	}

	switch msg.Type {
	case events.TypeOfferSignal:
		u.handshakeRepo.Offered(from.ID, target.ID)
	case events.TypeReturnSignal:
		if !u.handshakeRepo.Answered(target.ID, from.ID) {
			slog.Debug(
				"return-signal without recorded offer",
				slog.String(constant.ConnectionID, from.ID.String()),
				slog.String(constant.PeerID, target.ID.String()),
			)
		}
	}

	out, err := events.New(msg.Type, events.SignalEvent{
		FromConnectionID: from.ID,
		ToConnectionID:   target.ID,
		Payload:          signal.Payload,
	})
	if err != nil {
		return fmt.Errorf("build %s: %w", msg.Type, err)
	}

	u.out.send(target.ID, out)

	return nil
}

func (u *relayUsecase) RelayRoomEvent(ctx context.Context, from *memory.Connection, msg events.Message) error {
	if from.State != models.SessionJoined {
		return ErrNotJoined
	}

	var roomEvent events.RoomEvent
	if err := msg.Decode(&roomEvent); err != nil {
		return err
	}

	if roomEvent.RoomID != "" && roomEvent.RoomID != from.RoomID {
		return fmt.Errorf("%w: %s for room %q", ErrCrossRoom, msg.Type, roomEvent.RoomID)
	}

	out, err := events.New(msg.Type, events.RoomBroadcastEvent{
		RoomID:           from.RoomID,
		FromConnectionID: from.ID,
		UserID:           from.Participant.UserID,
		DisplayName:      from.Participant.DisplayName,
		Payload:          roomEvent.Payload,
	})
	if err != nil {
		return fmt.Errorf("build %s: %w", msg.Type, err)
	}

	// чат получают все, включая отправителя; реакции и поднятая рука - только остальные
	exclude := from.ID
	if msg.Type == events.TypeChatMessage {
		exclude = ""
	}

	u.out.fanOut(u.roomRepo.Roster(from.RoomID, exclude), out)

	return nil
}
