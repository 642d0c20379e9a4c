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

type PresenceUsecase interface {
	// AnnounceJoin sends user-joined for p to every other member of the room.
	AnnounceJoin(ctx context.Context, roomID string, p models.Participant) error

	// SendRoster answers the joiner with the members that joined before it.
	SendRoster(ctx context.Context, roomID string, p models.Participant, roster []models.Participant) error

	// AnnounceLeave notifies the remaining members that p is gone.
	AnnounceLeave(ctx context.Context, roomID string, p models.Participant) error

	// BroadcastMediaState relays p's media flags to the other members.
	BroadcastMediaState(ctx context.Context, roomID string, p models.Participant) error
}

type presenceUsecase struct {
	roomRepo memory.RoomRepository
	out      *outbox

	mediaEcho bool
}

func newPresenceUsecase(roomRepo memory.RoomRepository, out *outbox, mediaEcho bool) *presenceUsecase {
	return &presenceUsecase{
		roomRepo:  roomRepo,
		out:       out,
		mediaEcho: mediaEcho,
	}
}

func (u *presenceUsecase) AnnounceJoin(ctx context.Context, roomID string, p models.Participant) error {
	msg, err := events.New(events.TypeUserJoined, p)
	if err != nil {
		return fmt.Errorf("build user-joined: %w", err)
	}

	delivered := u.out.fanOut(u.roomRepo.Roster(roomID, p.ConnectionID), msg)

	slog.Info(
		"participant joined",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.ConnectionID, p.ConnectionID.String()),
		slog.String(constant.UserID, p.UserID),
		slog.Int("notified", delivered),
	)

	return nil
}

func (u *presenceUsecase) SendRoster(ctx context.Context, roomID string, p models.Participant, roster []models.Participant) error {
	if roster == nil {
		roster = []models.Participant{}
	}

	msg, err := events.New(events.TypeAllUsers, events.RosterEvent{RoomID: roomID, Users: roster})
	if err != nil {
		return fmt.Errorf("build all-users: %w", err)
	}

	u.out.send(p.ConnectionID, msg)

	return nil
}

func (u *presenceUsecase) AnnounceLeave(ctx context.Context, roomID string, p models.Participant) error {
	msg, err := events.New(events.TypeUserLeft, events.UserLeftEvent{
		ConnectionID: p.ConnectionID,
		UserID:       p.UserID,
	})
	if err != nil {
		return fmt.Errorf("build user-left: %w", err)
	}

	delivered := u.out.fanOut(u.roomRepo.Roster(roomID, p.ConnectionID), msg)

	slog.Info(
		"participant left",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.ConnectionID, p.ConnectionID.String()),
		slog.String(constant.UserID, p.UserID),
		slog.Int("notified", delivered),
	)

	return nil
}

func (u *presenceUsecase) BroadcastMediaState(ctx context.Context, roomID string, p models.Participant) error {
	state := events.MediaStateEvent{
		ConnectionID: p.ConnectionID,
		UserID:       p.UserID,
		MediaState:   p.MediaState,
	}

	msg, err := events.New(events.TypeMediaToggle, state)
	if err != nil {
		return fmt.Errorf("build media-toggle: %w", err)
	}

	u.out.fanOut(u.roomRepo.Roster(roomID, p.ConnectionID), msg)

	if u.mediaEcho {
		ack, err := events.New(events.TypeMediaAck, state)
		if err != nil {
			return fmt.Errorf("build media-ack: %w", err)
		}

		u.out.send(p.ConnectionID, ack)
	}

	return nil
}
