package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/client"
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
)

var (
	flagJoinServer string
	flagJoinRoom   string
	flagJoinName   string
	flagJoinUser   string
	flagJoinMic    bool
	flagJoinCamera bool
	flagJoinDebug  bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room as a headless participant",
	Long: `Join a room and open a WebRTC data channel to every other participant.

Lines typed on stdin are sent as chat messages. Commands:
  /mic     toggle microphone state
  /camera  toggle camera state
  /hand    raise hand

Examples:
  meetsignal join --room standup --name Alice
  meetsignal join --server wss://meet.example.org/ws --room standup --name Bob`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom()
	},
}

func joinRoom() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	setupLogger(flagJoinDebug)

	user := flagJoinUser
	if user == "" {
		user = uuid.NewString()
	}

	name := flagJoinName
	if name == "" {
		name = user
	}

	iceServers := fetchICEServers(ctx)

	transport, err := client.Dial(ctx, flagJoinServer)
	if err != nil {
		return err
	}
	defer transport.Close()

	session := client.NewSession(
		client.SessionConfig{
			RoomID:      flagJoinRoom,
			UserID:      user,
			DisplayName: name,
			MediaState:  models.MediaState{Mic: flagJoinMic, Camera: flagJoinCamera},
			OnPeerState: func(peer models.ConnectionID, state models.HandshakeState) {
				slog.Info(
					"peer handshake",
					slog.String(constant.PeerID, peer.String()),
					slog.String(constant.State, state.String()),
				)
			},
			OnPeerLeft: func(peer models.ConnectionID) {
				slog.Info("peer left", slog.String(constant.PeerID, peer.String()))
			},
			OnRoomEvent: logRoomEvent,
		},
		transport,
		client.NewPionFactory(iceServers, name),
	)

	go readCommands(session, models.MediaState{Mic: flagJoinMic, Camera: flagJoinCamera})

	slog.Info(
		"joining room",
		slog.String(constant.RoomID, flagJoinRoom),
		slog.String(constant.UserID, user),
		slog.String(constant.UserName, name),
	)

	if err := session.Run(ctx); err != nil {
		if errors.Is(err, client.ErrTransportClosed) {
			return fmt.Errorf("server closed the connection")
		}
		return err
	}

	return nil
}

// fetchICEServers falls back to public STUN when the server has no ICE endpoint.
func fetchICEServers(ctx context.Context) []webrtc.ICEServer {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	servers, err := client.FetchICEServers(reqCtx, flagJoinServer)
	if err != nil {
		slog.Warn("fetch ice servers, using default STUN", slog.Any(constant.Error, err))
		return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	return servers
}

func readCommands(session *client.Session, media models.MediaState) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		var ok bool
		switch line {
		case "":
			continue
		case "/mic":
			media.Mic = !media.Mic
			ok = session.ToggleMedia(media)
		case "/camera":
			media.Camera = !media.Camera
			ok = session.ToggleMedia(media)
		case "/hand":
			ok = session.RaiseHand(json.RawMessage(`{"raised":true}`))
		default:
			payload, err := json.Marshal(map[string]string{"text": line})
			if err != nil {
				continue
			}
			ok = session.Chat(payload)
		}

		if !ok {
			return
		}
	}
}

func logRoomEvent(msg events.Message) {
	switch msg.Type {
	case events.TypeMediaToggle, events.TypeMediaAck:
		var ev events.MediaStateEvent
		if err := msg.Decode(&ev); err != nil {
			return
		}
		slog.Info(
			"media state",
			slog.String(constant.UserID, ev.UserID),
			slog.Bool("mic", ev.Mic),
			slog.Bool("camera", ev.Camera),
			slog.Bool("screen_sharing", ev.ScreenSharing),
		)

	default:
		var ev events.RoomBroadcastEvent
		if err := msg.Decode(&ev); err != nil {
			return
		}
		slog.Info(
			msg.Type,
			slog.String(constant.UserName, ev.DisplayName),
			slog.String("payload", string(ev.Payload)),
		)
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagJoinServer, "server", "s", "ws://localhost:3000/ws", "Signaling server websocket URL")
	joinCmd.Flags().StringVarP(&flagJoinRoom, "room", "r", "", "Room to join")
	joinCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "Display name")
	joinCmd.Flags().StringVarP(&flagJoinUser, "user", "u", "", "User id, random when empty")
	joinCmd.Flags().BoolVar(&flagJoinMic, "mic", false, "Announce microphone as on")
	joinCmd.Flags().BoolVar(&flagJoinCamera, "camera", false, "Announce camera as on")
	joinCmd.Flags().BoolVar(&flagJoinDebug, "debug", false, "Debug logging")

	_ = joinCmd.MarkFlagRequired("room")
}
