package client

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/domain/models"
)

const dataChannelLabel = "meetsignal"

type pionPeer struct {
	remote models.ConnectionID
	name   string
	conn   *webrtc.PeerConnection
}

// NewPionFactory creates data-channel peers. name is sent to the remote side
// once the channel opens.
func NewPionFactory(iceServers []webrtc.ICEServer, name string) PeerFactory {
	return func(remote models.ConnectionID, cb PeerCallbacks) (Peer, error) {
		pc, err := webrtc.NewPeerConnection(
			webrtc.Configuration{
				ICEServers: iceServers,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}

		p := &pionPeer{remote: remote, name: name, conn: pc}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil || cb.OnICECandidate == nil {
				return
			}

			raw, err := json.Marshal(c.ToJSON())
			if err != nil {
				slog.Error("marshal ice candidate", slog.Any(constant.Error, err))
				return
			}

			cb.OnICECandidate(raw)
		})

		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			slog.Debug(
				"peer connection state",
				slog.String(constant.PeerID, remote.String()),
				slog.String(constant.State, state.String()),
			)

			switch state {
			case webrtc.PeerConnectionStateConnected:
				if cb.OnConnected != nil {
					cb.OnConnected()
				}
			case webrtc.PeerConnectionStateFailed:
				if cb.OnFailed != nil {
					cb.OnFailed()
				}
			default:
			}
		})

		pc.OnDataChannel(p.bindDataChannel)

		return p, nil
	}
}

func (p *pionPeer) bindDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		if err := dc.SendText("hello from " + p.name); err != nil {
			slog.Warn("send greeting", slog.Any(constant.Error, err))
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		slog.Info(
			"data channel message",
			slog.String(constant.PeerID, p.remote.String()),
			slog.String("text", string(msg.Data)),
		)
	})
}

func (p *pionPeer) CreateOffer() (json.RawMessage, error) {
	dc, err := p.conn.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	p.bindDataChannel(dc)

	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	if err := p.conn.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	return json.Marshal(p.conn.LocalDescription())
}

func (p *pionPeer) AcceptOffer(payload json.RawMessage) (json.RawMessage, error) {
	if err := p.setRemote(payload, webrtc.SDPTypeOffer); err != nil {
		return nil, err
	}

	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}

	if err := p.conn.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	return json.Marshal(p.conn.LocalDescription())
}

func (p *pionPeer) AcceptAnswer(payload json.RawMessage) error {
	return p.setRemote(payload, webrtc.SDPTypeAnswer)
}

func (p *pionPeer) setRemote(payload json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("decode session description: %w", err)
	}

	if desc.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedSignal, desc.Type, want)
	}

	if err := p.conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	return nil
}

func (p *pionPeer) AddICECandidate(payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return fmt.Errorf("decode ice candidate: %w", err)
	}

	return p.conn.AddICECandidate(candidate)
}

func (p *pionPeer) Close() error {
	return p.conn.Close()
}
