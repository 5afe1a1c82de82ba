package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

var ErrUnsupportedMedia = errors.New("media handle carries no local track")

// Config WebRTC configuration
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// TrackSource is implemented by media handles that can be sent.
type TrackSource interface {
	Track() webrtc.TrackLocal
}

// TransportFactory builds pion peer connections sharing one API instance.
type TransportFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *zap.SugaredLogger
}

func NewTransportFactory(cfg Config, logger *zap.SugaredLogger) (*TransportFactory, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}

	return &TransportFactory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithSettingEngine(settingEngine),
		),
		config: webrtc.Configuration{
			ICEServers:   cfg.ICEServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
		},
		logger: logger,
	}, nil
}

func (f *TransportFactory) NewTransport(ctx context.Context, peer domain.ParticipantID) (ports.PeerTransport, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	t := &PeerTransport{
		pc:     pc,
		peer:   peer,
		logger: f.logger.With("peer_id", peer),
	}
	pc.OnICECandidate(t.handleICECandidate)
	pc.OnTrack(t.handleTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Infow("peer connection state changed", "connection_state", state)
	})
	return t, nil
}

// PeerTransport adapts a pion PeerConnection to ports.PeerTransport.
type PeerTransport struct {
	pc     *webrtc.PeerConnection
	peer   domain.ParticipantID
	logger *zap.SugaredLogger

	mu          sync.Mutex
	onCandidate func(domain.Candidate)
	onMedia     func(ports.MediaHandle)
	videoSender *webrtc.RTPSender
}

func (t *PeerTransport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("failed to set local offer: %w", err)
	}
	return fromPion(offer), nil
}

func (t *PeerTransport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("failed to set local answer: %w", err)
	}
	return fromPion(answer), nil
}

func (t *PeerTransport) SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	remote := webrtc.SessionDescription{Type: webrtc.NewSDPType(string(desc.Type)), SDP: desc.SDP}
	if err := t.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("failed to set remote %s: %w", desc.Type, err)
	}
	return nil
}

func (t *PeerTransport) AddCandidate(ctx context.Context, candidate domain.Candidate) error {
	if t.pc.RemoteDescription() == nil {
		return domain.ErrPrematureCandidate
	}
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	})
}

func (t *PeerTransport) OnLocalCandidate(fn func(domain.Candidate)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCandidate = fn
}

func (t *PeerTransport) OnMedia(fn func(ports.MediaHandle)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMedia = fn
}

func (t *PeerTransport) AddTrack(media ports.MediaHandle) error {
	src, ok := media.(TrackSource)
	if !ok {
		return ErrUnsupportedMedia
	}
	sender, err := t.pc.AddTrack(src.Track())
	if err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	t.mu.Lock()
	t.videoSender = sender
	t.mu.Unlock()

	go t.readSenderRTCP(sender)
	return nil
}

// ReplaceVideoTrack swaps the outbound track without renegotiation.
func (t *PeerTransport) ReplaceVideoTrack(media ports.MediaHandle) error {
	t.mu.Lock()
	sender := t.videoSender
	t.mu.Unlock()
	if sender == nil {
		return t.AddTrack(media)
	}

	src, ok := media.(TrackSource)
	if !ok {
		return ErrUnsupportedMedia
	}
	if err := sender.ReplaceTrack(src.Track()); err != nil {
		return fmt.Errorf("failed to replace track: %w", err)
	}
	return nil
}

func (t *PeerTransport) Close() error {
	return t.pc.Close()
}

func (t *PeerTransport) handleICECandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return // gathering complete
	}
	t.mu.Lock()
	fn := t.onCandidate
	t.mu.Unlock()
	if fn == nil {
		return
	}

	init := c.ToJSON()
	fn(domain.Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})
}

func (t *PeerTransport) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	t.logger.Infow("remote track started",
		"track_id", track.ID(),
		"codec", track.Codec().MimeType,
		"ssrc", track.SSRC(),
	)
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}

	// Ask for a keyframe so the first frame is decodable.
	if err := t.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
	}); err != nil {
		t.logger.Debugw("failed to send PLI", "error", err)
	}

	remote := newRemoteMedia(track)
	go remote.read(t.logger, func() {
		t.mu.Lock()
		fn := t.onMedia
		t.mu.Unlock()
		if fn != nil {
			fn(remote)
		}
	})
}

// readSenderRTCP drains RTCP for an outbound track so interceptors keep
// running, and logs keyframe requests from the viewer.
func (t *PeerTransport) readSenderRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				t.logger.Debugw("keyframe requested")
			}
		}
	}
}

func fromPion(desc webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPType(desc.Type.String()), SDP: desc.SDP}
}

var _ ports.TransportFactory = (*TransportFactory)(nil)
var _ ports.PeerTransport = (*PeerTransport)(nil)
