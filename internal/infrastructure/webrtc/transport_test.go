package webrtc

import (
	"context"
	"testing"

	"github.com/MeNameek/camerasystem/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newFactory(t *testing.T) *TransportFactory {
	t.Helper()
	f, err := NewTransportFactory(Config{}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return f
}

func newTransport(t *testing.T, f *TransportFactory, peer domain.ParticipantID) *PeerTransport {
	t.Helper()
	tr, err := f.NewTransport(context.Background(), peer)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr.(*PeerTransport)
}

func testTrack(t *testing.T, streamID string) *LocalMedia {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	require.NoError(t, err)
	return NewLocalMedia(streamID, track, nil)
}

type plainHandle struct{}

func (plainHandle) ID() string { return "plain" }
func (plainHandle) Release()   {}

func TestPeerTransport_CandidateBeforeRemoteDescription(t *testing.T) {
	tr := newTransport(t, newFactory(t), "peer")

	err := tr.AddCandidate(context.Background(), domain.Candidate{Candidate: "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host"})
	assert.ErrorIs(t, err, domain.ErrPrematureCandidate)
}

func TestPeerTransport_OfferAnswer(t *testing.T) {
	f := newFactory(t)
	source := newTransport(t, f, "viewer")
	viewer := newTransport(t, f, "source")
	ctx := context.Background()

	require.NoError(t, source.AddTrack(testTrack(t, "front")))

	offer, err := source.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=video")

	require.NoError(t, viewer.SetRemoteDescription(ctx, offer))
	answer, err := viewer.CreateAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SDPTypeAnswer, answer.Type)
	require.NoError(t, source.SetRemoteDescription(ctx, answer))

	mid := "0"
	idx := uint16(0)
	err = viewer.AddCandidate(ctx, domain.Candidate{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
	assert.NoError(t, err)
}

func TestPeerTransport_ReplaceVideoTrack(t *testing.T) {
	tr := newTransport(t, newFactory(t), "viewer")

	// Without a sender yet, replacing adds the track.
	require.NoError(t, tr.ReplaceVideoTrack(testTrack(t, "front")))
	require.NotNil(t, tr.videoSender)
	sender := tr.videoSender

	require.NoError(t, tr.ReplaceVideoTrack(testTrack(t, "back")))
	assert.Same(t, sender, tr.videoSender)
	assert.Equal(t, "back", sender.Track().StreamID())

	assert.ErrorIs(t, tr.AddTrack(plainHandle{}), ErrUnsupportedMedia)
	assert.ErrorIs(t, tr.ReplaceVideoTrack(plainHandle{}), ErrUnsupportedMedia)
}

func TestPeerTransport_SetRemoteDescriptionRejectsGarbage(t *testing.T) {
	tr := newTransport(t, newFactory(t), "peer")
	err := tr.SetRemoteDescription(context.Background(), domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "garbage"})
	assert.Error(t, err)
}

func TestRemoteMedia_ObserveCountsFrames(t *testing.T) {
	m := &RemoteMedia{}

	assert.False(t, m.observe(&rtp.Packet{Payload: make([]byte, 100)}))
	assert.True(t, m.observe(&rtp.Packet{Header: rtp.Header{Marker: true}, Payload: make([]byte, 50)}))
	assert.Equal(t, MediaStats{Packets: 2, Frames: 1, Bytes: 150}, m.Stats())

	m.Release()
	assert.False(t, m.observe(&rtp.Packet{Header: rtp.Header{Marker: true}}))
	assert.Equal(t, uint64(2), m.Stats().Packets)
}

func TestLocalMedia_ReleaseOnce(t *testing.T) {
	calls := 0
	m := NewLocalMedia("cam", nil, func() { calls++ })
	m.Release()
	m.Release()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "cam", m.ID())
}
