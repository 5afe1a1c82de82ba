package webrtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// MediaStats counts what arrived on a remote track.
type MediaStats struct {
	Packets uint64
	Frames  uint64
	Bytes   uint64
}

// RemoteMedia is an inbound video track. It becomes observable once the
// first complete frame has arrived.
type RemoteMedia struct {
	track *webrtc.TrackRemote

	packets  atomic.Uint64
	frames   atomic.Uint64
	bytes    atomic.Uint64
	released atomic.Bool
}

func newRemoteMedia(track *webrtc.TrackRemote) *RemoteMedia {
	return &RemoteMedia{track: track}
}

func (m *RemoteMedia) ID() string { return m.track.ID() }

func (m *RemoteMedia) Codec() string { return m.track.Codec().MimeType }

// Release stops counting; the track itself ends with its peer connection.
func (m *RemoteMedia) Release() { m.released.Store(true) }

func (m *RemoteMedia) Stats() MediaStats {
	return MediaStats{
		Packets: m.packets.Load(),
		Frames:  m.frames.Load(),
		Bytes:   m.bytes.Load(),
	}
}

// read consumes RTP until the track ends. ready fires once, on the first
// packet that closes a frame.
func (m *RemoteMedia) read(logger *zap.SugaredLogger, ready func()) {
	var first sync.Once
	for {
		pkt, _, err := m.track.ReadRTP()
		if err != nil {
			logger.Debugw("remote track ended", "track_id", m.track.ID(), "error", err)
			return
		}
		if m.observe(pkt) {
			first.Do(ready)
		}
	}
}

// observe records pkt and reports whether it completed a frame.
func (m *RemoteMedia) observe(pkt *rtp.Packet) bool {
	if m.released.Load() {
		return false
	}
	m.packets.Add(1)
	m.bytes.Add(uint64(len(pkt.Payload)))
	if pkt.Marker {
		m.frames.Add(1)
		return true
	}
	return false
}

// LocalMedia is an outbound track fed by a capture device.
type LocalMedia struct {
	id      string
	track   webrtc.TrackLocal
	release func()
	once    sync.Once
}

func NewLocalMedia(id string, track webrtc.TrackLocal, release func()) *LocalMedia {
	return &LocalMedia{id: id, track: track, release: release}
}

func (m *LocalMedia) ID() string { return m.id }

func (m *LocalMedia) Track() webrtc.TrackLocal { return m.track }

func (m *LocalMedia) Release() {
	m.once.Do(func() {
		if m.release != nil {
			m.release()
		}
	})
}
