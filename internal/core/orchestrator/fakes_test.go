package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
)

type fakeMedia struct {
	mu       sync.Mutex
	id       string
	released bool
}

func (m *fakeMedia) ID() string { return m.id }

func (m *fakeMedia) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
}

func (m *fakeMedia) isReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

type fakeTransport struct {
	mu         sync.Mutex
	remoteSet  bool
	applied    []string
	replaced   []string
	replaceErr error
	closed     bool
	sdp        int

	onCandidate func(domain.Candidate)
	onMedia     func(ports.MediaHandle)
}

func (t *fakeTransport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sdp++
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", t.sdp)}, nil
}

func (t *fakeTransport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sdp++
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", t.sdp)}, nil
}

func (t *fakeTransport) SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteSet = true
	return nil
}

func (t *fakeTransport) AddCandidate(ctx context.Context, c domain.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.remoteSet {
		return domain.ErrPrematureCandidate
	}
	t.applied = append(t.applied, c.Candidate)
	return nil
}

func (t *fakeTransport) OnLocalCandidate(fn func(domain.Candidate)) { t.onCandidate = fn }
func (t *fakeTransport) OnMedia(fn func(ports.MediaHandle))        { t.onMedia = fn }
func (t *fakeTransport) AddTrack(media ports.MediaHandle) error    { return nil }

func (t *fakeTransport) ReplaceVideoTrack(media ports.MediaHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.replaceErr != nil {
		return t.replaceErr
	}
	t.replaced = append(t.replaced, media.ID())
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) appliedCandidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.applied...)
}

func (t *fakeTransport) failReplace(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replaceErr = err
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeFactory struct {
	mu     sync.Mutex
	byPeer map[domain.ParticipantID]*fakeTransport
	all    []*fakeTransport
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{byPeer: make(map[domain.ParticipantID]*fakeTransport)}
}

func (f *fakeFactory) NewTransport(ctx context.Context, peer domain.ParticipantID) (ports.PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTransport{}
	f.byPeer[peer] = t
	f.all = append(f.all, t)
	return t, nil
}

func (f *fakeFactory) transport(peer domain.ParticipantID) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byPeer[peer]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.all)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []domain.SignalEnvelope
}

func (s *fakeSender) SendSignal(ctx context.Context, env domain.SignalEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSender) envelopes() []domain.SignalEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SignalEnvelope(nil), s.sent...)
}

type fakeSink struct {
	mu       sync.Mutex
	attached []domain.ParticipantID
	cleared  int
}

func (s *fakeSink) Attach(source domain.ParticipantID, media ports.MediaHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = append(s.attached, source)
	return nil
}

func (s *fakeSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}

func (s *fakeSink) history() ([]domain.ParticipantID, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ParticipantID(nil), s.attached...), s.cleared
}

type fakeCapture struct {
	mu       sync.Mutex
	err      error
	acquired []*fakeMedia
}

func (c *fakeCapture) Acquire(ctx context.Context, facing domain.Facing) (ports.MediaHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	m := &fakeMedia{id: fmt.Sprintf("%s-%d", facing, len(c.acquired))}
	c.acquired = append(c.acquired, m)
	return m, nil
}
