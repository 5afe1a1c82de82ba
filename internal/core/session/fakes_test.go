package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
)

type fakeMedia struct {
	id       string
	released bool
}

func (m *fakeMedia) ID() string { return m.id }
func (m *fakeMedia) Release()   { m.released = true }

type fakeTransport struct {
	mu sync.Mutex

	peer       domain.ParticipantID
	remote     []domain.SessionDescription
	applied    []string
	premature  map[string]int
	broken     map[string]bool
	offers     int
	answers    int
	closed     bool
	tracks     []ports.MediaHandle
	replaced   []ports.MediaHandle
	replaceErr error

	onCandidate func(domain.Candidate)
	onMedia     func(ports.MediaHandle)
}

func newFakeTransport(peer domain.ParticipantID) *fakeTransport {
	return &fakeTransport{
		peer:      peer,
		premature: make(map[string]int),
		broken:    make(map[string]bool),
	}
}

func (t *fakeTransport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offers++
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", t.offers)}, nil
}

func (t *fakeTransport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers++
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", t.answers)}, nil
}

func (t *fakeTransport) SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote = append(t.remote, desc)
	return nil
}

func (t *fakeTransport) AddCandidate(ctx context.Context, c domain.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.remote) == 0 {
		return domain.ErrPrematureCandidate
	}
	if t.premature[c.Candidate] > 0 {
		t.premature[c.Candidate]--
		return domain.ErrPrematureCandidate
	}
	if t.broken[c.Candidate] {
		return fmt.Errorf("malformed candidate %q", c.Candidate)
	}
	t.applied = append(t.applied, c.Candidate)
	return nil
}

func (t *fakeTransport) OnLocalCandidate(fn func(domain.Candidate)) { t.onCandidate = fn }
func (t *fakeTransport) OnMedia(fn func(ports.MediaHandle))        { t.onMedia = fn }

func (t *fakeTransport) AddTrack(media ports.MediaHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = append(t.tracks, media)
	return nil
}

func (t *fakeTransport) ReplaceVideoTrack(media ports.MediaHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.replaceErr != nil {
		return t.replaceErr
	}
	t.replaced = append(t.replaced, media)
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

func (t *fakeTransport) emitCandidate(c string) {
	t.onCandidate(domain.Candidate{Candidate: c})
}

func (t *fakeTransport) emitMedia(id string) {
	t.onMedia(&fakeMedia{id: id})
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (f *fakeFactory) NewTransport(ctx context.Context, peer domain.ParticipantID) (ports.PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newFakeTransport(peer)
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[len(f.transports)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
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

type recordingObserver struct {
	mu     sync.Mutex
	phases map[domain.ParticipantID][]domain.SessionPhase
	media  map[domain.ParticipantID]ports.MediaHandle
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		phases: make(map[domain.ParticipantID][]domain.SessionPhase),
		media:  make(map[domain.ParticipantID]ports.MediaHandle),
	}
}

func (o *recordingObserver) PhaseChanged(peer domain.ParticipantID, phase domain.SessionPhase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases[peer] = append(o.phases[peer], phase)
}

func (o *recordingObserver) MediaReady(peer domain.ParticipantID, media ports.MediaHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.media[peer] = media
}

func candidate(c string) *domain.Candidate {
	return &domain.Candidate{Candidate: c}
}

func offerDesc(sdp string) *domain.SessionDescription {
	return &domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: sdp}
}

func answerDesc(sdp string) *domain.SessionDescription {
	return &domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: sdp}
}
