package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"go.uber.org/zap"
)

// Observer is notified of session progress. Calls are made without any
// session lock held.
type Observer interface {
	PhaseChanged(peer domain.ParticipantID, phase domain.SessionPhase)
	MediaReady(peer domain.ParticipantID, media ports.MediaHandle)
}

type phaseChange struct {
	peer  domain.ParticipantID
	phase domain.SessionPhase
}

// Session drives offer/answer and candidate exchange for one viewer-source
// pair. All phase transitions happen under mu, in arrival order.
type Session struct {
	local     domain.Participant
	transport ports.PeerTransport
	sender    ports.SignalSender
	observer  Observer
	logger    *zap.SugaredLogger
	now       func() time.Time

	// peer is empty while a source offer has not been claimed by a viewer.
	peer   atomic.Value
	closed atomic.Bool

	mu           sync.Mutex
	phase        domain.SessionPhase
	localSet     bool
	remoteSet    bool
	buffer       *CandidateBuffer
	applied      int
	lastActivity time.Time
	media        ports.MediaHandle
	changes      []phaseChange
}

func newSession(local domain.Participant, peer domain.ParticipantID, transport ports.PeerTransport,
	sender ports.SignalSender, observer Observer, logger *zap.SugaredLogger, now func() time.Time) *Session {
	s := &Session{
		local:        local,
		transport:    transport,
		sender:       sender,
		observer:     observer,
		now:          now,
		phase:        domain.PhaseIdle,
		lastActivity: now(),
	}
	s.peer.Store(peer)
	s.logger = logger.With("local_role", local.Role)

	transport.OnLocalCandidate(s.onLocalCandidate)
	transport.OnMedia(s.onMedia)
	return s
}

// ID returns the viewer-source pair this session serves.
func (s *Session) ID() domain.SessionID {
	peer := s.Peer()
	if s.local.Role == domain.RoleViewer {
		return domain.SessionID{Viewer: s.local.ID, Source: peer}
	}
	return domain.SessionID{Viewer: peer, Source: s.local.ID}
}

func (s *Session) Peer() domain.ParticipantID {
	peer, _ := s.peer.Load().(domain.ParticipantID)
	return peer
}

func (s *Session) Transport() ports.PeerTransport {
	return s.transport
}

func (s *Session) bind(peer domain.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer.Store(peer)
	if s.buffer != nil {
		s.buffer.rebind(s.ID())
	}
}

// Offer creates and sends the local offer. Only sources offer; the offer is
// broadcast until a viewer claims the session.
func (s *Session) Offer(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()

	if s.phase == domain.PhaseClosed {
		return domain.ErrStaleSessionEnvelope
	}

	desc, err := s.transport.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	s.localSet = true
	s.remoteSet = false
	s.touch()
	s.setPhase(domain.PhaseDescOffered)

	return s.send(ctx, domain.SignalEnvelope{To: s.Peer(), Description: &desc})
}

// HandleDescription applies a remote offer or answer.
func (s *Session) HandleDescription(ctx context.Context, desc domain.SessionDescription) error {
	s.mu.Lock()
	defer s.unlock()

	if s.phase == domain.PhaseClosed {
		return domain.ErrStaleSessionEnvelope
	}
	s.touch()

	switch desc.Type {
	case domain.SDPTypeOffer:
		return s.acceptOffer(ctx, desc)
	case domain.SDPTypeAnswer:
		return s.acceptAnswer(ctx, desc)
	default:
		s.logger.Warnw("ignoring description with unknown type",
			"session", s.ID().String(),
			"type", desc.Type,
		)
		return nil
	}
}

func (s *Session) acceptOffer(ctx context.Context, desc domain.SessionDescription) error {
	if s.phase != domain.PhaseIdle {
		s.logger.Infow("renegotiating session",
			"session", s.ID().String(),
			"phase", s.phase,
		)
		s.localSet = false
		s.remoteSet = false
	}
	s.setPhase(domain.PhaseDescOffered)

	if err := s.transport.SetRemoteDescription(ctx, desc); err != nil {
		return fmt.Errorf("failed to apply remote offer: %w", err)
	}
	s.remoteSet = true
	s.flush(ctx)

	answer, err := s.transport.CreateAnswer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	s.localSet = true
	s.setPhase(domain.PhaseDescAnswered)

	if err := s.send(ctx, domain.SignalEnvelope{To: s.Peer(), Description: &answer}); err != nil {
		return err
	}
	s.setPhase(domain.PhaseEstablished)
	return nil
}

func (s *Session) acceptAnswer(ctx context.Context, desc domain.SessionDescription) error {
	if s.phase != domain.PhaseDescOffered || !s.localSet {
		s.logger.Infow("ignoring stale answer",
			"session", s.ID().String(),
			"phase", s.phase,
		)
		return nil
	}

	if err := s.transport.SetRemoteDescription(ctx, desc); err != nil {
		return fmt.Errorf("failed to apply remote answer: %w", err)
	}
	s.remoteSet = true
	s.setPhase(domain.PhaseDescAnswered)
	s.flush(ctx)
	s.setPhase(domain.PhaseEstablished)
	return nil
}

// HandleCandidate applies c now if the remote description is set, otherwise
// buffers it until it is.
func (s *Session) HandleCandidate(ctx context.Context, c domain.Candidate) error {
	s.mu.Lock()
	defer s.unlock()

	if s.phase == domain.PhaseClosed {
		return domain.ErrStaleSessionEnvelope
	}
	s.touch()

	if !s.remoteSet {
		s.pending().Push(c)
		return nil
	}
	if s.buffer != nil && s.buffer.Len() > 0 {
		s.pending().Push(c)
		s.flush(ctx)
		return nil
	}
	if !s.apply(ctx, c) {
		s.pending().Push(c)
	}
	return nil
}

// flush must be called with mu held and the remote description set. A
// candidate the transport is not ready for stays at the front of the buffer
// together with everything after it.
func (s *Session) flush(ctx context.Context) {
	if s.buffer == nil {
		return
	}
	candidates := s.buffer.Drain()
	for i, c := range candidates {
		if !s.apply(ctx, c) {
			s.buffer.Requeue(candidates[i:])
			return
		}
	}
	s.buffer.MarkFlushed()
}

// apply reports false when the transport is not ready for c yet. The caller
// keeps c buffered.
func (s *Session) apply(ctx context.Context, c domain.Candidate) bool {
	err := s.transport.AddCandidate(ctx, c)
	switch {
	case err == nil:
		s.applied++
	case errors.Is(err, domain.ErrPrematureCandidate):
		return false
	default:
		s.logger.Warnw("dropping candidate",
			"session", s.ID().String(),
			"error", err,
		)
	}
	return true
}

func (s *Session) pending() *CandidateBuffer {
	if s.buffer == nil {
		s.buffer = NewCandidateBuffer(s.ID())
	}
	return s.buffer
}

// Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.unlock()

	if s.phase == domain.PhaseClosed {
		return nil
	}
	s.closed.Store(true)
	s.setPhase(domain.PhaseClosed)
	s.buffer = nil
	s.media = nil
	return s.transport.Close()
}

func (s *Session) Phase() domain.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Media returns the first inbound media handle once a frame has been seen.
func (s *Session) Media() (ports.MediaHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media, s.media != nil
}

// Ready reports whether signaling completed and media is flowing.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == domain.PhaseEstablished && s.media != nil
}

func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := 0
	if s.buffer != nil {
		pending = s.buffer.Len()
	}
	return domain.SessionInfo{
		ID:                   s.ID(),
		Phase:                s.phase,
		LocalDescriptionSet:  s.localSet,
		RemoteDescriptionSet: s.remoteSet,
		PendingCandidates:    pending,
		AppliedCandidates:    s.applied,
	}
}

// idleSince reports whether the session is still negotiating and has been
// quiet since before cutoff.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == domain.PhaseEstablished || s.phase == domain.PhaseClosed {
		return false
	}
	return s.lastActivity.Before(cutoff)
}

func (s *Session) onLocalCandidate(c domain.Candidate) {
	if s.closed.Load() {
		return
	}
	env := domain.SignalEnvelope{To: s.Peer(), Candidate: &c}
	if err := s.sender.SendSignal(context.Background(), env); err != nil {
		s.logger.Warnw("failed to send local candidate",
			"session", s.ID().String(),
			"error", err,
		)
	}
}

func (s *Session) onMedia(media ports.MediaHandle) {
	s.mu.Lock()
	if s.phase == domain.PhaseClosed || s.media != nil {
		s.mu.Unlock()
		return
	}
	s.media = media
	s.mu.Unlock()

	s.logger.Infow("first media frame received",
		"session", s.ID().String(),
		"media", media.ID(),
	)
	if s.observer != nil {
		s.observer.MediaReady(s.Peer(), media)
	}
}

// send must be called with mu held so outbound descriptions keep phase order.
func (s *Session) send(ctx context.Context, env domain.SignalEnvelope) error {
	if err := s.sender.SendSignal(ctx, env); err != nil {
		return fmt.Errorf("failed to send %s: %w", env.Description.Type, err)
	}
	return nil
}

func (s *Session) touch() {
	s.lastActivity = s.now()
}

func (s *Session) setPhase(phase domain.SessionPhase) {
	if s.phase == phase {
		return
	}
	s.logger.Debugw("session phase changed",
		"session", s.ID().String(),
		"from", s.phase,
		"to", phase,
	)
	s.phase = phase
	s.changes = append(s.changes, phaseChange{peer: s.Peer(), phase: phase})
}

// unlock releases mu and then reports queued phase changes.
func (s *Session) unlock() {
	changes := s.changes
	s.changes = nil
	s.mu.Unlock()

	if s.observer == nil {
		return
	}
	for _, c := range changes {
		s.observer.PhaseChanged(c.peer, c.phase)
	}
}
