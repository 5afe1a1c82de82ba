package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"go.uber.org/zap"
)

const (
	DefaultIdleTimeout      = 2 * time.Minute
	DefaultEvictionInterval = 15 * time.Second
)

type Options struct {
	// IdleTimeout bounds how long a session may stay short of established
	// without any activity. Zero disables eviction.
	IdleTimeout      time.Duration
	EvictionInterval time.Duration
	Observer         Observer
	Logger           *zap.SugaredLogger
	Clock            func() time.Time
}

func DefaultOptions() Options {
	return Options{
		IdleTimeout:      DefaultIdleTimeout,
		EvictionInterval: DefaultEvictionInterval,
	}
}

// Manager owns every session of one endpoint, keyed by the remote
// participant. Sessions are created lazily on first sight of a peer and never
// recreated per message.
type Manager struct {
	local   domain.Participant
	factory ports.TransportFactory
	sender  ports.SignalSender
	opts    Options
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[domain.ParticipantID]*Session
	// unbound is a source offer not yet claimed by a viewer.
	unbound *Session
	retired map[domain.ParticipantID]struct{}
	media   ports.MediaHandle
}

func New(local domain.Participant, factory ports.TransportFactory, sender ports.SignalSender, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.EvictionInterval <= 0 {
		opts.EvictionInterval = DefaultEvictionInterval
	}
	return &Manager{
		local:    local,
		factory:  factory,
		sender:   sender,
		opts:     opts,
		logger:   opts.Logger.With("participant_id", local.ID),
		sessions: make(map[domain.ParticipantID]*Session),
		retired:  make(map[domain.ParticipantID]struct{}),
	}
}

// SetObserver replaces the observer for sessions created from now on.
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Observer = o
}

// HandleEnvelope feeds an inbound envelope to the session it belongs to.
// The description is processed before the candidate.
func (m *Manager) HandleEnvelope(ctx context.Context, env domain.SignalEnvelope) error {
	if env.From == "" || env.From == m.local.ID || env.Empty() {
		return nil
	}
	if env.Directed() && env.To != m.local.ID {
		return nil
	}

	s, err := m.resolve(ctx, env)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}

	if env.Description != nil {
		if err := s.HandleDescription(ctx, *env.Description); err != nil {
			return err
		}
	}
	if env.Candidate != nil {
		if err := s.HandleCandidate(ctx, *env.Candidate); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) resolve(ctx context.Context, env domain.SignalEnvelope) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, gone := m.retired[env.From]; gone {
		return nil, domain.ErrStaleSessionEnvelope
	}
	if s, ok := m.sessions[env.From]; ok {
		return s, nil
	}

	if m.local.Role == domain.RoleViewer {
		return m.create(ctx, env.From)
	}

	// Sources bind the pending offer to the first viewer that answers it or
	// sends a candidate directed at us; the viewer may gather candidates
	// before its answer reaches us. Offers and candidates broadcast by other
	// sources land here too and are not ours.
	if !claimsOffer(env) {
		return nil, nil
	}
	if m.unbound == nil {
		return nil, domain.ErrStaleSessionEnvelope
	}
	s := m.unbound
	m.unbound = nil
	s.bind(env.From)
	m.sessions[env.From] = s
	m.logger.Infow("source session bound to viewer", "viewer", env.From)
	return s, nil
}

func claimsOffer(env domain.SignalEnvelope) bool {
	if env.Description != nil {
		return env.Description.Type == domain.SDPTypeAnswer
	}
	return env.Candidate != nil && env.Directed()
}

// create must be called with mu held.
func (m *Manager) create(ctx context.Context, peer domain.ParticipantID) (*Session, error) {
	transport, err := m.factory.NewTransport(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %s: %w", peer, err)
	}
	if m.media != nil {
		if err := transport.AddTrack(m.media); err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("failed to attach local media: %w", err)
		}
	}

	s := newSession(m.local, peer, transport, m.sender, m.opts.Observer, m.logger, m.opts.Clock)
	if peer != "" {
		m.sessions[peer] = s
	}
	m.logger.Debugw("session created", "session", s.ID().String())
	return s, nil
}

// Ensure returns the session for peer, creating it if needed.
func (m *Manager) Ensure(ctx context.Context, peer domain.ParticipantID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, gone := m.retired[peer]; gone {
		return nil, domain.ErrStaleSessionEnvelope
	}
	if s, ok := m.sessions[peer]; ok {
		return s, nil
	}
	return m.create(ctx, peer)
}

func (m *Manager) Get(peer domain.ParticipantID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[peer]
	return s, ok
}

// Remove closes the session with peer and remembers the peer as retired so
// late envelopes from it are reported stale.
func (m *Manager) Remove(peer domain.ParticipantID) {
	m.mu.Lock()
	s, ok := m.sessions[peer]
	delete(m.sessions, peer)
	m.retired[peer] = struct{}{}
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := s.Close(); err != nil {
		m.logger.Warnw("failed to close session", "session", s.ID().String(), "error", err)
	}
	m.logger.Infow("session retired", "peer", peer)
}

// Peers returns the ids of all peers with a bound session, sorted.
func (m *Manager) Peers() []domain.ParticipantID {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]domain.ParticipantID, 0, len(m.sessions))
	for id := range m.sessions {
		peers = append(peers, id)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// Sessions returns a snapshot of every session, including an unbound offer.
func (m *Manager) Sessions() []domain.SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions)+1)
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	if m.unbound != nil {
		sessions = append(sessions, m.unbound)
	}
	m.mu.Unlock()

	infos := make([]domain.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID.String() < infos[j].ID.String() })
	return infos
}

// Offering reports whether a source offer is waiting for a viewer.
func (m *Manager) Offering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unbound != nil
}

// Offer starts a new broadcast offer from a source. It is a no-op while a
// previous offer is still unclaimed.
func (m *Manager) Offer(ctx context.Context) error {
	if m.local.Role != domain.RoleSource {
		return fmt.Errorf("only sources offer: %w", domain.ErrInvalidRole)
	}

	m.mu.Lock()
	if m.unbound != nil {
		m.mu.Unlock()
		return nil
	}
	s, err := m.create(ctx, "")
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.unbound = s
	m.mu.Unlock()

	if err := s.Offer(ctx); err != nil {
		m.mu.Lock()
		if m.unbound == s {
			m.unbound = nil
		}
		m.mu.Unlock()
		_ = s.Close()
		return err
	}
	return nil
}

// WithdrawOffer closes a source offer nobody claimed. It reports whether
// there was one.
func (m *Manager) WithdrawOffer() bool {
	m.mu.Lock()
	s := m.unbound
	m.unbound = nil
	m.mu.Unlock()

	if s == nil {
		return false
	}
	if err := s.Close(); err != nil {
		m.logger.Warnw("failed to close withdrawn offer", "session", s.ID().String(), "error", err)
	}
	m.logger.Infow("unclaimed offer withdrawn")
	return true
}

// SetLocalMedia swaps the outbound video of existing transports and attaches
// media to future ones. If any swap fails, transports already swapped go back
// to the previous media and the previous media stays current.
func (m *Manager) SetLocalMedia(media ports.MediaHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]*Session, 0, len(m.sessions)+1)
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	if m.unbound != nil {
		sessions = append(sessions, m.unbound)
	}

	for i, s := range sessions {
		err := s.Transport().ReplaceVideoTrack(media)
		if err == nil {
			continue
		}
		if m.media != nil {
			for _, done := range sessions[:i] {
				if rerr := done.Transport().ReplaceVideoTrack(m.media); rerr != nil {
					m.logger.Warnw("failed to restore outbound video",
						"session", done.ID().String(),
						"error", rerr,
					)
				}
			}
		}
		return fmt.Errorf("failed to replace outbound video of %s: %w", s.ID().String(), err)
	}
	m.media = media
	return nil
}

// EvictIdle closes sessions that have not reached established and saw no
// activity for the idle timeout. It returns the number of sessions closed.
func (m *Manager) EvictIdle(now time.Time) int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	var stale []*Session
	for peer, s := range m.sessions {
		if s.idleSince(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, peer)
		}
	}
	if m.unbound != nil && m.unbound.idleSince(cutoff) {
		stale = append(stale, m.unbound)
		m.unbound = nil
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.logger.Infow("evicting idle session",
			"session", s.ID().String(),
			"phase", s.Phase(),
		)
		if err := s.Close(); err != nil {
			m.logger.Warnw("failed to close session", "session", s.ID().String(), "error", err)
		}
	}
	return len(stale)
}

// Run evicts idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.opts.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.opts.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle(m.opts.Clock())
		}
	}
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions)+1)
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	if m.unbound != nil {
		sessions = append(sessions, m.unbound)
	}
	m.sessions = make(map[domain.ParticipantID]*Session)
	m.unbound = nil
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
