package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
	"github.com/MeNameek/camerasystem/internal/core/session"

	"go.uber.org/zap"
)

// Source publishes local capture to the room's viewer. It offers whenever a
// viewer is present and nothing is negotiated yet.
type Source struct {
	manager *session.Manager
	capture ports.CaptureDevice
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	seq    uint64
	facing domain.Facing
	media  ports.MediaHandle
	// audience holds the viewers present when the pending offer went out.
	audience []domain.ParticipantID
}

func NewSource(manager *session.Manager, capture ports.CaptureDevice, facing domain.Facing, logger *zap.SugaredLogger) *Source {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if facing == "" {
		facing = domain.FacingUser
	}
	return &Source{
		manager: manager,
		capture: capture,
		facing:  facing,
		logger:  logger,
	}
}

// Start acquires the camera. Capture failures are the only errors meant for
// the user.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.media != nil {
		return nil
	}
	media, err := s.capture.Acquire(ctx, s.facing)
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	if err := s.manager.SetLocalMedia(media); err != nil {
		media.Release()
		return fmt.Errorf("failed to attach capture: %w", err)
	}
	s.media = media
	s.logger.Infow("capture started", "facing", s.facing, "media", media.ID())
	return nil
}

// OnMembershipChanged retires sessions whose viewer left and offers again
// while a viewer is present. A pending offer whose audience has entirely
// left is withdrawn so viewers joining later get a fresh one.
func (s *Source) OnMembershipChanged(ctx context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.Seq != 0 && room.Seq <= s.seq {
		return nil
	}
	s.seq = room.Seq

	for _, peer := range s.manager.Peers() {
		if !room.Contains(peer) {
			s.logger.Infow("viewer left, closing session", "viewer", peer)
			s.manager.Remove(peer)
		}
	}

	if s.manager.Offering() && !anyPresent(room, s.audience) {
		s.manager.WithdrawOffer()
		s.audience = nil
	}

	viewers := domain.ViewerIDs(room.Members)
	if len(viewers) == 0 {
		return nil
	}
	if len(s.manager.Peers()) > 0 || s.manager.Offering() {
		return nil
	}
	if err := s.manager.Offer(ctx); err != nil {
		return fmt.Errorf("failed to offer: %w", err)
	}
	s.audience = viewers
	s.logger.Infow("offered to room", "room", room.Code, "viewers", len(viewers))
	return nil
}

func anyPresent(room domain.Room, ids []domain.ParticipantID) bool {
	for _, id := range ids {
		if room.Contains(id) {
			return true
		}
	}
	return false
}

// Flip switches between the front and back camera without renegotiating.
func (s *Source) Flip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.facing.Toggle()
	media, err := s.capture.Acquire(ctx, next)
	if err != nil {
		return fmt.Errorf("failed to flip camera: %w", err)
	}
	if err := s.manager.SetLocalMedia(media); err != nil {
		media.Release()
		return fmt.Errorf("failed to flip camera: %w", err)
	}

	if s.media != nil {
		s.media.Release()
	}
	s.media = media
	s.facing = next
	s.logger.Infow("camera flipped", "facing", next, "media", media.ID())
	return nil
}

func (s *Source) Facing() domain.Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

func (s *Source) HandleEnvelope(ctx context.Context, env domain.SignalEnvelope) error {
	err := s.manager.HandleEnvelope(ctx, env)
	if errors.Is(err, domain.ErrStaleSessionEnvelope) {
		s.logger.Debugw("dropping stale envelope", "from", env.From)
		return nil
	}
	return err
}

// Close tears down all sessions and releases the camera.
func (s *Source) Close() {
	s.manager.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media != nil {
		s.media.Release()
		s.media = nil
	}
}
