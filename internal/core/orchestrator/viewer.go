package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
	"github.com/MeNameek/camerasystem/internal/core/session"

	"go.uber.org/zap"
)

// Viewer keeps one session per source in the room and a single active
// pointer into them. Only the active source is rendered; switching never
// touches the other sessions.
type Viewer struct {
	manager *session.Manager
	sink    ports.RenderSink
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	seq     uint64
	sources []domain.ParticipantID
	active  domain.ParticipantID
	pending domain.ParticipantID
}

func NewViewer(manager *session.Manager, sink ports.RenderSink, logger *zap.SugaredLogger) *Viewer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	v := &Viewer{
		manager: manager,
		sink:    sink,
		logger:  logger,
	}
	manager.SetObserver(v)
	return v
}

// HandleEnvelope forwards to the session manager. Envelopes for retired
// sessions are dropped silently.
func (v *Viewer) HandleEnvelope(ctx context.Context, env domain.SignalEnvelope) error {
	err := v.manager.HandleEnvelope(ctx, env)
	if errors.Is(err, domain.ErrStaleSessionEnvelope) {
		v.logger.Debugw("dropping stale envelope", "from", env.From)
		return nil
	}
	return err
}

// OnMembershipChanged reconciles sessions with the sources in room. A
// snapshot older than one already applied is ignored.
func (v *Viewer) OnMembershipChanged(ctx context.Context, room domain.Room) {
	sources := domain.SourceIDs(room.Members)

	v.mu.Lock()
	if room.Seq != 0 && room.Seq <= v.seq {
		v.mu.Unlock()
		return
	}
	v.seq = room.Seq
	departed := missing(v.sources, sources)
	added := missing(sources, v.sources)
	v.sources = sources
	v.mu.Unlock()

	// Closing a session reports back through PhaseChanged, so the manager
	// is driven without holding mu.
	for _, id := range departed {
		v.manager.Remove(id)
	}
	for _, id := range added {
		if _, err := v.manager.Ensure(ctx, id); err != nil {
			v.logger.Warnw("failed to prepare session", "source", id, "error", err)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending != "" && !contains(sources, v.pending) {
		v.pending = ""
	}
	if v.active != "" && !contains(sources, v.active) {
		v.logger.Infow("active source left, render cleared", "source", v.active)
		v.active = ""
		v.sink.Clear()

		next := v.pending
		if next == "" && len(sources) > 0 {
			next = sources[0]
		}
		if next != "" {
			if err := v.selectLocked(next); err != nil {
				v.logger.Warnw("failed to select replacement source", "source", next, "error", err)
			}
		}
	}
}

// Select makes source the render target once its session is established
// and has produced media. Until then the current output is kept.
func (v *Viewer) Select(source domain.ParticipantID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selectLocked(source)
}

func (v *Viewer) Next() error {
	return v.step(1)
}

func (v *Viewer) Previous() error {
	return v.step(-1)
}

func (v *Viewer) step(delta int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.sources)
	if n == 0 {
		return domain.ErrUnknownSource
	}

	from := v.pending
	if from == "" {
		from = v.active
	}
	idx := indexOf(v.sources, from)

	var next int
	switch {
	case idx < 0 && delta > 0:
		next = 0
	case idx < 0:
		next = n - 1
	default:
		next = ((idx+delta)%n + n) % n
	}
	return v.selectLocked(v.sources[next])
}

func (v *Viewer) Active() domain.ParticipantID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *Viewer) Pending() domain.ParticipantID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending
}

// Sources returns the sources in membership order.
func (v *Viewer) Sources() []domain.ParticipantID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.ParticipantID(nil), v.sources...)
}

func (v *Viewer) PhaseChanged(peer domain.ParticipantID, phase domain.SessionPhase) {
	if phase != domain.PhaseEstablished {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if peer == v.pending {
		v.completePending()
	}
}

func (v *Viewer) MediaReady(peer domain.ParticipantID, media ports.MediaHandle) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case peer == v.pending:
		v.completePending()
	case v.active == "" && v.pending == "" && contains(v.sources, peer):
		v.logger.Infow("auto-selecting first source with media", "source", peer)
		if err := v.selectLocked(peer); err != nil {
			v.logger.Warnw("failed to auto-select source", "source", peer, "error", err)
		}
	}
}

// selectLocked must be called with mu held.
func (v *Viewer) selectLocked(source domain.ParticipantID) error {
	if !contains(v.sources, source) {
		return domain.ErrUnknownSource
	}
	if source == v.active {
		v.pending = ""
		return nil
	}

	if s, ok := v.manager.Get(source); ok && s.Ready() {
		media, _ := s.Media()
		return v.switchTo(source, media)
	}

	v.pending = source
	v.logger.Infow("source selection pending", "source", source, "active", v.active)
	return nil
}

func (v *Viewer) completePending() {
	s, ok := v.manager.Get(v.pending)
	if !ok || !s.Ready() {
		return
	}
	media, _ := s.Media()
	if err := v.switchTo(v.pending, media); err != nil {
		v.logger.Warnw("failed to switch render target", "source", v.pending, "error", err)
	}
}

func (v *Viewer) switchTo(source domain.ParticipantID, media ports.MediaHandle) error {
	if err := v.sink.Attach(source, media); err != nil {
		return err
	}
	v.logger.Infow("render target switched", "from", v.active, "to", source)
	v.active = source
	v.pending = ""
	return nil
}

func contains(ids []domain.ParticipantID, id domain.ParticipantID) bool {
	return indexOf(ids, id) >= 0
}

func indexOf(ids []domain.ParticipantID, id domain.ParticipantID) int {
	if id == "" {
		return -1
	}
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}

// missing returns the ids in a that are not in b, preserving order.
func missing(a, b []domain.ParticipantID) []domain.ParticipantID {
	var out []domain.ParticipantID
	for _, id := range a {
		if !contains(b, id) {
			out = append(out, id)
		}
	}
	return out
}
