package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"go.uber.org/zap"
)

const (
	defaultCreateAttempts = 8
	membershipQueueSize   = 256
)

type RelayOptions struct {
	Codes          *RoomCodeGenerator
	Mirror         ports.PresenceMirror
	Directory      ports.RoomDirectory
	Sinks          []ports.MembershipSink
	Metrics        ports.RelayMetrics
	ReservationTTL time.Duration
	Logger         *zap.SugaredLogger
}

// MessageRelay routes signaling envelopes between members of a room and
// broadcasts membership snapshots. It never interprets envelope payloads.
type MessageRelay struct {
	registry  *RoomRegistry
	deliverer ports.Deliverer
	codes     *RoomCodeGenerator
	mirror    ports.PresenceMirror
	directory ports.RoomDirectory
	sinks     []ports.MembershipSink
	metrics   ports.RelayMetrics
	ttl       time.Duration

	events chan domain.MembershipEvent
	logger *zap.SugaredLogger
}

func NewMessageRelay(registry *RoomRegistry, deliverer ports.Deliverer, opts RelayOptions) *MessageRelay {
	if opts.Codes == nil {
		opts.Codes = NewRoomCodeGenerator(DefaultRoomCodeLength, DefaultRoomCodeAlphabet)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = 24 * time.Hour
	}

	sinks := opts.Sinks
	if opts.Mirror != nil {
		sinks = append([]ports.MembershipSink{opts.Mirror}, sinks...)
	}

	m := &MessageRelay{
		registry:  registry,
		deliverer: deliverer,
		codes:     opts.Codes,
		mirror:    opts.Mirror,
		directory: opts.Directory,
		sinks:     sinks,
		metrics:   opts.Metrics,
		ttl:       opts.ReservationTTL,
		events:    make(chan domain.MembershipEvent, membershipQueueSize),
		logger:    opts.Logger,
	}
	registry.Subscribe(m.onMembership)
	return m
}

// Run forwards membership events to the configured sinks until ctx is done.
func (m *MessageRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.events:
			for _, sink := range m.sinks {
				if err := sink.PublishMembership(ctx, event); err != nil {
					m.logger.Warnw("failed to publish membership",
						"room", event.Code,
						"seq", event.Seq,
						"error", err,
					)
				}
			}
		}
	}
}

// Create opens a room with creator as first member. An empty code asks the
// relay to pick a fresh one; a live code fails with domain.ErrDuplicateRoomCode.
func (m *MessageRelay) Create(ctx context.Context, code domain.RoomCode, creator domain.Participant) (domain.Room, error) {
	if code != "" {
		return m.createWithCode(ctx, code, creator)
	}

	for attempt := 0; attempt < defaultCreateAttempts; attempt++ {
		fresh, err := m.codes.Generate()
		if err != nil {
			return domain.Room{}, err
		}
		room, err := m.createWithCode(ctx, fresh, creator)
		if errors.Is(err, domain.ErrDuplicateRoomCode) {
			continue
		}
		return room, err
	}
	return domain.Room{}, fmt.Errorf("no free room code after %d attempts: %w", defaultCreateAttempts, domain.ErrDuplicateRoomCode)
}

func (m *MessageRelay) createWithCode(ctx context.Context, code domain.RoomCode, creator domain.Participant) (domain.Room, error) {
	if m.registry.Exists(code) {
		return domain.Room{}, domain.ErrDuplicateRoomCode
	}
	if m.directory != nil && m.directory.Live(code) {
		m.logger.Infow("room code live on another instance", "room", code)
		return domain.Room{}, domain.ErrDuplicateRoomCode
	}
	if m.mirror != nil {
		ok, err := m.mirror.Reserve(ctx, code, m.ttl)
		if err != nil {
			// The mirror is advisory; a local registry still guarantees
			// uniqueness within this process.
			m.logger.Warnw("room code reservation failed", "room", code, "error", err)
		} else if !ok {
			return domain.Room{}, domain.ErrDuplicateRoomCode
		}
	}

	room, err := m.registry.Create(code, creator)
	if err != nil {
		if m.mirror != nil && !errors.Is(err, domain.ErrDuplicateRoomCode) {
			_ = m.mirror.Release(ctx, code)
		}
		return domain.Room{}, err
	}

	m.logger.Infow("room created",
		"room", room.Code,
		"participant_id", creator.ID,
		"role", creator.Role,
	)
	return room, nil
}

// FreshCode returns a code that is neither live here nor reserved elsewhere.
// The code stays held for the room creator until the reservation TTL ends.
func (m *MessageRelay) FreshCode(ctx context.Context) (domain.RoomCode, error) {
	for attempt := 0; attempt < defaultCreateAttempts; attempt++ {
		code, err := m.codes.Generate()
		if err != nil {
			return "", err
		}
		if m.registry.Exists(code) || (m.directory != nil && m.directory.Live(code)) {
			continue
		}
		if m.mirror == nil {
			return code, nil
		}
		ok, err := m.mirror.Issue(ctx, code, m.ttl)
		if err != nil {
			m.logger.Warnw("room code reservation failed", "room", code, "error", err)
			return code, nil
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free room code after %d attempts: %w", defaultCreateAttempts, domain.ErrDuplicateRoomCode)
}

// Join adds participant to the room. A viewer joining a code that is not
// live here opens the room, unless another instance already hosts it.
func (m *MessageRelay) Join(ctx context.Context, code domain.RoomCode, participant domain.Participant) (domain.Room, error) {
	room, err := m.join(code, participant)
	if err != nil {
		m.logger.Infow("join rejected",
			"room", code,
			"participant_id", participant.ID,
			"role", participant.Role,
			"error", err,
		)
		return domain.Room{}, err
	}

	m.logger.Infow("participant joined",
		"room", room.Code,
		"participant_id", participant.ID,
		"name", participant.DisplayName,
		"role", participant.Role,
		"members", len(room.Members),
	)
	return room, nil
}

func (m *MessageRelay) join(code domain.RoomCode, participant domain.Participant) (domain.Room, error) {
	if participant.Role == domain.RoleViewer && m.directory != nil &&
		!m.registry.Exists(code) && m.directory.Live(code) {
		return domain.Room{}, fmt.Errorf("room %s is hosted on another relay instance: %w", code, domain.ErrDuplicateRoomCode)
	}
	return m.registry.Join(code, participant)
}

// Leave is idempotent and safe to call on every disconnect.
func (m *MessageRelay) Leave(ctx context.Context, id domain.ParticipantID) {
	room, changed := m.registry.Leave(id)
	if !changed {
		return
	}
	m.logger.Infow("participant left",
		"room", room.Code,
		"participant_id", id,
		"members", len(room.Members),
	)
	if len(room.Members) == 0 {
		m.logger.Infow("removed empty room", "room", room.Code)
	}
}

// Route stamps the sender and delivers env to its target, or to every other
// member of the sender's room when no target is named. Delivery failures are
// logged and never reported back to the sender.
func (m *MessageRelay) Route(ctx context.Context, sender domain.ParticipantID, env domain.SignalEnvelope) {
	env.From = sender
	if env.Empty() {
		m.logger.Debugw("dropping empty envelope", "from", sender)
		return
	}

	code, ok := m.registry.RoomOf(sender)
	if !ok {
		m.logger.Warnw("dropping envelope from participant outside any room", "from", sender)
		m.recordFailure("no_room")
		return
	}
	members := m.registry.MembersOf(code)

	if env.Directed() {
		if env.To == sender || !containsMember(members, env.To) {
			m.logger.Warnw("signal target not in room",
				"from", sender,
				"to", env.To,
				"room", code,
				"error", domain.ErrDeliveryRace,
			)
			m.recordFailure("target_missing")
			return
		}
		if err := m.deliverer.DeliverSignal(env.To, env); err != nil {
			m.logger.Warnw("failed to deliver signal",
				"from", sender,
				"to", env.To,
				"room", code,
				"error", err,
			)
			m.recordFailure("delivery")
			return
		}
		m.recordRouted(true, 1)
		return
	}

	delivered := 0
	for _, member := range members {
		if member.ID == sender {
			continue
		}
		if err := m.deliverer.DeliverSignal(member.ID, env); err != nil {
			m.logger.Warnw("failed to deliver signal",
				"from", sender,
				"to", member.ID,
				"room", code,
				"error", err,
			)
			m.recordFailure("delivery")
			continue
		}
		delivered++
	}
	m.recordRouted(false, delivered)
}

// onMembership runs under the room lock: deliveries are non-blocking enqueues
// and sink publication is handed to Run.
func (m *MessageRelay) onMembership(event domain.MembershipEvent) {
	room := domain.Room{Code: event.Code, Members: event.Members, Seq: event.Seq}
	for _, member := range event.Members {
		if err := m.deliverer.DeliverMembership(member.ID, room); err != nil {
			m.logger.Warnw("failed to deliver membership",
				"room", event.Code,
				"to", member.ID,
				"seq", event.Seq,
				"error", err,
			)
			m.recordFailure("membership")
		}
	}

	if m.metrics != nil {
		m.metrics.RecordMembership(event)
	}

	if len(m.sinks) == 0 {
		return
	}
	select {
	case m.events <- event:
	default:
		m.logger.Warnw("membership queue full, dropping event", "room", event.Code, "seq", event.Seq)
	}
}

func (m *MessageRelay) recordRouted(directed bool, recipients int) {
	if m.metrics != nil {
		m.metrics.RecordEnvelopeRouted(directed, recipients)
	}
}

func (m *MessageRelay) recordFailure(reason string) {
	if m.metrics != nil {
		m.metrics.RecordDeliveryFailure(reason)
	}
}

func containsMember(members []domain.Participant, id domain.ParticipantID) bool {
	for _, member := range members {
		if member.ID == id {
			return true
		}
	}
	return false
}
