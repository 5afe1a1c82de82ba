package ports

import (
	"context"

	"github.com/MeNameek/camerasystem/internal/core/domain"
)

// MembershipListener must not block or call back into the registry; it runs
// under the room lock.
type MembershipListener func(domain.MembershipEvent)

type RoomRegistry interface {
	Create(code domain.RoomCode, creator domain.Participant) (domain.Room, error)
	Join(code domain.RoomCode, participant domain.Participant) (domain.Room, error)
	Leave(id domain.ParticipantID) (domain.Room, bool)
	MembersOf(code domain.RoomCode) []domain.Participant
	RoomOf(id domain.ParticipantID) (domain.RoomCode, bool)
	Exists(code domain.RoomCode) bool
	Subscribe(listener MembershipListener)
}

type MessageRelay interface {
	Create(ctx context.Context, code domain.RoomCode, creator domain.Participant) (domain.Room, error)
	Join(ctx context.Context, code domain.RoomCode, participant domain.Participant) (domain.Room, error)
	Leave(ctx context.Context, id domain.ParticipantID)
	Route(ctx context.Context, sender domain.ParticipantID, env domain.SignalEnvelope)
}

// Deliverer hands messages to a participant's connection without blocking.
// A missing or saturated connection reports domain.ErrDeliveryRace.
type Deliverer interface {
	DeliverSignal(to domain.ParticipantID, env domain.SignalEnvelope) error
	DeliverMembership(to domain.ParticipantID, room domain.Room) error
}

// RelayMetrics is implemented by the Prometheus collector.
type RelayMetrics interface {
	RecordEnvelopeRouted(directed bool, recipients int)
	RecordDeliveryFailure(reason string)
	RecordMembership(event domain.MembershipEvent)
}
