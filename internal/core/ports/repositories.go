package ports

import (
	"context"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
)

// MembershipSink receives membership events off the room lock.
type MembershipSink interface {
	PublishMembership(ctx context.Context, event domain.MembershipEvent) error
}

// PresenceMirror publishes live room codes outside the process so that
// codes stay unique across relay instances.
type PresenceMirror interface {
	MembershipSink
	// Issue holds a free code for whoever creates the room with it next.
	Issue(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error)
	// Reserve claims a free or issued code for this instance.
	Reserve(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error)
	Release(ctx context.Context, code domain.RoomCode) error
	// Members returns the last published membership of a live room.
	Members(ctx context.Context, code domain.RoomCode) ([]domain.Participant, bool, error)
	Close() error
}

// RoomDirectory knows which rooms are live on other relay instances.
type RoomDirectory interface {
	Live(code domain.RoomCode) bool
	Members(code domain.RoomCode) ([]domain.Participant, bool)
}
