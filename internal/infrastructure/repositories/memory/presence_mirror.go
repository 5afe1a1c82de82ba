package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
)

// PresenceMirror keeps reservations and membership in process. It is the
// fallback when Redis is disabled or unreachable, so uniqueness only holds
// for this instance.
type PresenceMirror struct {
	reservations map[domain.RoomCode]reservation
	rooms        map[domain.RoomCode][]domain.Participant
	now          func() time.Time
	mu           sync.Mutex
}

func NewPresenceMirror() *PresenceMirror {
	return &PresenceMirror{
		reservations: make(map[domain.RoomCode]reservation),
		rooms:        make(map[domain.RoomCode][]domain.Participant),
		now:          time.Now,
	}
}

type reservation struct {
	expiry time.Time
	// issued codes are handed out but not yet claimed by a room.
	issued bool
}

func (m *PresenceMirror) Issue(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, live := m.rooms[code]; live {
		return false, nil
	}
	now := m.now()
	if r, ok := m.reservations[code]; ok && now.Before(r.expiry) {
		return false, nil
	}
	m.reservations[code] = reservation{expiry: now.Add(ttl), issued: true}
	return true, nil
}

func (m *PresenceMirror) Reserve(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, live := m.rooms[code]; live {
		return false, nil
	}
	now := m.now()
	if r, ok := m.reservations[code]; ok && now.Before(r.expiry) && !r.issued {
		return false, nil
	}
	m.reservations[code] = reservation{expiry: now.Add(ttl)}
	return true, nil
}

func (m *PresenceMirror) Release(ctx context.Context, code domain.RoomCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reservations, code)
	return nil
}

func (m *PresenceMirror) PublishMembership(ctx context.Context, event domain.MembershipEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.Deleted() {
		delete(m.rooms, event.Code)
		delete(m.reservations, event.Code)
		return nil
	}
	members := make([]domain.Participant, len(event.Members))
	copy(members, event.Members)
	m.rooms[event.Code] = members
	return nil
}

func (m *PresenceMirror) Members(ctx context.Context, code domain.RoomCode) ([]domain.Participant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[code]
	if !ok {
		return nil, false, nil
	}
	out := make([]domain.Participant, len(members))
	copy(out, members)
	return out, true, nil
}

func (m *PresenceMirror) Close() error {
	return nil
}

var _ ports.PresenceMirror = (*PresenceMirror)(nil)
