package services

import (
	"sync"
	"sync/atomic"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
)

type room struct {
	code    domain.RoomCode
	members []domain.Participant
	deleted bool
	mu      sync.Mutex
}

func (r *room) snapshot(seq uint64) domain.Room {
	members := make([]domain.Participant, len(r.members))
	copy(members, r.members)
	return domain.Room{Code: r.code, Members: members, Seq: seq}
}

func (r *room) indexOf(id domain.ParticipantID) int {
	for i, m := range r.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// RoomRegistry maps room codes to their ordered membership. The code map and
// participant index are guarded by mu; membership of a single room is
// mutated under that room's own lock.
type RoomRegistry struct {
	rooms        map[domain.RoomCode]*room
	participants map[domain.ParticipantID]domain.RoomCode
	mu           sync.RWMutex

	listeners   []ports.MembershipListener
	listenersMu sync.RWMutex

	seq atomic.Uint64
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:        make(map[domain.RoomCode]*room),
		participants: make(map[domain.ParticipantID]domain.RoomCode),
	}
}

// Subscribe registers a listener for membership changes.
func (r *RoomRegistry) Subscribe(listener ports.MembershipListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Create opens a new room with creator as its first member.
func (r *RoomRegistry) Create(code domain.RoomCode, creator domain.Participant) (domain.Room, error) {
	if code == "" {
		return domain.Room{}, domain.ErrInvalidRoomCode
	}
	if !creator.Role.Valid() {
		return domain.Room{}, domain.ErrInvalidRole
	}

	r.mu.Lock()
	if _, exists := r.rooms[code]; exists {
		r.mu.Unlock()
		return domain.Room{}, domain.ErrDuplicateRoomCode
	}
	if _, joined := r.participants[creator.ID]; joined {
		r.mu.Unlock()
		return domain.Room{}, domain.ErrAlreadyInRoom
	}
	rm := &room{code: code}
	// Lock the room before publishing it so no join can slip in ahead of
	// the creator.
	rm.mu.Lock()
	r.rooms[code] = rm
	r.participants[creator.ID] = code
	r.mu.Unlock()

	defer rm.mu.Unlock()
	rm.members = append(rm.members, creator)
	return r.emit(rm, domain.MembershipJoined, creator), nil
}

// Join appends participant to the room named by code. A viewer implicitly
// creates a missing room; a source gets domain.ErrRoomNotFound.
func (r *RoomRegistry) Join(code domain.RoomCode, participant domain.Participant) (domain.Room, error) {
	if code == "" {
		return domain.Room{}, domain.ErrInvalidRoomCode
	}
	if !participant.Role.Valid() {
		return domain.Room{}, domain.ErrInvalidRole
	}

	for {
		r.mu.Lock()
		if _, joined := r.participants[participant.ID]; joined {
			r.mu.Unlock()
			return domain.Room{}, domain.ErrAlreadyInRoom
		}
		rm, exists := r.rooms[code]
		if !exists {
			if participant.Role != domain.RoleViewer {
				r.mu.Unlock()
				return domain.Room{}, domain.ErrRoomNotFound
			}
			rm = &room{code: code}
			r.rooms[code] = rm
		}
		r.participants[participant.ID] = code
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.deleted {
			// Lost a race with the last member leaving; the room is gone
			// from the map, so start over.
			rm.mu.Unlock()
			r.mu.Lock()
			if r.participants[participant.ID] == code {
				delete(r.participants, participant.ID)
			}
			r.mu.Unlock()
			continue
		}
		rm.members = append(rm.members, participant)
		snapshot := r.emit(rm, domain.MembershipJoined, participant)
		rm.mu.Unlock()
		return snapshot, nil
	}
}

// Leave removes the participant from its room and deletes the room once it
// is empty. It is a no-op for unknown participants.
func (r *RoomRegistry) Leave(id domain.ParticipantID) (domain.Room, bool) {
	r.mu.RLock()
	code, ok := r.participants[id]
	rm := r.rooms[code]
	r.mu.RUnlock()
	if !ok || rm == nil {
		return domain.Room{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	idx := rm.indexOf(id)
	if idx < 0 {
		return domain.Room{}, false
	}
	left := rm.members[idx]
	rm.members = append(rm.members[:idx], rm.members[idx+1:]...)

	r.mu.Lock()
	delete(r.participants, id)
	if len(rm.members) == 0 {
		rm.deleted = true
		if r.rooms[code] == rm {
			delete(r.rooms, code)
		}
		// A room recreated under the same code must not publish ahead of
		// this deletion.
		snapshot := r.emit(rm, domain.MembershipLeft, left)
		r.mu.Unlock()
		return snapshot, true
	}
	r.mu.Unlock()

	return r.emit(rm, domain.MembershipLeft, left), true
}

// MembersOf returns a copy of the room's members, or nil if it does not exist.
func (r *RoomRegistry) MembersOf(code domain.RoomCode) []domain.Participant {
	r.mu.RLock()
	rm, ok := r.rooms[code]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return nil
	}
	return rm.snapshot(0).Members
}

func (r *RoomRegistry) RoomOf(id domain.ParticipantID) (domain.RoomCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.participants[id]
	return code, ok
}

func (r *RoomRegistry) Exists(code domain.RoomCode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[code]
	return ok
}

// Stats returns the number of live rooms and admitted participants.
func (r *RoomRegistry) Stats() (rooms, participants int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.participants)
}

// emit must be called with rm.mu held.
func (r *RoomRegistry) emit(rm *room, change domain.MembershipChange, who domain.Participant) domain.Room {
	snapshot := rm.snapshot(r.seq.Add(1))
	event := domain.MembershipEvent{
		Code:        snapshot.Code,
		Seq:         snapshot.Seq,
		Members:     snapshot.Members,
		Change:      change,
		Participant: who,
	}

	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
	return snapshot
}
