package distributed

import (
	"errors"
	"sync"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"go.uber.org/zap"
)

// DefaultDirectoryTTL drops rooms whose instance went quiet without
// publishing their deletion.
const DefaultDirectoryTTL = 12 * time.Hour

var errEventWithoutRoom = errors.New("event without room code")

type remoteRoom struct {
	instanceID string
	seq        uint64
	members    []domain.Participant
	seen       time.Time
}

// RoomDirectory is the view of rooms hosted by other relay instances, fed by
// the events they publish on the bus.
type RoomDirectory struct {
	ttl    time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	rooms map[domain.RoomCode]remoteRoom
}

func NewRoomDirectory(ttl time.Duration, logger *zap.SugaredLogger) *RoomDirectory {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RoomDirectory{
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
		rooms:  make(map[domain.RoomCode]remoteRoom),
	}
}

// Apply records one remote event. It is meant as an EventBus.Subscribe
// handler. Seq only orders events of the same instance.
func (d *RoomDirectory) Apply(e *Event) error {
	if e.Room == "" {
		return errEventWithoutRoom
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.rooms[e.Room]
	if ok && current.instanceID == e.InstanceID && e.Seq <= current.seq {
		return nil
	}
	if e.Type == EventRoomDeleted {
		delete(d.rooms, e.Room)
		d.logger.Debugw("remote room removed", "room", e.Room, "instance_id", e.InstanceID)
		return nil
	}

	members := make([]domain.Participant, len(e.Members))
	copy(members, e.Members)
	d.rooms[e.Room] = remoteRoom{
		instanceID: e.InstanceID,
		seq:        e.Seq,
		members:    members,
		seen:       d.now(),
	}
	return nil
}

func (d *RoomDirectory) lookup(code domain.RoomCode) (remoteRoom, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[code]
	if !ok || d.now().Sub(room.seen) > d.ttl {
		return remoteRoom{}, false
	}
	return room, true
}

// Live reports whether another instance currently hosts code.
func (d *RoomDirectory) Live(code domain.RoomCode) bool {
	_, ok := d.lookup(code)
	return ok
}

// Members returns the remote room's members in join order.
func (d *RoomDirectory) Members(code domain.RoomCode) ([]domain.Participant, bool) {
	room, ok := d.lookup(code)
	if !ok {
		return nil, false
	}
	out := make([]domain.Participant, len(room.members))
	copy(out, room.members)
	return out, true
}

// Prune forgets expired rooms and returns how many were dropped.
func (d *RoomDirectory) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	dropped := 0
	for code, room := range d.rooms {
		if now.Sub(room.seen) > d.ttl {
			delete(d.rooms, code)
			dropped++
		}
	}
	return dropped
}

var _ ports.RoomDirectory = (*RoomDirectory)(nil)
