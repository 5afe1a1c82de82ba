package domain

import "strings"

type RoomCode string

// NormalizeRoomCode trims and upper-cases a user supplied code.
func NormalizeRoomCode(code string) RoomCode {
	return RoomCode(strings.ToUpper(strings.TrimSpace(code)))
}

// Room is a snapshot of a room's membership. Members are in join order.
type Room struct {
	Code    RoomCode      `json:"code"`
	Members []Participant `json:"members"`
	Seq     uint64        `json:"seq"`
}

// Contains reports whether id is a member of the room.
func (r Room) Contains(id ParticipantID) bool {
	for _, m := range r.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

type MembershipChange string

const (
	MembershipJoined MembershipChange = "joined"
	MembershipLeft   MembershipChange = "left"
)

// MembershipEvent carries the full member list after a join or leave.
// Seq increases across the whole registry, so a receiver can discard a
// snapshot older than one it has already applied.
type MembershipEvent struct {
	Code        RoomCode
	Seq         uint64
	Members     []Participant
	Change      MembershipChange
	Participant Participant
}

// Deleted reports whether the event emptied the room.
func (e MembershipEvent) Deleted() bool {
	return len(e.Members) == 0
}
