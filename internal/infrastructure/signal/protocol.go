package signal

import (
	"github.com/MeNameek/camerasystem/internal/core/domain"
)

type MessageType string

// Client to relay.
const (
	TypeJoin   MessageType = "join"
	TypeCreate MessageType = "create"
	TypeLeave  MessageType = "leave"
	TypeSignal MessageType = "signal"
)

// Relay to client. TypeSignal is used in both directions.
const (
	TypeWelcome    MessageType = "welcome"
	TypeJoined     MessageType = "joined"
	TypeMembership MessageType = "membership"
	TypeError      MessageType = "error"
)

// Message is the single JSON frame exchanged over the signaling socket.
// Which fields are set depends on Type.
type Message struct {
	Type MessageType `json:"type"`

	// welcome, joined
	ID domain.ParticipantID `json:"id,omitempty"`

	// join, create, joined, membership
	Room    domain.RoomCode      `json:"room,omitempty"`
	Name    string               `json:"name,omitempty"`
	Role    domain.Role          `json:"role,omitempty"`
	Seq     uint64               `json:"seq,omitempty"`
	Members []domain.Participant `json:"members,omitempty"`

	// signal
	From        domain.ParticipantID       `json:"from,omitempty"`
	To          domain.ParticipantID       `json:"to,omitempty"`
	Description *domain.SessionDescription `json:"description,omitempty"`
	Candidate   *domain.Candidate          `json:"candidate,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Envelope extracts the routed part of a signal message.
func (m Message) Envelope() domain.SignalEnvelope {
	return domain.SignalEnvelope{
		From:        m.From,
		To:          m.To,
		Description: m.Description,
		Candidate:   m.Candidate,
	}
}

func signalMessage(env domain.SignalEnvelope) Message {
	return Message{
		Type:        TypeSignal,
		From:        env.From,
		To:          env.To,
		Description: env.Description,
		Candidate:   env.Candidate,
	}
}

func membershipMessage(room domain.Room) Message {
	return Message{
		Type:    TypeMembership,
		Room:    room.Code,
		Seq:     room.Seq,
		Members: room.Members,
	}
}

// RoomSnapshot converts a membership message back into a snapshot.
func (m Message) RoomSnapshot() domain.Room {
	return domain.Room{Code: m.Room, Members: m.Members, Seq: m.Seq}
}
