package domain

import "strings"

type ParticipantID string

type Role string

const (
	RoleViewer Role = "viewer"
	RoleSource Role = "source"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleSource
}

// DefaultName is used when a participant joins without a display name.
func (r Role) DefaultName() string {
	if r == RoleViewer {
		return "Viewer"
	}
	return "Source"
}

type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"name"`
	Role        Role          `json:"role"`
}

// NewParticipant trims the display name and falls back to the role default.
func NewParticipant(id ParticipantID, displayName string, role Role) Participant {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = role.DefaultName()
	}
	return Participant{ID: id, DisplayName: name, Role: role}
}

// SourceIDs returns the ids of all sources in members, preserving order.
func SourceIDs(members []Participant) []ParticipantID {
	ids := make([]ParticipantID, 0, len(members))
	for _, m := range members {
		if m.Role == RoleSource {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// ViewerIDs returns the ids of all viewers in members, preserving order.
func ViewerIDs(members []Participant) []ParticipantID {
	ids := make([]ParticipantID, 0, len(members))
	for _, m := range members {
		if m.Role == RoleViewer {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
