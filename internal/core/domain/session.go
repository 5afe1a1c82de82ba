package domain

import "fmt"

// SessionID identifies one viewer-source media path.
type SessionID struct {
	Viewer ParticipantID
	Source ParticipantID
}

func (id SessionID) String() string {
	return fmt.Sprintf("%s/%s", id.Viewer, id.Source)
}

type SessionPhase string

const (
	PhaseIdle         SessionPhase = "idle"
	PhaseDescOffered  SessionPhase = "desc_offered"
	PhaseDescAnswered SessionPhase = "desc_answered"
	PhaseEstablished  SessionPhase = "established"
	PhaseClosed       SessionPhase = "closed"
)

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	ID                   SessionID
	Phase                SessionPhase
	LocalDescriptionSet  bool
	RemoteDescriptionSet bool
	PendingCandidates    int
	AppliedCandidates    int
}

type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Toggle returns the opposite camera facing.
func (f Facing) Toggle() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}
