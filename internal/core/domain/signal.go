package domain

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// Candidate mirrors RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// SignalEnvelope is routed by the relay without interpreting its payload.
// From is always stamped by the relay.
type SignalEnvelope struct {
	From        ParticipantID       `json:"from,omitempty"`
	To          ParticipantID       `json:"to,omitempty"`
	Description *SessionDescription `json:"description,omitempty"`
	Candidate   *Candidate          `json:"candidate,omitempty"`
}

// Empty reports whether the envelope carries neither payload.
func (e SignalEnvelope) Empty() bool {
	return e.Description == nil && e.Candidate == nil
}

// Directed reports whether the envelope names a single recipient.
func (e SignalEnvelope) Directed() bool {
	return e.To != ""
}
