package session

import "github.com/MeNameek/camerasystem/internal/core/domain"

// CandidateBuffer holds remote candidates that arrived before the remote
// description, for one session.
type CandidateBuffer struct {
	sessionID domain.SessionID
	pending   []domain.Candidate
	flushed   bool
}

func NewCandidateBuffer(id domain.SessionID) *CandidateBuffer {
	return &CandidateBuffer{sessionID: id}
}

func (b *CandidateBuffer) SessionID() domain.SessionID {
	return b.sessionID
}

// rebind follows a source offer to the viewer that claimed it.
func (b *CandidateBuffer) rebind(id domain.SessionID) {
	b.sessionID = id
}

// Push appends c in arrival order.
func (b *CandidateBuffer) Push(c domain.Candidate) {
	b.pending = append(b.pending, c)
}

// Requeue puts candidates back at the front of the buffer, ahead of anything
// that arrived while they were being applied.
func (b *CandidateBuffer) Requeue(cs []domain.Candidate) {
	if len(cs) == 0 {
		return
	}
	b.pending = append(append([]domain.Candidate(nil), cs...), b.pending...)
}

// Drain returns all pending candidates in arrival order and empties the buffer.
func (b *CandidateBuffer) Drain() []domain.Candidate {
	out := b.pending
	b.pending = nil
	return out
}

// MarkFlushed records that every buffered candidate reached the transport.
func (b *CandidateBuffer) MarkFlushed() {
	b.flushed = true
}

func (b *CandidateBuffer) Flushed() bool {
	return b.flushed
}

func (b *CandidateBuffer) Len() int {
	return len(b.pending)
}
