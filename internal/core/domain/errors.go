package domain

import "errors"

var (
	ErrDuplicateRoomCode    = errors.New("duplicate room code")
	ErrRoomNotFound         = errors.New("room not found")
	ErrInvalidRoomCode      = errors.New("invalid room code")
	ErrInvalidRole          = errors.New("invalid participant role")
	ErrAlreadyInRoom        = errors.New("participant already in a room")
	ErrPrematureCandidate   = errors.New("candidate applied before remote description")
	ErrStaleSessionEnvelope = errors.New("envelope for closed or unknown session")
	ErrDeliveryRace         = errors.New("delivery target disconnected")
	ErrUnknownSource        = errors.New("unknown source")
	ErrCaptureDenied        = errors.New("capture permission denied")
	ErrCaptureUnavailable   = errors.New("capture device unavailable")
)
