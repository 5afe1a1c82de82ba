package ports

import (
	"context"

	"github.com/MeNameek/camerasystem/internal/core/domain"
)

// MediaHandle is an opaque capturable or renderable media stream.
type MediaHandle interface {
	ID() string
	Release()
}

// PeerTransport is the platform transport session for one media path.
// CreateOffer and CreateAnswer also apply the produced description locally.
type PeerTransport interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error
	// AddCandidate fails with domain.ErrPrematureCandidate when no remote
	// description has been applied yet.
	AddCandidate(ctx context.Context, candidate domain.Candidate) error
	OnLocalCandidate(fn func(domain.Candidate))
	// OnMedia fires once the first inbound media frame is observable.
	OnMedia(fn func(MediaHandle))
	AddTrack(media MediaHandle) error
	ReplaceVideoTrack(media MediaHandle) error
	Close() error
}

type TransportFactory interface {
	NewTransport(ctx context.Context, peer domain.ParticipantID) (PeerTransport, error)
}

// CaptureDevice fails with domain.ErrCaptureDenied or domain.ErrCaptureUnavailable.
type CaptureDevice interface {
	Acquire(ctx context.Context, facing domain.Facing) (MediaHandle, error)
}

type RenderSink interface {
	Attach(source domain.ParticipantID, media MediaHandle) error
	Clear()
}

// SignalSender carries envelopes from an endpoint to the relay.
type SignalSender interface {
	SendSignal(ctx context.Context, env domain.SignalEnvelope) error
}
