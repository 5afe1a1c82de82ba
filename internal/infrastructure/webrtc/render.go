package webrtc

import (
	"context"
	"sync"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"go.uber.org/zap"
)

// LogRenderSink is the headless render surface: it records which source is
// shown and periodically logs the frames received from it.
type LogRenderSink struct {
	mu      sync.Mutex
	source  domain.ParticipantID
	media   ports.MediaHandle
	changes int

	logger *zap.SugaredLogger
}

func NewLogRenderSink(logger *zap.SugaredLogger) *LogRenderSink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogRenderSink{logger: logger}
}

func (s *LogRenderSink) Attach(source domain.ParticipantID, media ports.MediaHandle) error {
	s.mu.Lock()
	s.source = source
	s.media = media
	s.changes++
	s.mu.Unlock()

	s.logger.Infow("rendering source", "source_id", source, "media_id", media.ID())
	return nil
}

func (s *LogRenderSink) Clear() {
	s.mu.Lock()
	prev := s.source
	s.source = ""
	s.media = nil
	s.changes++
	s.mu.Unlock()

	if prev != "" {
		s.logger.Infow("render cleared", "source_id", prev)
	}
}

// Current returns the source being rendered, if any.
func (s *LogRenderSink) Current() (domain.ParticipantID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source, s.source != ""
}

// Report logs frame counters of the rendered media every interval until ctx
// is done.
func (s *LogRenderSink) Report(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			source, media := s.source, s.media
			s.mu.Unlock()

			remote, ok := media.(*RemoteMedia)
			if !ok {
				continue
			}
			stats := remote.Stats()
			s.logger.Infow("render stats",
				"source_id", source,
				"codec", remote.Codec(),
				"frames", stats.Frames,
				"packets", stats.Packets,
				"bytes", stats.Bytes,
			)
		}
	}
}

var _ ports.RenderSink = (*LogRenderSink)(nil)
