package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"go.uber.org/zap"
)

const defaultFrameDuration = time.Second / 30

var fourCCMimeTypes = map[string]string{
	"VP80": webrtc.MimeTypeVP8,
	"VP90": webrtc.MimeTypeVP9,
}

// FileCapture plays IVF files as camera output, one file per facing. It lets
// a headless source stream without a camera.
type FileCapture struct {
	files  map[domain.Facing]string
	logger *zap.SugaredLogger
}

func NewFileCapture(files map[domain.Facing]string, logger *zap.SugaredLogger) *FileCapture {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FileCapture{files: files, logger: logger}
}

// Acquire opens the file for facing and starts pacing its frames onto a new
// track. The track stops when the returned handle is released.
func (c *FileCapture) Acquire(ctx context.Context, facing domain.Facing) (ports.MediaHandle, error) {
	path, ok := c.files[facing]
	if !ok || path == "" {
		return nil, fmt.Errorf("no capture file for %s facing: %w", facing, domain.ErrCaptureUnavailable)
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("open %s: %w", path, domain.ErrCaptureDenied)
		}
		return nil, fmt.Errorf("open %s: %v: %w", path, err, domain.ErrCaptureUnavailable)
	}

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read %s: %v: %w", path, err, domain.ErrCaptureUnavailable)
	}
	mimeType, ok := fourCCMimeTypes[header.FourCC]
	if !ok {
		file.Close()
		return nil, fmt.Errorf("unsupported codec %q in %s: %w", header.FourCC, path, domain.ErrCaptureUnavailable)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		"video",
		"camerasystem-"+string(facing),
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create track: %w", err)
	}

	frameDuration := defaultFrameDuration
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Second * time.Duration(header.TimebaseNumerator) / time.Duration(header.TimebaseDenominator)
	}

	stop := make(chan struct{})
	id := uuid.NewString()
	p := &ivfPlayer{
		file:          file,
		reader:        reader,
		track:         track,
		frameDuration: frameDuration,
		logger:        c.logger.With("capture_id", id, "facing", facing),
	}
	go p.run(stop)

	c.logger.Infow("capture started",
		"capture_id", id,
		"facing", facing,
		"file", path,
		"codec", mimeType,
		"frame_duration", frameDuration,
	)
	return NewLocalMedia(id, track, func() { close(stop) }), nil
}

type ivfPlayer struct {
	file          *os.File
	reader        *ivfreader.IVFReader
	track         *webrtc.TrackLocalStaticSample
	frameDuration time.Duration
	logger        *zap.SugaredLogger
}

// run writes one frame per tick and loops the file at EOF.
func (p *ivfPlayer) run(stop <-chan struct{}) {
	defer p.file.Close()

	ticker := time.NewTicker(p.frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, _, err := p.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if err := p.rewind(); err != nil {
				p.logger.Warnw("capture stopped", "error", err)
				return
			}
			continue
		}
		if err != nil {
			p.logger.Warnw("capture stopped", "error", err)
			return
		}

		if err := p.track.WriteSample(media.Sample{Data: frame, Duration: p.frameDuration}); err != nil {
			p.logger.Debugw("failed to write sample", "error", err)
		}
	}
}

func (p *ivfPlayer) rewind() error {
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := ivfreader.NewWith(p.file)
	if err != nil {
		return err
	}
	p.reader = reader
	return nil
}

var _ ports.CaptureDevice = (*FileCapture)(nil)
