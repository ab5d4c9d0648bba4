// Package capture produces the most recent screen frame.
//
// Capture runs on its own ticker at the configured frame rate and writes each
// frame into a single atomically swapped slot. Consumers call Latest and
// always get the newest complete frame; older frames are dropped, never
// queued.
//
// Loss of the capture surface (Surface returns ErrUnavailable) clears the
// slot and flips Available to false. The source keeps polling, so capture
// resumes by itself when the surface comes back.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	xdraw "golang.org/x/image/draw"

	"gamepilot/internal/config"
	"gamepilot/internal/game"
)

// ErrUnavailable is returned by a Surface that lost access to the screen.
var ErrUnavailable = errors.New("capture surface unavailable")

// Shot is one raw capture.
type Shot struct {
	Image *image.RGBA
	// Screen size in input-surface coordinates. Zero means Image's size.
	ScreenWidth  int
	ScreenHeight int
}

// Surface is the platform capture handle.
type Surface interface {
	// Capture grabs the screen scaled by scale (0.25-1.0).
	Capture(ctx context.Context, scale float64) (Shot, error)
}

// SourceConfig configures a Source.
type SourceConfig struct {
	Surface Surface
	Config  *config.Store
	Logger  *log.Logger
	// CaptureTimeout bounds one Surface.Capture call. Default 5s.
	CaptureTimeout time.Duration
}

// Source owns the latest-frame slot.
type Source struct {
	surface Surface
	cfg     *config.Store
	logger  *log.Logger
	timeout time.Duration

	latest    atomic.Pointer[game.Frame]
	available atomic.Bool
	seq       atomic.Uint64
	captured  atomic.Uint64
	dropped   atomic.Uint64
	lastRead  atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource creates a stopped source.
func NewSource(cfg SourceConfig) *Source {
	if cfg.Config == nil {
		cfg.Config = config.NewStore(config.DefaultRunConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 5 * time.Second
	}
	return &Source{
		surface: cfg.Surface,
		cfg:     cfg.Config,
		logger:  cfg.Logger.WithPrefix("capture"),
		timeout: cfg.CaptureTimeout,
	}
}

// Start begins periodic capture. Calling Start on a running source is a
// no-op.
func (s *Source) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.available.Store(true)

	go s.run(loopCtx, s.done)
	s.logger.Info("capture started", "fps", s.cfg.Load().FrameRate)
}

// Stop halts capture and waits for the capture goroutine to exit.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("capture stopped", "captured", s.captured.Load(), "dropped", s.dropped.Load())
}

// Running reports whether the capture goroutine is active.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Latest returns the newest frame, or nil if none is available.
func (s *Source) Latest() *game.Frame {
	f := s.latest.Load()
	if f != nil {
		s.lastRead.Store(f.Seq)
	}
	return f
}

// Available is false after the surface reported ErrUnavailable and until
// the next successful capture.
func (s *Source) Available() bool {
	return s.available.Load()
}

// Dropped counts frames overwritten before anyone read them.
func (s *Source) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Source) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := s.cfg.Load().FrameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = s.CaptureOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if next := s.cfg.Load().FrameInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
			s.logger.Debug("capture interval changed", "interval", interval)
		}
	}
}

// CaptureOnce grabs one frame and publishes it to the slot.
//
// Returns:
//   - nil on success
//   - ErrUnavailable (wrapped) when the surface is lost; the slot is cleared
//   - any other surface error; the previous frame stays published
func (s *Source) CaptureOnce(ctx context.Context) error {
	cfg := s.cfg.Load()

	captureCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	shot, err := s.surface.Capture(captureCtx, cfg.CaptureScale)
	if errors.Is(err, ErrUnavailable) {
		if s.available.Swap(false) {
			s.logger.Warn("capture surface lost", "err", err)
		}
		s.latest.Store(nil)
		return err
	}
	if err != nil {
		s.logger.Debug("capture failed", "err", err)
		return fmt.Errorf("capture: %w", err)
	}
	if shot.Image == nil {
		return fmt.Errorf("capture: surface returned no image")
	}

	if !s.available.Swap(true) {
		s.logger.Info("capture surface restored")
	}

	frame := game.NewFrame(shot.Image, shot.ScreenWidth, shot.ScreenHeight, time.Now(), s.seq.Add(1))
	if prev := s.latest.Swap(frame); prev != nil && !s.consumed(prev) {
		s.dropped.Add(1)
	}
	s.captured.Add(1)
	return nil
}

// consumed reports whether prev was handed out by Latest.
func (s *Source) consumed(prev *game.Frame) bool {
	return prev.Seq <= s.lastRead.Load()
}

// Scale resizes img by factor with bilinear interpolation. A factor of 1
// returns a copy as *image.RGBA.
func Scale(img image.Image, factor float64) *image.RGBA {
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
		return dst
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
