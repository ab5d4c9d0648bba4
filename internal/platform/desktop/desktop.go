// Package desktop drives the local display as a capture and input surface.
package desktop

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-vgo/robotgo"

	"gamepilot/internal/capture"
	"gamepilot/internal/game"
	"gamepilot/internal/platform"
)

// Desktop captures the primary display and drives the mouse. A touch is a
// left-button press; only one pointer exists, so overlapping multi-touch
// strokes are played one after another.
type Desktop struct {
	logger *log.Logger

	// one pointer: gestures never interleave
	mu sync.Mutex
}

// New creates a desktop surface.
func New(logger *log.Logger) *Desktop {
	if logger == nil {
		logger = log.Default()
	}
	return &Desktop{logger: logger.WithPrefix("desktop")}
}

// Capture grabs the full display and scales it.
func (d *Desktop) Capture(_ context.Context, scale float64) (capture.Shot, error) {
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return capture.Shot{}, capture.ErrUnavailable
	}
	img, err := robotgo.CaptureImg(0, 0, w, h)
	if err != nil {
		return capture.Shot{}, fmt.Errorf("desktop: capture: %w", err)
	}
	return capture.Shot{
		Image:        capture.Scale(img, scale),
		ScreenWidth:  w,
		ScreenHeight: h,
	}, nil
}

func (d *Desktop) press(x, y int) error {
	robotgo.Move(x, y)
	return robotgo.Toggle("left")
}

func (d *Desktop) release() error {
	return robotgo.Toggle("left", "up")
}

// Tap presses the left button at (x, y) for dur.
func (d *Desktop) Tap(_ context.Context, x, y int, dur time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.press(x, y); err != nil {
		d.logger.Debug("tap rejected", "err", err)
		return false
	}
	time.Sleep(dur)
	if err := d.release(); err != nil {
		d.logger.Debug("tap release failed", "err", err)
		return false
	}
	return true
}

// Swipe drags with the left button from (x1, y1) to (x2, y2) over dur.
func (d *Desktop) Swipe(_ context.Context, x1, y1, x2, y2 int, dur time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.press(x1, y1); err != nil {
		d.logger.Debug("swipe rejected", "err", err)
		return false
	}
	path := platform.SwipePath(x1, y1, x2, y2, dur)
	step := dur / time.Duration(len(path))
	for _, p := range path {
		time.Sleep(step)
		robotgo.Move(p.X, p.Y)
	}
	if err := d.release(); err != nil {
		d.logger.Debug("swipe release failed", "err", err)
		return false
	}
	return true
}

// MultiTouch plays the strokes in start order, each as a tap.
func (d *Desktop) MultiTouch(ctx context.Context, points []game.TouchPoint) bool {
	ordered := append([]game.TouchPoint(nil), points...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	start := time.Now()
	ok := true
	for _, p := range ordered {
		if wait := p.Start - time.Since(start); wait > 0 {
			time.Sleep(wait)
		}
		ok = d.Tap(ctx, p.X, p.Y, p.Duration) && ok
	}
	return ok
}
