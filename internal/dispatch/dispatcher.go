// Package dispatch translates abstract actions into gestures on the
// platform input surface.
//
// Translation:
//   - Move: swipe from the joystick anchor toward direction/distance (50ms)
//   - UseSkill: tap the skill button (100ms), or swipe from it to the
//     target when aimed (150ms)
//   - UseItem: tap the quick-bar slot (100ms)
//   - Tap, Swipe, MultiTouch: passed through
//   - Wait: sleeps, interrupted by context cancellation
//   - Composite: sub-actions in order; a failed sub-action does not stop
//     the sequence, cancellation does
//
// Gestures already handed to the surface run to completion even if the
// caller's context is cancelled meanwhile.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"gamepilot/internal/game"
)

// Gesture durations.
const (
	MoveSwipe  = 50 * time.Millisecond
	AimedSwipe = 150 * time.Millisecond
	ButtonTap  = 100 * time.Millisecond
)

// InputSurface is the platform input-injection handle. Every call is
// best-effort; false means the platform did not accept the gesture.
type InputSurface interface {
	Tap(ctx context.Context, x, y int, d time.Duration) bool
	Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) bool
	MultiTouch(ctx context.Context, points []game.TouchPoint) bool
}

// Dispatcher executes actions against an InputSurface.
type Dispatcher struct {
	surface InputSurface
	logger  *log.Logger

	mu      sync.RWMutex
	layout  Layout
	learned map[int]game.Point

	executed atomic.Uint64
	failed   atomic.Uint64
}

// New creates a dispatcher for a screen of width x height.
func New(surface InputSurface, width, height int, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		surface: surface,
		logger:  logger.WithPrefix("dispatch"),
		layout:  Layout{Width: width, Height: height},
		learned: make(map[int]game.Point),
	}
}

// SetScreen updates the screen size used for layout.
func (d *Dispatcher) SetScreen(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	d.mu.Lock()
	d.layout = Layout{Width: width, Height: height}
	d.mu.Unlock()
}

// Layout returns the current layout.
func (d *Dispatcher) Layout() Layout {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.layout
}

// LearnSkillPosition overrides the default button position for a skill.
func (d *Dispatcher) LearnSkillPosition(index int, p game.Point) {
	d.mu.Lock()
	d.learned[index] = p
	d.mu.Unlock()
}

// SkillPosition returns the learned or default position for a skill.
func (d *Dispatcher) SkillPosition(index int) (game.Point, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.learned[index]; ok {
		return p, true
	}
	return d.layout.SkillPosition(index)
}

// Counts returns executed and failed leaf action counts.
func (d *Dispatcher) Counts() (executed, failed uint64) {
	return d.executed.Load(), d.failed.Load()
}

// Execute runs one action. For Composite the result is true only if every
// sub-action succeeded and the sequence was not cancelled.
func (d *Dispatcher) Execute(ctx context.Context, action game.Action) bool {
	if c, ok := action.(game.Composite); ok {
		return d.executeComposite(ctx, c)
	}

	ok := d.executeLeaf(ctx, action)
	d.executed.Add(1)
	if !ok {
		d.failed.Add(1)
		d.logger.Debug("action failed", "action", action)
	}
	return ok
}

func (d *Dispatcher) executeComposite(ctx context.Context, c game.Composite) bool {
	all := true
	for i, sub := range c.Actions {
		if ctx.Err() != nil {
			d.logger.Debug("composite cancelled", "remaining", len(c.Actions)-i)
			return false
		}
		if !d.Execute(ctx, sub) {
			all = false
		}
	}
	return all
}

func (d *Dispatcher) executeLeaf(ctx context.Context, action game.Action) bool {
	gctx := context.WithoutCancel(ctx)
	layout := d.Layout()

	switch a := action.(type) {
	case game.Move:
		from := layout.JoystickCenter()
		to := layout.MoveTarget(a.Direction, a.Distance)
		return d.surface.Swipe(gctx, from.X, from.Y, to.X, to.Y, MoveSwipe)

	case game.UseSkill:
		pos, ok := d.SkillPosition(a.Index)
		if !ok {
			return false
		}
		if a.Target != nil {
			return d.surface.Swipe(gctx, pos.X, pos.Y, a.Target.X, a.Target.Y, AimedSwipe)
		}
		return d.surface.Tap(gctx, pos.X, pos.Y, ButtonTap)

	case game.UseItem:
		pos, ok := layout.ItemPosition(a.Index)
		if !ok {
			return false
		}
		return d.surface.Tap(gctx, pos.X, pos.Y, ButtonTap)

	case game.Tap:
		return d.surface.Tap(gctx, a.X, a.Y, a.Duration)

	case game.Swipe:
		return d.surface.Swipe(gctx, a.X1, a.Y1, a.X2, a.Y2, a.Duration)

	case game.MultiTouch:
		if len(a.Points) == 0 {
			return false
		}
		return d.surface.MultiTouch(gctx, a.Points)

	case game.Wait:
		return sleep(ctx, a.Duration)

	default:
		d.logger.Warn("unknown action type", "action", action)
		return false
	}
}

func sleep(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
