package dispatch

import (
	"math"

	"gamepilot/internal/game"
)

// Virtual control geometry, as fractions of the screen.
const (
	JoystickX      = 0.15 // of width
	JoystickY      = 0.75 // of height
	JoystickRadius = 0.10 // of height

	ItemBarX       = 0.90 // of width
	ItemBarY       = 0.30 // of height
	ItemBarSpacing = 0.05 // of height, leftward per item
)

// DefaultSkillAnchors are the skill button centers as (x, y) fractions of
// the screen, indexed by skill slot.
var DefaultSkillAnchors = [][2]float64{
	{0.85, 0.75},
	{0.75, 0.80},
	{0.80, 0.70},
	{0.70, 0.75},
	{0.75, 0.65},
}

// Layout maps abstract controls to pixels for one screen size.
type Layout struct {
	Width  int
	Height int
}

// JoystickCenter is the anchor of every Move swipe.
func (l Layout) JoystickCenter() game.Point {
	return game.NewPoint(int(float64(l.Width)*JoystickX), int(float64(l.Height)*JoystickY))
}

// JoystickRadius is the full-deflection swipe length in pixels.
func (l Layout) JoystickRadius() float64 {
	return float64(l.Height) * JoystickRadius
}

// MoveTarget is where a Move of direction degrees and distance 0-1 ends.
// Screen Y grows downward, so the sine term is subtracted.
func (l Layout) MoveTarget(direction, distance float64) game.Point {
	c := l.JoystickCenter()
	r := l.JoystickRadius() * clamp01(distance)
	rad := direction * math.Pi / 180
	return game.NewPoint(
		c.X+int(math.Round(r*math.Cos(rad))),
		c.Y-int(math.Round(r*math.Sin(rad))),
	)
}

// SkillPosition returns the default button center for skill index.
func (l Layout) SkillPosition(index int) (game.Point, bool) {
	if index < 0 || index >= len(DefaultSkillAnchors) {
		return game.Point{}, false
	}
	a := DefaultSkillAnchors[index]
	return game.NewPoint(int(float64(l.Width)*a[0]), int(float64(l.Height)*a[1])), true
}

// ItemPosition returns the quick-bar slot center for item index.
func (l Layout) ItemPosition(index int) (game.Point, bool) {
	if index < 0 {
		return game.Point{}, false
	}
	x := float64(l.Width)*ItemBarX - float64(index)*float64(l.Height)*ItemBarSpacing
	if x < 0 {
		return game.Point{}, false
	}
	return game.NewPoint(int(x), int(float64(l.Height)*ItemBarY)), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
