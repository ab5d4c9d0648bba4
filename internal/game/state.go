// Package game defines the data model shared by every stage of the control
// pipeline.
//
// Major Data Categories:
//
// 1. Geometry:
//    - Point: screen coordinates with distance and direction helpers
//
// 2. Captured Input:
//    - Frame: immutable pixel buffer with capture and screen dimensions
//
// 3. Decoded State:
//    - ScreenType: which UI screen the game is showing
//    - GameState: one decoded snapshot (player, enemies, skills)
//    - PlayerState, EnemyInfo, SkillInfo
//
// 4. Output:
//    - Action: closed set of variants consumed by the dispatcher (action.go)
//
// Thread Safety:
// Every type in this package is a value snapshot. Nothing here is mutated
// after construction, so values may be shared between goroutines freely.
package game

import (
	"fmt"
	"image"
	"math"
	"time"
)

// Point represents a 2D coordinate in screen space (pixels).
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewPoint creates a new Point
func NewPoint(x, y int) Point {
	return Point{X: x, Y: y}
}

// Distance calculates Euclidean distance to another point
func (p Point) Distance(other Point) float64 {
	dx := float64(p.X - other.X)
	dy := float64(p.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// DirectionTo returns the angle in degrees of the vector from p to other.
// 0° points screen-right and angles grow counter-clockwise as seen on
// screen, so a target straight above p is at 90°. Screen Y grows downward,
// hence the flipped dy.
func (p Point) DirectionTo(other Point) float64 {
	dx := float64(other.X - p.X)
	dy := float64(p.Y - other.Y)
	return math.Atan2(dy, dx) * 180 / math.Pi
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Frame is one captured screen image.
//
// The pixel buffer may be smaller than the physical screen when the capture
// scale is below 1.0; ScreenWidth/ScreenHeight keep the unscaled size so
// decoded positions can be mapped back into input-surface coordinates.
//
// A Frame is never mutated after NewFrame returns.
type Frame struct {
	img          *image.RGBA
	ScreenWidth  int
	ScreenHeight int
	Timestamp    time.Time
	Seq          uint64
}

// NewFrame wraps img as an immutable frame. A zero screen size defaults to
// the image size.
func NewFrame(img *image.RGBA, screenW, screenH int, ts time.Time, seq uint64) *Frame {
	b := img.Bounds()
	if screenW <= 0 || screenH <= 0 {
		screenW, screenH = b.Dx(), b.Dy()
	}
	return &Frame{
		img:          img,
		ScreenWidth:  screenW,
		ScreenHeight: screenH,
		Timestamp:    ts,
		Seq:          seq,
	}
}

// Image returns the pixel buffer. Callers must treat it as read-only.
func (f *Frame) Image() image.Image {
	return f.img
}

// Width is the pixel buffer width.
func (f *Frame) Width() int {
	return f.img.Bounds().Dx()
}

// Height is the pixel buffer height.
func (f *Frame) Height() int {
	return f.img.Bounds().Dy()
}

// ScreenType identifies the UI screen visible in a frame.
type ScreenType int

const (
	ScreenMainMenu ScreenType = iota
	ScreenBattle
	ScreenInventory
	ScreenShop
	ScreenUnknown
)

var screenNames = [...]string{"main_menu", "battle", "inventory", "shop", "unknown"}

func (s ScreenType) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return "unknown"
	}
	return screenNames[s]
}

// PlayerState holds the decoded player vitals.
type PlayerState struct {
	Health   float64 `json:"health"` // percent 0-100
	Mana     float64 `json:"mana"`   // percent 0-100
	Position Point   `json:"position"`
	Moving   bool    `json:"moving"`
}

// EnemyInfo is one detected enemy. Distance is normalized to 0-1.
type EnemyInfo struct {
	Position   Point   `json:"position"`
	Distance   float64 `json:"distance"`
	Type       string  `json:"type,omitempty"`
	Aggressive bool    `json:"aggressive"`
	Confidence float64 `json:"confidence"`
}

// SkillInfo describes one skill slot.
type SkillInfo struct {
	Index      int    `json:"index"`
	Name       string `json:"name,omitempty"`
	Ready      bool   `json:"ready"`
	CooldownMs int64  `json:"cooldown_ms"`
	Position   *Point `json:"position,omitempty"`
}

// GameState is the snapshot produced by one successful inference.
type GameState struct {
	Screen       ScreenType   `json:"screen"`
	Player       *PlayerState `json:"player,omitempty"`
	Enemies      []EnemyInfo  `json:"enemies"`
	Skills       []SkillInfo  `json:"skills"`
	ScreenWidth  int          `json:"screen_width"`
	ScreenHeight int          `json:"screen_height"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NearestEnemy returns the enemy with the smallest normalized distance.
// Ties keep detection order. Returns nil when no enemies were detected.
func (s *GameState) NearestEnemy() *EnemyInfo {
	var nearest *EnemyInfo
	for i := range s.Enemies {
		if nearest == nil || s.Enemies[i].Distance < nearest.Distance {
			nearest = &s.Enemies[i]
		}
	}
	return nearest
}

// Skill returns the skill with the given index, or nil.
func (s *GameState) Skill(index int) *SkillInfo {
	for i := range s.Skills {
		if s.Skills[i].Index == index {
			return &s.Skills[i]
		}
	}
	return nil
}
