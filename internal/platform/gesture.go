// Package platform implements the capture and input surfaces.
//
// Surfaces:
//   - Browser: a Chrome tab driven over the DevTools protocol (chromedp);
//     captures screenshots and injects touch events
//   - desktop.Desktop: the local screen (robotgo); captures the display and
//     drives the mouse, one pointer at a time. It lives in its own package
//     so that only binaries using it link against the cgo screen libraries.
//
// Both satisfy capture.Surface and dispatch.InputSurface.
package platform

import (
	"sort"
	"time"

	"gamepilot/internal/game"
)

// frameStep is the spacing of intermediate swipe positions, about 60 Hz.
const frameStep = 16 * time.Millisecond

type touchKind int

const (
	touchDown touchKind = iota
	touchUp
)

// touchEvent is one edge of a multi-touch gesture.
type touchEvent struct {
	At    time.Duration
	Kind  touchKind
	Index int
}

// timeline flattens strokes into down/up events ordered by time. At equal
// times downs come first so a zero-length stroke is pressed before it is
// released.
func timeline(points []game.TouchPoint) []touchEvent {
	events := make([]touchEvent, 0, 2*len(points))
	for i, p := range points {
		start := max(p.Start, 0)
		events = append(events,
			touchEvent{At: start, Kind: touchDown, Index: i},
			touchEvent{At: start + max(p.Duration, 0), Kind: touchUp, Index: i},
		)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].At != events[j].At {
			return events[i].At < events[j].At
		}
		return events[i].Kind < events[j].Kind
	})
	return events
}

// SwipePath returns the intermediate positions of a straight swipe lasting
// d, excluding the start and including the end.
func SwipePath(x1, y1, x2, y2 int, d time.Duration) []game.Point {
	steps := int(d / frameStep)
	if steps < 1 {
		steps = 1
	}
	path := make([]game.Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		path = append(path, game.NewPoint(
			x1+int(float64(x2-x1)*t+0.5*sign(x2-x1)),
			y1+int(float64(y2-y1)*t+0.5*sign(y2-y1)),
		))
	}
	return path
}

func sign(v int) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
