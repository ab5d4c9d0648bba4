package game

import (
	"fmt"
	"strings"
	"time"
)

// Action is the closed set of commands the policy can emit and the
// dispatcher can execute. Implementations are value types produced fresh
// every tick.
type Action interface {
	isAction()
	String() string
}

// Move steers the virtual joystick. Direction is in degrees (0° = right,
// counter-clockwise), Distance in 0-1 of the joystick radius.
type Move struct {
	Direction float64
	Distance  float64
}

// UseSkill presses a skill button. A non-nil Target aims the skill.
type UseSkill struct {
	Index  int
	Target *Point
}

// UseItem presses a quick-bar item.
type UseItem struct {
	Index int
}

// Tap is a raw single-touch tap.
type Tap struct {
	X, Y     int
	Duration time.Duration
}

// Swipe is a raw single-touch stroke.
type Swipe struct {
	X1, Y1, X2, Y2 int
	Duration       time.Duration
}

// Wait blocks the loop for Duration.
type Wait struct {
	Duration time.Duration
}

// Composite runs its actions strictly in order.
type Composite struct {
	Actions []Action
}

// TouchPoint is one stroke of a MultiTouch gesture. Start is the offset from
// the beginning of the gesture.
type TouchPoint struct {
	X        int           `json:"x"`
	Y        int           `json:"y"`
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// MultiTouch injects several overlapping touches as one gesture.
type MultiTouch struct {
	Points []TouchPoint
}

func (Move) isAction()       {}
func (UseSkill) isAction()   {}
func (UseItem) isAction()    {}
func (Tap) isAction()        {}
func (Swipe) isAction()      {}
func (Wait) isAction()       {}
func (Composite) isAction()  {}
func (MultiTouch) isAction() {}

func (a Move) String() string {
	return fmt.Sprintf("Move(%.1f°, %.2f)", a.Direction, a.Distance)
}

func (a UseSkill) String() string {
	if a.Target != nil {
		return fmt.Sprintf("UseSkill(%d -> %s)", a.Index, a.Target)
	}
	return fmt.Sprintf("UseSkill(%d)", a.Index)
}

func (a UseItem) String() string {
	return fmt.Sprintf("UseItem(%d)", a.Index)
}

func (a Tap) String() string {
	return fmt.Sprintf("Tap(%d, %d, %s)", a.X, a.Y, a.Duration)
}

func (a Swipe) String() string {
	return fmt.Sprintf("Swipe(%d, %d -> %d, %d, %s)", a.X1, a.Y1, a.X2, a.Y2, a.Duration)
}

func (a Wait) String() string {
	return fmt.Sprintf("Wait(%s)", a.Duration)
}

func (a Composite) String() string {
	parts := make([]string, len(a.Actions))
	for i, sub := range a.Actions {
		parts[i] = sub.String()
	}
	return "Composite[" + strings.Join(parts, ", ") + "]"
}

func (a MultiTouch) String() string {
	return fmt.Sprintf("MultiTouch(%d points)", len(a.Points))
}

// Describe renders a list of actions on one line for logs.
func Describe(actions []Action) string {
	if len(actions) == 0 {
		return "[]"
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
