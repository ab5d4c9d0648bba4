package game

import (
	"errors"
	"fmt"
	"time"
)

// CommandType enumerates the wire names of action variants.
type CommandType string

const (
	CommandMove       CommandType = "move"
	CommandUseSkill   CommandType = "use_skill"
	CommandUseItem    CommandType = "use_item"
	CommandTap        CommandType = "tap"
	CommandSwipe      CommandType = "swipe"
	CommandWait       CommandType = "wait"
	CommandComposite  CommandType = "composite"
	CommandMultiTouch CommandType = "multi_touch"
)

// MoveCommand carries a joystick direction and distance.
type MoveCommand struct {
	Direction float64 `json:"direction"`
	Distance  float64 `json:"distance"`
}

// SlotCommand identifies a skill or item slot with an optional aim point.
type SlotCommand struct {
	Index  int    `json:"index"`
	Target *Point `json:"target,omitempty"`
}

// GestureCommand carries raw tap/swipe coordinates.
type GestureCommand struct {
	X1         int   `json:"x1"`
	Y1         int   `json:"y1"`
	X2         int   `json:"x2,omitempty"`
	Y2         int   `json:"y2,omitempty"`
	DurationMs int64 `json:"duration_ms"`
}

// Command is the JSON form of an Action, used by the control API and logs.
type Command struct {
	Type       CommandType     `json:"type"`
	Move       *MoveCommand    `json:"move,omitempty"`
	Slot       *SlotCommand    `json:"slot,omitempty"`
	Gesture    *GestureCommand `json:"gesture,omitempty"`
	WaitMs     int64           `json:"wait_ms,omitempty"`
	Actions    []Command       `json:"actions,omitempty"`
	TouchPoint []TouchPoint    `json:"touch_points,omitempty"`
}

var errMissingPayload = errors.New("missing payload")

// ToAction converts the wire form into an Action.
func (c Command) ToAction() (Action, error) {
	switch c.Type {
	case CommandMove:
		if c.Move == nil {
			return nil, fmt.Errorf("game: %s: %w", c.Type, errMissingPayload)
		}
		return Move{Direction: c.Move.Direction, Distance: c.Move.Distance}, nil
	case CommandUseSkill:
		if c.Slot == nil {
			return nil, fmt.Errorf("game: %s: %w", c.Type, errMissingPayload)
		}
		return UseSkill{Index: c.Slot.Index, Target: c.Slot.Target}, nil
	case CommandUseItem:
		if c.Slot == nil {
			return nil, fmt.Errorf("game: %s: %w", c.Type, errMissingPayload)
		}
		return UseItem{Index: c.Slot.Index}, nil
	case CommandTap:
		if c.Gesture == nil {
			return nil, fmt.Errorf("game: %s: %w", c.Type, errMissingPayload)
		}
		g := c.Gesture
		return Tap{X: g.X1, Y: g.Y1, Duration: time.Duration(g.DurationMs) * time.Millisecond}, nil
	case CommandSwipe:
		if c.Gesture == nil {
			return nil, fmt.Errorf("game: %s: %w", c.Type, errMissingPayload)
		}
		g := c.Gesture
		return Swipe{X1: g.X1, Y1: g.Y1, X2: g.X2, Y2: g.Y2, Duration: time.Duration(g.DurationMs) * time.Millisecond}, nil
	case CommandWait:
		return Wait{Duration: time.Duration(c.WaitMs) * time.Millisecond}, nil
	case CommandComposite:
		subs := make([]Action, 0, len(c.Actions))
		for i, sub := range c.Actions {
			a, err := sub.ToAction()
			if err != nil {
				return nil, fmt.Errorf("game: composite[%d]: %w", i, err)
			}
			subs = append(subs, a)
		}
		return Composite{Actions: subs}, nil
	case CommandMultiTouch:
		if len(c.TouchPoint) == 0 {
			return nil, fmt.Errorf("game: %s: %w", c.Type, errMissingPayload)
		}
		return MultiTouch{Points: c.TouchPoint}, nil
	default:
		return nil, fmt.Errorf("game: unknown command type %q", c.Type)
	}
}

// CommandOf converts an Action into its wire form.
func CommandOf(a Action) Command {
	switch v := a.(type) {
	case Move:
		return Command{Type: CommandMove, Move: &MoveCommand{Direction: v.Direction, Distance: v.Distance}}
	case UseSkill:
		return Command{Type: CommandUseSkill, Slot: &SlotCommand{Index: v.Index, Target: v.Target}}
	case UseItem:
		return Command{Type: CommandUseItem, Slot: &SlotCommand{Index: v.Index}}
	case Tap:
		return Command{Type: CommandTap, Gesture: &GestureCommand{X1: v.X, Y1: v.Y, DurationMs: v.Duration.Milliseconds()}}
	case Swipe:
		return Command{Type: CommandSwipe, Gesture: &GestureCommand{X1: v.X1, Y1: v.Y1, X2: v.X2, Y2: v.Y2, DurationMs: v.Duration.Milliseconds()}}
	case Wait:
		return Command{Type: CommandWait, WaitMs: v.Duration.Milliseconds()}
	case Composite:
		subs := make([]Command, len(v.Actions))
		for i, sub := range v.Actions {
			subs[i] = CommandOf(sub)
		}
		return Command{Type: CommandComposite, Actions: subs}
	case MultiTouch:
		return Command{Type: CommandMultiTouch, TouchPoint: v.Points}
	default:
		return Command{}
	}
}
