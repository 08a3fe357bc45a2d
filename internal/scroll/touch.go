package scroll

import (
	"fmt"
	"math"
	"time"
)

// Action is the kind of a touch event.
type Action int

const (
	ActionDown Action = iota
	ActionMove
	ActionUp
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionDown:
		return "down"
	case ActionMove:
		return "move"
	case ActionUp:
		return "up"
	case ActionCancel:
		return "cancel"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// TouchEvent is one pointer sample in surface pixels.
type TouchEvent struct {
	Action Action
	X, Y   float64
	Time   time.Time
}

func (e TouchEvent) String() string {
	return fmt.Sprintf("%s(%g,%g)", e.Action, e.X, e.Y)
}

func round(v float64) int {
	return int(math.Round(v))
}
