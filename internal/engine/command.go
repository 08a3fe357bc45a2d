package engine

import (
	"fmt"
	"strconv"
)

// Phase marks where a scroll command sits inside a gesture. The numeric
// values are part of the wire protocol.
type Phase int

const (
	PhaseBegin  Phase = 0 // gesture starts, engine resets momentum
	PhaseUpdate Phase = 1 // continuation
	PhaseEnd    Phase = 2 // gesture ends
)

func (p Phase) String() string {
	switch p {
	case PhaseBegin:
		return "begin"
	case PhaseUpdate:
		return "update"
	case PhaseEnd:
		return "end"
	default:
		return "phase(" + strconv.Itoa(int(p)) + ")"
	}
}

// Kind identifies a command.
type Kind string

const (
	KindReload   Kind = "reload"
	KindStop     Kind = "stop"
	KindBack     Kind = "back"
	KindForward  Kind = "forward"
	KindNavigate Kind = "navigate"
	KindResize   Kind = "resize"
	KindScroll   Kind = "scroll"
	KindClick    Kind = "click"
	KindPump     Kind = "pump"
)

// Command is one unit of engine work. Commands are plain values so they can
// be queued, logged, compared in tests and sent over the wire.
type Command struct {
	Kind   Kind    `json:"kind"`
	URI    string  `json:"uri,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	DX     float64 `json:"dx,omitempty"`
	DY     float64 `json:"dy,omitempty"`
	X      int     `json:"x,omitempty"`
	Y      int     `json:"y,omitempty"`
	Phase  Phase   `json:"phase,omitempty"`
}

func Reload() Command    { return Command{Kind: KindReload} }
func Stop() Command      { return Command{Kind: KindStop} }
func GoBack() Command    { return Command{Kind: KindBack} }
func GoForward() Command { return Command{Kind: KindForward} }
func Pump() Command      { return Command{Kind: KindPump} }

func Navigate(uri string) Command {
	return Command{Kind: KindNavigate, URI: uri}
}

func Resize(width, height int) Command {
	return Command{Kind: KindResize, Width: width, Height: height}
}

func Scroll(dx, dy float64, x, y int, phase Phase) Command {
	return Command{Kind: KindScroll, DX: dx, DY: dy, X: x, Y: y, Phase: phase}
}

func Click(x, y int) Command {
	return Command{Kind: KindClick, X: x, Y: y}
}

// Apply runs the command against e.
func (c Command) Apply(e Engine) error {
	switch c.Kind {
	case KindReload:
		return e.Reload()
	case KindStop:
		return e.Stop()
	case KindBack:
		return e.GoBack()
	case KindForward:
		return e.GoForward()
	case KindNavigate:
		return e.LoadURI(c.URI)
	case KindResize:
		return e.Resize(c.Width, c.Height)
	case KindScroll:
		return e.Scroll(c.DX, c.DY, c.X, c.Y, c.Phase)
	case KindClick:
		return e.Click(c.X, c.Y)
	case KindPump:
		return e.PerformUpdates()
	default:
		return fmt.Errorf("engine: unknown command %q", c.Kind)
	}
}

func (c Command) String() string {
	switch c.Kind {
	case KindNavigate:
		return fmt.Sprintf("navigate(%s)", c.URI)
	case KindResize:
		return fmt.Sprintf("resize(%d,%d)", c.Width, c.Height)
	case KindScroll:
		return fmt.Sprintf("scroll(%g,%g,%s)", c.DX, c.DY, c.Phase)
	case KindClick:
		return fmt.Sprintf("click(%d,%d)", c.X, c.Y)
	default:
		return string(c.Kind)
	}
}
