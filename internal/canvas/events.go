package canvas

import (
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
)

// EventKind is the kind of input event fed to the machine
type EventKind int

const (
	PointerDown EventKind = iota + 1
	PointerMove
	PointerUp
	DoubleClick
	KeyPress
	Wheel
	Resize
)

// Button identifies the pointer button of a pointer event
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// Event is a toolkit-independent input event. Pointer positions are in view
// space.
type Event struct {
	Kind   EventKind
	Pos    geometry.Point
	Button Button
	// Key is the raw key name of a KeyPress, resolved through the Keymap.
	Key string
	// Steps is the wheel rotation; positive zooms in.
	Steps float64
	// Size is the new view size of a Resize.
	Size geometry.Size
}

// Down is a left-button pointer-down at (x, y).
func Down(x, y float64) Event { return Event{Kind: PointerDown, Pos: geometry.Pt(x, y)} }

// Move is a pointer move to (x, y).
func Move(x, y float64) Event { return Event{Kind: PointerMove, Pos: geometry.Pt(x, y)} }

// Up is a left-button pointer-up at (x, y).
func Up(x, y float64) Event { return Event{Kind: PointerUp, Pos: geometry.Pt(x, y)} }

// Key is a key press of the raw key name.
func Key(name string) Event { return Event{Kind: KeyPress, Key: name} }

// EffectKind is the kind of side effect requested by a transition
type EffectKind int

const (
	CreateAnnotation EffectKind = iota + 1
	UpdateAnnotation
	DeleteAnnotation
	SelectAnnotation
	SelectClass
	ViewChanged
	NavigateImage
)

func (k EffectKind) String() string {
	switch k {
	case CreateAnnotation:
		return "create"
	case UpdateAnnotation:
		return "update"
	case DeleteAnnotation:
		return "delete"
	case SelectAnnotation:
		return "select"
	case SelectClass:
		return "select_class"
	case ViewChanged:
		return "view"
	case NavigateImage:
		return "navigate"
	}
	return "unknown"
}

// Effect is a side effect the owner of the machine must apply. Annotation is
// set for create, update and delete. Index is the working-set index for
// SelectAnnotation (-1 clears), the class id for SelectClass and the step for
// NavigateImage.
type Effect struct {
	Kind       EffectKind
	Annotation *domain.Annotation
	Index      int
}
