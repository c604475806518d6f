// Package canvas implements the annotation interaction state machine. It
// holds only geometry and mode state; rendering surfaces subscribe to
// snapshots and persistence applies the returned effects.
package canvas

import (
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
	"github.com/lewtec/demarca/internal/viewport"
)

// State is the interaction state
type State int

const (
	Idle State = iota
	DrawingBox
	DrawingPolygon
	Dragging
	Resizing
	Panning
)

func (s State) String() string {
	switch s {
	case DrawingBox:
		return "drawing_box"
	case DrawingPolygon:
		return "drawing_polygon"
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	case Panning:
		return "panning"
	default:
		return "idle"
	}
}

// Tool is the active annotation tool
type Tool int

const (
	ToolRectangle Tool = iota
	ToolPolygon
	ToolMove
)

func (t Tool) String() string {
	switch t {
	case ToolPolygon:
		return "polygon"
	case ToolMove:
		return "move"
	default:
		return "rectangle"
	}
}

const (
	DefaultHandleSize = 8.0
	DefaultMinBoxSize = 5.0
)

// Config tunes the machine. Zero values fall back to the defaults.
type Config struct {
	// HandleSize is the half-width of a resize handle, in view pixels.
	HandleSize float64
	// MinBoxSize is the smallest committed box side, in image pixels.
	MinBoxSize float64
	MinScale   float64
	MaxScale   float64
	Keymap     Keymap
}

// Snapshot is the render state pushed to subscribers. Draft geometry is in
// view space; annotations are in image space.
type Snapshot struct {
	State        State
	Tool         Tool
	Selected     int
	ActiveClass  int
	Annotations  []*domain.Annotation
	DraftBox     *geometry.Rect
	DraftPolygon []geometry.Point
	Cursor       geometry.Point
	Scale        float64
	Offset       geometry.Point
}

// Machine is the interaction state machine. It is not safe for concurrent
// use; drive it from the UI goroutine.
type Machine struct {
	cfg  Config
	view *viewport.Viewport

	state State
	tool  Tool

	annotations []*domain.Annotation
	selected    int
	classes     domain.ClassList
	activeClass int

	cursor  geometry.Point
	start   geometry.Point
	polygon []geometry.Point

	handle   geometry.Handle
	anchor   geometry.Point
	grab     geometry.Point
	original domain.Geometry
	panLast  geometry.Point

	subscribers []func(Snapshot)
}

// New creates a machine with no image loaded
func New(cfg Config) *Machine {
	if cfg.HandleSize <= 0 {
		cfg.HandleSize = DefaultHandleSize
	}
	if cfg.MinBoxSize <= 0 {
		cfg.MinBoxSize = DefaultMinBoxSize
	}
	if cfg.Keymap == nil {
		cfg.Keymap = DefaultKeymap()
	}
	return &Machine{
		cfg:      cfg,
		view:     viewport.New(cfg.MinScale, cfg.MaxScale),
		selected: -1,
	}
}

// Subscribe registers fn to receive a snapshot after every handled event
func (m *Machine) Subscribe(fn func(Snapshot)) {
	m.subscribers = append(m.subscribers, fn)
}

// Load fits a new image into the view and replaces the working set
func (m *Machine) Load(image, view geometry.Size, annotations []*domain.Annotation) {
	m.view.Reset(image, view)
	m.reset()
	m.selected = -1
	m.SetAnnotations(annotations)
}

// Unload drops the current image. Pointer events are ignored until the next Load.
func (m *Machine) Unload() {
	m.view.Unload()
	m.reset()
	m.selected = -1
	m.annotations = nil
	m.notify()
}

// SetAnnotations replaces the working set with copies of annotations, keeping
// the selection when the selected annotation is still present.
func (m *Machine) SetAnnotations(annotations []*domain.Annotation) {
	var selectedID int64
	if m.selected >= 0 && m.selected < len(m.annotations) {
		selectedID = m.annotations[m.selected].ID
	}
	m.annotations = make([]*domain.Annotation, len(annotations))
	m.selected = -1
	for i, a := range annotations {
		m.annotations[i] = a.Clone()
		if selectedID != 0 && a.ID == selectedID {
			m.selected = i
		}
	}
	m.notify()
}

// SetAnnotationID records the store id of the annotation at index, once a
// CreateAnnotation effect has been persisted.
func (m *Machine) SetAnnotationID(index int, id int64) {
	if index >= 0 && index < len(m.annotations) {
		m.annotations[index].ID = id
	}
}

// SetClasses sets the class list used by the digit keys. The active class is
// kept when it still exists.
func (m *Machine) SetClasses(classes domain.ClassList) {
	m.classes = classes
	if _, ok := classes.ByID(m.activeClass); !ok && len(classes) > 0 {
		m.activeClass = classes[0].ID
	}
}

// SetActiveClass sets the class new annotations are drawn with
func (m *Machine) SetActiveClass(id int) {
	m.activeClass = id
}

// SetTool switches the active tool, discarding any in-progress gesture
func (m *Machine) SetTool(t Tool) {
	m.setTool(t)
	m.notify()
}

func (m *Machine) setTool(t Tool) {
	m.tool = t
	m.reset()
}

func (m *Machine) State() State                      { return m.state }
func (m *Machine) Tool() Tool                        { return m.tool }
func (m *Machine) ActiveClass() int                  { return m.activeClass }
func (m *Machine) View() *viewport.Viewport          { return m.view }
func (m *Machine) Annotations() []*domain.Annotation { return m.annotations }

// Selected returns the selected annotation or nil
func (m *Machine) Selected() *domain.Annotation {
	if m.selected < 0 || m.selected >= len(m.annotations) {
		return nil
	}
	return m.annotations[m.selected]
}

// Snapshot returns the current render state
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:       m.state,
		Tool:        m.tool,
		Selected:    m.selected,
		ActiveClass: m.activeClass,
		Annotations: m.annotations,
		Cursor:      m.cursor,
		Scale:       m.view.Scale(),
		Offset:      m.view.Offset(),
	}
	switch m.state {
	case DrawingBox:
		r := geometry.RectFromCorners(m.start, m.cursor)
		s.DraftBox = &r
	case DrawingPolygon:
		s.DraftPolygon = append([]geometry.Point(nil), m.polygon...)
	}
	return s
}

// Handle feeds one event through the machine and returns the resulting state
// and the effects the caller must apply. Invalid gestures produce no effects.
func (m *Machine) Handle(ev Event) (State, []Effect) {
	var effects []Effect
	switch ev.Kind {
	case PointerDown:
		effects = m.pointerDown(ev)
	case PointerMove:
		effects = m.pointerMove(ev)
	case PointerUp:
		effects = m.pointerUp(ev)
	case DoubleClick:
		if m.state == DrawingPolygon {
			effects = m.commitPolygon()
		}
	case KeyPress:
		effects = m.keyPress(ev)
	case Wheel:
		if m.view.ZoomWheel(ev.Pos, ev.Steps) {
			effects = append(effects, Effect{Kind: ViewChanged})
		}
	case Resize:
		m.view.Resize(ev.Size)
		m.reset()
		effects = append(effects, Effect{Kind: ViewChanged})
	}
	m.notify()
	return m.state, effects
}

func (m *Machine) notify() {
	if len(m.subscribers) == 0 {
		return
	}
	snap := m.Snapshot()
	for _, fn := range m.subscribers {
		fn(snap)
	}
}

// reset abandons the gesture in progress, restoring a dragged or resized
// annotation to its original geometry.
func (m *Machine) reset() {
	if (m.state == Dragging || m.state == Resizing) && m.Selected() != nil {
		m.Selected().Geometry = m.original
	}
	m.state = Idle
	m.polygon = nil
	m.handle = geometry.HandleNone
}

func (m *Machine) pointerDown(ev Event) []Effect {
	if !m.view.Loaded() {
		return nil
	}
	m.cursor = ev.Pos
	if ev.Button == ButtonMiddle {
		if m.state == Idle {
			m.state = Panning
			m.panLast = ev.Pos
		}
		return nil
	}
	if ev.Button != ButtonLeft {
		return nil
	}

	switch m.tool {
	case ToolRectangle:
		if m.state != Idle {
			return nil
		}
		m.state = DrawingBox
		m.start = ev.Pos
	case ToolPolygon:
		if m.state != Idle && m.state != DrawingPolygon {
			return nil
		}
		m.state = DrawingPolygon
		m.polygon = append(m.polygon, ev.Pos)
	case ToolMove:
		if m.state != Idle {
			return nil
		}
		return m.moveDown(ev.Pos)
	}
	return nil
}

func (m *Machine) moveDown(pos geometry.Point) []Effect {
	if sel := m.Selected(); sel != nil && sel.Type == domain.TypeBBox {
		box := m.view.ToViewRect(sel.Geometry.BBox)
		if h := geometry.HandleAt(pos, box, m.cfg.HandleSize); h != geometry.HandleNone {
			m.state = Resizing
			m.handle = h
			m.anchor = sel.Geometry.BBox.Corner(h.Opposite())
			m.original = sel.Geometry.Translate(geometry.Point{})
			return nil
		}
	}

	for i := len(m.annotations) - 1; i >= 0; i-- {
		if !m.hitView(m.annotations[i], pos) {
			continue
		}
		grab, _ := m.view.ToImage(pos)
		m.state = Dragging
		m.grab = grab
		m.original = m.annotations[i].Geometry.Translate(geometry.Point{})
		if m.selected == i {
			return nil
		}
		m.selected = i
		return []Effect{{Kind: SelectAnnotation, Index: i, Annotation: m.annotations[i]}}
	}

	m.state = Panning
	m.panLast = pos
	if m.selected >= 0 {
		m.selected = -1
		return []Effect{{Kind: SelectAnnotation, Index: -1}}
	}
	return nil
}

// hitView tests containment in view space
func (m *Machine) hitView(a *domain.Annotation, pos geometry.Point) bool {
	switch a.Type {
	case domain.TypeClassify:
		return false
	case domain.TypePolygon:
		points := make([]geometry.Point, len(a.Geometry.Points))
		for i, p := range a.Geometry.Points {
			points[i] = m.view.ToView(p)
		}
		return geometry.PointInPolygon(pos, points)
	default:
		return m.view.ToViewRect(a.Geometry.BBox).Contains(pos)
	}
}

func (m *Machine) pointerMove(ev Event) []Effect {
	if !m.view.Loaded() {
		return nil
	}
	m.cursor = ev.Pos
	img := m.view.ImageSize()
	if (m.state == Dragging || m.state == Resizing) && m.Selected() == nil {
		m.state = Idle
		return nil
	}

	switch m.state {
	case Panning:
		m.view.Pan(ev.Pos.Sub(m.panLast))
		m.panLast = ev.Pos
		return []Effect{{Kind: ViewChanged}}
	case Dragging:
		sel := m.Selected()
		p, _ := m.view.ToImage(ev.Pos)
		bounds := (&domain.Annotation{Type: sel.Type, Geometry: m.original}).Bounds()
		d := geometry.ClampDelta(bounds, p.Sub(m.grab), img.Width, img.Height)
		sel.Geometry = m.original.Translate(d)
	case Resizing:
		sel := m.Selected()
		p, _ := m.view.ToImage(ev.Pos)
		sel.Geometry.BBox = geometry.RectFromCorners(m.anchor, p.Clamp(img.Width, img.Height))
	}
	return nil
}

func (m *Machine) pointerUp(ev Event) []Effect {
	if !m.view.Loaded() {
		return nil
	}
	m.cursor = ev.Pos

	switch m.state {
	case DrawingBox:
		m.state = Idle
		return m.commitBox(m.start, ev.Pos)
	case Dragging, Resizing:
		m.pointerMove(ev)
		sel := m.Selected()
		if sel == nil {
			return nil
		}
		changed := !sameGeometry(sel.Geometry, m.original)
		m.state = Idle
		m.handle = geometry.HandleNone
		if !changed {
			return nil
		}
		return []Effect{{Kind: UpdateAnnotation, Annotation: sel.Clone(), Index: m.selected}}
	case Panning:
		m.state = Idle
	}
	return nil
}

func (m *Machine) commitBox(a, b geometry.Point) []Effect {
	ia, _ := m.view.ToImage(a)
	ib, _ := m.view.ToImage(b)
	img := m.view.ImageSize()
	box := geometry.RectFromCorners(ia, ib).ClampTo(img.Width, img.Height)
	if box.Width < m.cfg.MinBoxSize || box.Height < m.cfg.MinBoxSize {
		return nil
	}
	return m.create(domain.TypeBBox, domain.Geometry{BBox: box})
}

func (m *Machine) commitPolygon() []Effect {
	img := m.view.ImageSize()
	var points []geometry.Point
	for _, v := range m.polygon {
		p, _ := m.view.ToImage(v)
		p = p.Clamp(img.Width, img.Height)
		// a double click repeats the last vertex
		if n := len(points); n > 0 && points[n-1] == p {
			continue
		}
		points = append(points, p)
	}
	if len(points) < 3 {
		return nil
	}
	m.polygon = nil
	m.state = Idle
	return m.create(domain.TypePolygon, domain.Geometry{Points: points})
}

func (m *Machine) create(typ domain.AnnotationType, g domain.Geometry) []Effect {
	a := &domain.Annotation{
		ClassID:   m.activeClass,
		ClassName: m.classes.NameOf(m.activeClass),
		Type:      typ,
		Geometry:  g,
	}
	m.annotations = append(m.annotations, a)
	m.selected = len(m.annotations) - 1
	return []Effect{{Kind: CreateAnnotation, Annotation: a.Clone(), Index: m.selected}}
}

func (m *Machine) keyPress(ev Event) []Effect {
	b, ok := m.cfg.Keymap.Lookup(ev.Key)
	if !ok {
		return nil
	}
	switch b.Action {
	case ActionToolRectangle:
		m.setTool(ToolRectangle)
	case ActionToolPolygon:
		m.setTool(ToolPolygon)
	case ActionToolMove:
		m.setTool(ToolMove)
	case ActionCancel:
		if m.state == Idle && m.selected >= 0 {
			m.selected = -1
			return []Effect{{Kind: SelectAnnotation, Index: -1}}
		}
		m.reset()
	case ActionCommit:
		if m.state == DrawingPolygon {
			return m.commitPolygon()
		}
	case ActionDelete:
		sel := m.Selected()
		if sel == nil || m.state != Idle {
			return nil
		}
		m.annotations = append(m.annotations[:m.selected:m.selected], m.annotations[m.selected+1:]...)
		m.selected = -1
		return []Effect{{Kind: DeleteAnnotation, Annotation: sel}}
	case ActionSelectClass:
		if b.Index >= len(m.classes) {
			return nil
		}
		m.activeClass = m.classes[b.Index].ID
		return []Effect{{Kind: SelectClass, Index: m.activeClass}}
	case ActionResetView:
		if !m.view.Loaded() {
			return nil
		}
		m.view.Reset(m.view.ImageSize(), m.view.ViewSize())
		return []Effect{{Kind: ViewChanged}}
	case ActionPrevImage:
		if m.state != Idle {
			return nil
		}
		return []Effect{{Kind: NavigateImage, Index: -1}}
	case ActionNextImage:
		if m.state != Idle {
			return nil
		}
		return []Effect{{Kind: NavigateImage, Index: 1}}
	}
	return nil
}

func sameGeometry(a, b domain.Geometry) bool {
	if a.BBox != b.BBox || a.Angle != b.Angle || len(a.Points) != len(b.Points) || len(a.Keypoints) != len(b.Keypoints) {
		return false
	}
	for i := range a.Points {
		if a.Points[i] != b.Points[i] {
			return false
		}
	}
	for i := range a.Keypoints {
		if a.Keypoints[i] != b.Keypoints[i] {
			return false
		}
	}
	return true
}
