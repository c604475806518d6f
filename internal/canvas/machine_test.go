package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
)

var testClasses = domain.ClassList{{ID: 0, Name: "car"}, {ID: 1, Name: "person"}}

// newMachine loads a w×h image into a view of the same size (scale 1, no offset)
func newMachine(t *testing.T, w, h float64, anns ...*domain.Annotation) *Machine {
	t.Helper()
	m := New(Config{})
	m.SetClasses(testClasses)
	m.Load(geometry.Size{Width: w, Height: h}, geometry.Size{Width: w, Height: h}, anns)
	require.InDelta(t, 1.0, m.View().Scale(), 1e-12)
	return m
}

func box(id int64, x, y, w, h float64) *domain.Annotation {
	return &domain.Annotation{
		ID:       id,
		Type:     domain.TypeBBox,
		Geometry: domain.Geometry{BBox: geometry.Rect{X: x, Y: y, Width: w, Height: h}},
	}
}

func run(m *Machine, events ...Event) []Effect {
	var all []Effect
	for _, ev := range events {
		_, effects := m.Handle(ev)
		all = append(all, effects...)
	}
	return all
}

func TestMachine_Rectangle(t *testing.T) {
	tests := []struct {
		name     string
		from, to geometry.Point
		want     *geometry.Rect
	}{
		{"drag down-right", geometry.Pt(10, 10), geometry.Pt(50, 40), &geometry.Rect{X: 10, Y: 10, Width: 40, Height: 30}},
		{"drag up-left normalizes", geometry.Pt(50, 40), geometry.Pt(10, 10), &geometry.Rect{X: 10, Y: 10, Width: 40, Height: 30}},
		{"clamped to image", geometry.Pt(-20, -20), geometry.Pt(30, 30), &geometry.Rect{X: 0, Y: 0, Width: 30, Height: 30}},
		{"too thin is discarded", geometry.Pt(10, 10), geometry.Pt(12, 30), nil},
		{"outside image is discarded", geometry.Pt(-50, -50), geometry.Pt(-10, -10), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(t, 1000, 1000)

			state, _ := m.Handle(Down(tt.from.X, tt.from.Y))
			assert.Equal(t, DrawingBox, state)
			run(m, Move(tt.to.X, tt.to.Y))
			state, effects := m.Handle(Up(tt.to.X, tt.to.Y))
			assert.Equal(t, Idle, state)

			if tt.want == nil {
				assert.Empty(t, effects)
				assert.Empty(t, m.Annotations())
				return
			}
			require.Len(t, effects, 1)
			assert.Equal(t, CreateAnnotation, effects[0].Kind)
			assert.Equal(t, domain.TypeBBox, effects[0].Annotation.Type)
			assert.Equal(t, *tt.want, effects[0].Annotation.Geometry.BBox)
			assert.Equal(t, "car", effects[0].Annotation.ClassName)
		})
	}

	t.Run("scaled view converts to image space", func(t *testing.T) {
		m := New(Config{})
		m.Load(geometry.Size{Width: 2000, Height: 2000}, geometry.Size{Width: 1000, Height: 1000}, nil)

		effects := run(m, Down(10, 10), Move(50, 40), Up(50, 40))
		require.Len(t, effects, 1)
		assert.Equal(t, geometry.Rect{X: 20, Y: 20, Width: 80, Height: 60}, effects[0].Annotation.Geometry.BBox)
	})
}

func TestMachine_Polygon(t *testing.T) {
	t.Run("double click commits", func(t *testing.T) {
		m := newMachine(t, 100, 100)
		m.SetTool(ToolPolygon)

		effects := run(m, Down(10, 10), Down(50, 10), Down(30, 40), Down(30, 40), Event{Kind: DoubleClick, Pos: geometry.Pt(30, 40)})
		require.Len(t, effects, 1)
		assert.Equal(t, domain.TypePolygon, effects[0].Annotation.Type)
		assert.Equal(t, []geometry.Point{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 30, Y: 40}}, effects[0].Annotation.Geometry.Points)
		assert.Equal(t, Idle, m.State())
	})

	t.Run("enter needs three vertices", func(t *testing.T) {
		m := newMachine(t, 100, 100)
		m.SetTool(ToolPolygon)

		effects := run(m, Down(10, 10), Down(50, 10), Key("Enter"))
		assert.Empty(t, effects)
		assert.Equal(t, DrawingPolygon, m.State())

		effects = run(m, Down(120, 150), Key("Enter"))
		require.Len(t, effects, 1)
		assert.Equal(t, geometry.Pt(100, 100), effects[0].Annotation.Geometry.Points[2])
	})

	t.Run("escape clears", func(t *testing.T) {
		m := newMachine(t, 100, 100)
		m.SetTool(ToolPolygon)

		run(m, Down(10, 10), Down(50, 10), Down(30, 40), Key("Escape"))
		assert.Equal(t, Idle, m.State())
		assert.Empty(t, m.Snapshot().DraftPolygon)
		assert.Empty(t, run(m, Key("Enter")))
	})

	t.Run("switching tool resets draft", func(t *testing.T) {
		m := newMachine(t, 100, 100)
		m.SetTool(ToolPolygon)
		run(m, Down(10, 10), Down(50, 10))

		m.SetTool(ToolRectangle)
		assert.Equal(t, Idle, m.State())
		assert.Empty(t, m.Snapshot().DraftPolygon)
	})
}

func TestMachine_ResizeNormalization(t *testing.T) {
	orig := geometry.Rect{X: 100, Y: 100, Width: 50, Height: 40}

	for _, h := range geometry.Handles {
		t.Run(h.String(), func(t *testing.T) {
			m := newMachine(t, 400, 400, box(1, orig.X, orig.Y, orig.Width, orig.Height))
			m.SetTool(ToolMove)

			// select without moving
			effects := run(m, Down(125, 120), Up(125, 120))
			require.Len(t, effects, 1)
			assert.Equal(t, SelectAnnotation, effects[0].Kind)

			corner := orig.Corner(h)
			anchor := orig.Corner(h.Opposite())
			state, _ := m.Handle(Down(corner.X, corner.Y))
			require.Equal(t, Resizing, state)

			// drag 30px past the opposite corner
			target := geometry.Pt(anchor.X+sign(anchor.X-corner.X)*30, anchor.Y+sign(anchor.Y-corner.Y)*30)
			run(m, Move(target.X, target.Y))
			got := m.Selected().Geometry.BBox
			assert.GreaterOrEqual(t, got.Width, 0.0)
			assert.GreaterOrEqual(t, got.Height, 0.0)

			effects = run(m, Up(target.X, target.Y))
			require.Len(t, effects, 1)
			assert.Equal(t, UpdateAnnotation, effects[0].Kind)

			want := geometry.RectFromCorners(anchor, target)
			assert.Equal(t, want, effects[0].Annotation.Geometry.BBox)
			assert.Equal(t, 30.0, want.Width)
			assert.Equal(t, 30.0, want.Height)
			assert.Equal(t, int64(1), effects[0].Annotation.ID)
		})
	}

	t.Run("clamped to image", func(t *testing.T) {
		m := newMachine(t, 200, 200, box(1, 100, 100, 50, 40))
		m.SetTool(ToolMove)
		run(m, Down(125, 120), Up(125, 120))

		effects := run(m, Down(150, 140), Move(900, 900), Up(900, 900))
		require.Len(t, effects, 1)
		assert.Equal(t, geometry.Rect{X: 100, Y: 100, Width: 100, Height: 100}, effects[0].Annotation.Geometry.BBox)
	})
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func TestMachine_Dragging(t *testing.T) {
	m := newMachine(t, 100, 100, box(1, 10, 10, 20, 20))
	m.SetTool(ToolMove)

	state, effects := m.Handle(Down(15, 15))
	assert.Equal(t, Dragging, state)
	require.Len(t, effects, 1)
	assert.Equal(t, SelectAnnotation, effects[0].Kind)

	run(m, Move(20, 25))
	assert.Equal(t, geometry.Rect{X: 15, Y: 20, Width: 20, Height: 20}, m.Selected().Geometry.BBox)

	effects = run(m, Move(-100, 500), Up(-100, 500))
	require.Len(t, effects, 1)
	assert.Equal(t, UpdateAnnotation, effects[0].Kind)
	assert.Equal(t, geometry.Rect{X: 0, Y: 80, Width: 20, Height: 20}, effects[0].Annotation.Geometry.BBox)

	t.Run("polygon moves every vertex", func(t *testing.T) {
		poly := &domain.Annotation{ID: 2, Type: domain.TypePolygon, Geometry: domain.Geometry{
			Points: []geometry.Point{{X: 10, Y: 10}, {X: 30, Y: 10}, {X: 20, Y: 30}},
		}}
		m := newMachine(t, 100, 100, poly)
		m.SetTool(ToolMove)

		effects := run(m, Down(20, 15), Move(25, 20), Up(25, 20))
		require.Len(t, effects, 2)
		assert.Equal(t, []geometry.Point{{X: 15, Y: 15}, {X: 35, Y: 15}, {X: 25, Y: 35}}, effects[1].Annotation.Geometry.Points)
	})

	t.Run("escape restores", func(t *testing.T) {
		m := newMachine(t, 100, 100, box(1, 10, 10, 20, 20))
		m.SetTool(ToolMove)

		run(m, Down(15, 15), Move(40, 40), Key("Escape"))
		assert.Equal(t, Idle, m.State())
		assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 20, Height: 20}, m.Selected().Geometry.BBox)
	})
}

func TestMachine_HitOrder(t *testing.T) {
	m := newMachine(t, 100, 100, box(1, 0, 0, 50, 50), box(2, 20, 20, 50, 50))
	m.SetTool(ToolMove)

	effects := run(m, Down(30, 30), Up(30, 30))
	require.Len(t, effects, 1)
	assert.Equal(t, int64(2), effects[0].Annotation.ID)
}

func TestMachine_Panning(t *testing.T) {
	m := newMachine(t, 100, 100, box(1, 0, 0, 10, 10))
	m.SetTool(ToolMove)

	state, _ := m.Handle(Down(90, 90))
	assert.Equal(t, Panning, state)

	effects := run(m, Move(95, 80))
	require.Len(t, effects, 1)
	assert.Equal(t, ViewChanged, effects[0].Kind)
	assert.Equal(t, geometry.Pt(5, -10), m.View().Offset())

	state, effects = m.Handle(Up(95, 80))
	assert.Equal(t, Idle, state)
	assert.Empty(t, effects)

	t.Run("middle button pans with any tool", func(t *testing.T) {
		m := newMachine(t, 100, 100)
		state, _ := m.Handle(Event{Kind: PointerDown, Pos: geometry.Pt(10, 10), Button: ButtonMiddle})
		assert.Equal(t, Panning, state)
	})
}

func TestMachine_Keys(t *testing.T) {
	t.Run("delete removes selection", func(t *testing.T) {
		m := newMachine(t, 100, 100, box(1, 10, 10, 20, 20), box(2, 60, 60, 20, 20))
		m.SetTool(ToolMove)
		run(m, Down(15, 15), Up(15, 15))

		effects := run(m, Key("Delete"))
		require.Len(t, effects, 1)
		assert.Equal(t, DeleteAnnotation, effects[0].Kind)
		assert.Equal(t, int64(1), effects[0].Annotation.ID)
		require.Len(t, m.Annotations(), 1)
		assert.Equal(t, int64(2), m.Annotations()[0].ID)
		assert.Nil(t, m.Selected())

		assert.Empty(t, run(m, Key("Delete")))
	})

	t.Run("digits select classes", func(t *testing.T) {
		m := newMachine(t, 100, 100)

		effects := run(m, Key("2"))
		require.Len(t, effects, 1)
		assert.Equal(t, SelectClass, effects[0].Kind)
		assert.Equal(t, 1, effects[0].Index)
		assert.Equal(t, 1, m.ActiveClass())

		assert.Empty(t, run(m, Key("9")))

		created := run(m, Down(10, 10), Up(40, 40))
		require.Len(t, created, 1)
		assert.Equal(t, 1, created[0].Annotation.ClassID)
		assert.Equal(t, "person", created[0].Annotation.ClassName)
	})

	t.Run("tool keys", func(t *testing.T) {
		m := newMachine(t, 100, 100)
		run(m, Key("p"))
		assert.Equal(t, ToolPolygon, m.Tool())
		run(m, Key("V"))
		assert.Equal(t, ToolMove, m.Tool())
	})

	t.Run("reset view", func(t *testing.T) {
		m := newMachine(t, 100, 100)
		run(m, Event{Kind: Wheel, Pos: geometry.Pt(50, 50), Steps: 1})
		assert.InDelta(t, 1.1, m.View().Scale(), 1e-9)

		effects := run(m, Key("r"))
		require.Len(t, effects, 1)
		assert.InDelta(t, 1.0, m.View().Scale(), 1e-9)
	})

	t.Run("navigation", func(t *testing.T) {
		m := newMachine(t, 100, 100)
		effects := run(m, Key("d"), Key("a"))
		require.Len(t, effects, 2)
		assert.Equal(t, NavigateImage, effects[0].Kind)
		assert.Equal(t, 1, effects[0].Index)
		assert.Equal(t, -1, effects[1].Index)
	})
}

func TestMachine_NotLoaded(t *testing.T) {
	m := New(Config{})

	state, effects := m.Handle(Down(10, 10))
	assert.Equal(t, Idle, state)
	assert.Empty(t, effects)

	state, effects = m.Handle(Up(50, 50))
	assert.Equal(t, Idle, state)
	assert.Empty(t, effects)
}

func TestMachine_Subscribe(t *testing.T) {
	m := newMachine(t, 100, 100)

	var snaps []Snapshot
	m.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })

	run(m, Down(10, 10), Move(30, 20))
	require.Len(t, snaps, 2)

	last := snaps[1]
	assert.Equal(t, DrawingBox, last.State)
	require.NotNil(t, last.DraftBox)
	assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 20, Height: 10}, *last.DraftBox)
}

func TestMachine_Resize(t *testing.T) {
	m := newMachine(t, 100, 100)
	effects := run(m, Event{Kind: Resize, Size: geometry.Size{Width: 50, Height: 50}})
	require.Len(t, effects, 1)
	assert.InDelta(t, 0.5, m.View().Scale(), 1e-12)
}
