package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/demarca/internal/geometry"
)

func TestClassList_Remove(t *testing.T) {
	classes := ClassList{
		{ID: 0, Name: "car"},
		{ID: 1, Name: "person"},
		{ID: 2, Name: "bike"},
		{ID: 3, Name: "truck"},
	}

	got, remap, err := classes.Remove(1)
	require.NoError(t, err)

	want := ClassList{
		{ID: 0, Name: "car"},
		{ID: 1, Name: "bike"},
		{ID: 2, Name: "truck"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Remove() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[int]int{0: 0, 2: 1, 3: 2}, remap)

	t.Run("unknown id", func(t *testing.T) {
		_, _, err := classes.Remove(9)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestClassList_Add(t *testing.T) {
	var classes ClassList
	classes, car := classes.Add("car", DefaultColor)
	classes, person := classes.Add("person", Color{G: 255})

	assert.Equal(t, 0, car.ID)
	assert.Equal(t, 1, person.ID)
	assert.Equal(t, "person", classes.NameOf(1))
	assert.Equal(t, "class_7", classes.NameOf(7))
	assert.NoError(t, classes.Validate())
}

func TestColor(t *testing.T) {
	c, err := ParseColor("#1a2B3c")
	require.NoError(t, err)
	assert.Equal(t, Color{R: 0x1a, G: 0x2b, B: 0x3c}, c)
	assert.Equal(t, "#1a2b3c", c.String())

	_, err = ParseColor("red")
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestAnnotation_DataRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ann  Annotation
		json string
	}{
		{
			name: "bbox",
			ann:  Annotation{Type: TypeBBox, Geometry: Geometry{BBox: geometry.Rect{X: 1, Y: 2, Width: 3, Height: 4}}},
			json: `{"x":1,"y":2,"width":3,"height":4}`,
		},
		{
			name: "polygon",
			ann:  Annotation{Type: TypePolygon, Geometry: Geometry{Points: []geometry.Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}}}},
			json: `{"points":[{"x":0,"y":0},{"x":5,"y":0},{"x":5,"y":5}]}`,
		},
		{
			name: "keypoint",
			ann: Annotation{Type: TypeKeypoint, Geometry: Geometry{
				BBox:      geometry.Rect{X: 1, Y: 1, Width: 2, Height: 2},
				Keypoints: []Keypoint{{X: 1.5, Y: 1.5, V: 2}},
			}},
			json: `{"x":1,"y":1,"width":2,"height":2,"keypoints":[{"x":1.5,"y":1.5,"v":2}]}`,
		},
		{
			name: "obb",
			ann:  Annotation{Type: TypeOBB, Geometry: Geometry{BBox: geometry.Rect{Width: 2, Height: 1}, Angle: 0.5}},
			json: `{"x":0,"y":0,"width":2,"height":1,"angle":0.5}`,
		},
		{
			name: "classify",
			ann:  Annotation{Type: TypeClassify, ClassID: 3},
			json: `{"class_id":3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.ann.MarshalData()
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			back := Annotation{Type: tt.ann.Type}
			require.NoError(t, back.UnmarshalData(data))
			if diff := cmp.Diff(tt.ann.Geometry, back.Geometry); diff != "" {
				t.Errorf("UnmarshalData() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnnotation_Attributes(t *testing.T) {
	conf := 0.87
	a := Annotation{Confidence: &conf, Attributes: map[string]any{"source": "detector"}}

	data, err := a.MarshalAttributes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"confidence":0.87,"source":"detector"}`, string(data))

	var back Annotation
	require.NoError(t, back.UnmarshalAttributes(data))
	require.NotNil(t, back.Confidence)
	assert.InDelta(t, 0.87, *back.Confidence, 1e-12)
	assert.Equal(t, map[string]any{"source": "detector"}, back.Attributes)
}

func TestAnnotation_Contains(t *testing.T) {
	box := Annotation{Type: TypeBBox, Geometry: Geometry{BBox: geometry.Rect{X: 10, Y: 10, Width: 20, Height: 20}}}
	assert.True(t, box.Contains(geometry.Pt(15, 15)))
	assert.False(t, box.Contains(geometry.Pt(100, 100)))

	tri := Annotation{Type: TypePolygon, Geometry: Geometry{Points: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}}}
	assert.True(t, tri.Contains(geometry.Pt(2, 2)))
	assert.False(t, tri.Contains(geometry.Pt(8, 8)))

	cls := Annotation{Type: TypeClassify}
	assert.False(t, cls.Contains(geometry.Pt(0, 0)))
}

func TestAnnotation_Validate(t *testing.T) {
	bad := Annotation{Type: TypePolygon, Geometry: Geometry{Points: []geometry.Point{{}, {}}}}
	assert.True(t, errors.Is(bad.Validate(), ErrMalformedInput))

	neg := Annotation{Type: TypeBBox, Geometry: Geometry{BBox: geometry.Rect{Width: -1}}}
	assert.True(t, errors.Is(neg.Validate(), ErrMalformedInput))

	unknown := Annotation{Type: "circle"}
	assert.Error(t, unknown.Validate())

	ok := Annotation{Type: TypeBBox, Geometry: Geometry{BBox: geometry.Rect{Width: 1, Height: 1}}}
	assert.NoError(t, ok.Validate())
}

func TestTask(t *testing.T) {
	task, err := ParseTask("")
	require.NoError(t, err)
	assert.Equal(t, TaskDetect, task)
	assert.Equal(t, TypeKeypoint, TaskPose.AnnotationType())

	_, err = ParseTask("depth")
	assert.Error(t, err)
}
