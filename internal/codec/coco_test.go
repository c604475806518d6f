package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
)

const cocoSample = `{
  "images": [
    {"id": 7, "file_name": "a.jpg", "width": 100, "height": 80},
    {"id": 8, "file_name": "b.jpg", "width": 50, "height": 50},
    {"id": 9, "file_name": "empty.jpg", "width": 10, "height": 10}
  ],
  "categories": [
    {"id": 1, "name": "car", "supercategory": "vehicle"},
    {"id": 3, "name": "person", "supercategory": "human"}
  ],
  "annotations": [
    {"id": 1, "image_id": 7, "category_id": 1, "bbox": [10, 20, 30, 40], "segmentation": [], "iscrowd": 0},
    {"id": 2, "image_id": 7, "category_id": 3, "bbox": [0, 0, 10, 10], "segmentation": [[0, 0, 10, 0, 10, 10]], "iscrowd": 0},
    {"id": 3, "image_id": 8, "category_id": 3, "bbox": [1, 2, 3, 4], "segmentation": [5, 5, 9, 5, 9, 9], "score": 0.75},
    {"id": 4, "image_id": 99, "category_id": 1, "bbox": [1, 1, 1, 1]},
    {"id": 5, "image_id": 8, "category_id": 42, "bbox": [1, 1, 1, 1]},
    {"id": 6, "image_id": 8, "category_id": 1, "segmentation": {"counts": "abc", "size": [50, 50]}}
  ]
}`

func TestDecodeCOCO_Objects(t *testing.T) {
	f, err := DecodeCOCO(strings.NewReader(cocoSample))
	require.NoError(t, err)

	groups, skipped := f.Objects()
	assert.Equal(t, 3, skipped)
	require.Len(t, groups, 2)

	assert.Equal(t, "a.jpg", groups[0].FileName)
	require.Len(t, groups[0].Objects, 2)
	assert.Equal(t, "car", groups[0].Objects[0].ClassName)
	assert.Equal(t, domain.TypeBBox, groups[0].Objects[0].Type)
	assert.Equal(t, geometry.Rect{X: 10, Y: 20, Width: 30, Height: 40}, groups[0].Objects[0].Geometry.BBox)
	assert.Equal(t, domain.TypePolygon, groups[0].Objects[1].Type)
	assert.Len(t, groups[0].Objects[1].Geometry.Points, 3)

	assert.Equal(t, "b.jpg", groups[1].FileName)
	require.Len(t, groups[1].Objects, 1)
	obj := groups[1].Objects[0]
	assert.Equal(t, "person", obj.ClassName)
	assert.Equal(t, domain.TypePolygon, obj.Type)
	require.NotNil(t, obj.Confidence)
	assert.Equal(t, 0.75, *obj.Confidence)
}

func TestDecodeCOCO_Malformed(t *testing.T) {
	_, err := DecodeCOCO(strings.NewReader(`{"images": [`))
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestEncodeCOCO(t *testing.T) {
	classes := domain.ClassList{{ID: 0, Name: "car"}, {ID: 1, Name: "person"}}
	img := &domain.Image{Filename: "img.jpg", Width: 100, Height: 100}
	set := ExportSet{
		Info:    map[string]any{"description": "test"},
		Classes: classes,
		Images: []ExportImage{{
			Image: img,
			Annotations: []*domain.Annotation{
				{ClassID: 0, ClassName: "car", Type: domain.TypeBBox, Geometry: domain.Geometry{BBox: geometry.Rect{X: 10, Y: 10, Width: 20, Height: 30}}},
				{ClassID: 1, ClassName: "person", Type: domain.TypePolygon, Geometry: domain.Geometry{Points: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}}},
				{ClassID: 1, ClassName: "person", Type: domain.TypeClassify},
			},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeCOCO(&buf, set))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Len(t, doc["images"], 1)
	assert.Equal(t, []any{}, doc["licenses"])

	f, err := DecodeCOCO(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, f.Annotations, 2)
	assert.Equal(t, int64(1), f.Annotations[0].ID)
	assert.Equal(t, int64(2), f.Annotations[1].ID)
	assert.Equal(t, int64(1), f.Annotations[0].CategoryID)
	assert.Equal(t, int64(2), f.Annotations[1].CategoryID)
	assert.Equal(t, []float64{10, 10, 20, 30}, f.Annotations[0].BBox)
	assert.Equal(t, 600.0, f.Annotations[0].Area)
	assert.JSONEq(t, `[]`, string(f.Annotations[0].Segmentation))
	assert.Equal(t, 100.0, f.Annotations[1].Area)
	assert.JSONEq(t, `[[0,0,10,0,10,10,0,10]]`, string(f.Annotations[1].Segmentation))

	want := []COCOCategory{
		{ID: 1, Name: "car", Supercategory: "object"},
		{ID: 2, Name: "person", Supercategory: "object"},
	}
	if diff := cmp.Diff(want, f.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}

	groups, skipped := f.Objects()
	assert.Zero(t, skipped)
	require.Len(t, groups, 1)
	assert.Equal(t, "img.jpg", groups[0].FileName)
	require.Len(t, groups[0].Objects, 2)
	assert.Equal(t, "car", groups[0].Objects[0].ClassName)
	assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 20, Height: 30}, groups[0].Objects[0].Geometry.BBox)
	assert.Equal(t, domain.TypePolygon, groups[0].Objects[1].Type)
}

func TestBuildCOCO_Keypoints(t *testing.T) {
	f := BuildCOCO(ExportSet{
		Classes: domain.ClassList{{ID: 0, Name: "person"}},
		Images: []ExportImage{{
			Image: &domain.Image{Filename: "p.jpg", Width: 10, Height: 10},
			Annotations: []*domain.Annotation{{
				Type: domain.TypeKeypoint,
				Geometry: domain.Geometry{
					BBox:      geometry.Rect{Width: 10, Height: 10},
					Keypoints: []domain.Keypoint{{X: 1, Y: 2, V: 2}, {X: 0, Y: 0, V: 0}},
				},
			}},
		}},
	})
	require.Len(t, f.Annotations, 1)
	assert.Equal(t, []float64{1, 2, 2, 0, 0, 0}, f.Annotations[0].Keypoints)
	assert.Equal(t, 1, f.Annotations[0].NumKeypoints)
	assert.NotNil(t, f.Info)

	groups, _ := f.Objects()
	require.Len(t, groups, 1)
	assert.Equal(t, domain.TypeKeypoint, groups[0].Objects[0].Type)
	assert.Len(t, groups[0].Objects[0].Geometry.Keypoints, 2)
}
