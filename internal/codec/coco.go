package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
)

// COCOFile is the subset of a COCO instances file this tool reads and writes
type COCOFile struct {
	Info        map[string]any   `json:"info,omitempty"`
	Licenses    []any            `json:"licenses"`
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

type COCOImage struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type COCOAnnotation struct {
	ID           int64           `json:"id"`
	ImageID      int64           `json:"image_id"`
	CategoryID   int64           `json:"category_id"`
	BBox         []float64       `json:"bbox"`
	Area         float64         `json:"area"`
	Segmentation json.RawMessage `json:"segmentation"`
	IsCrowd      int             `json:"iscrowd"`
	Keypoints    []float64       `json:"keypoints,omitempty"`
	NumKeypoints int             `json:"num_keypoints,omitempty"`
	Score        *float64        `json:"score,omitempty"`
}

type COCOCategory struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// ImageObjects groups decoded objects by image file name
type ImageObjects struct {
	FileName string
	Width    int
	Height   int
	Objects  []Object
}

// DecodeCOCO parses a COCO instances JSON document
func DecodeCOCO(r io.Reader) (*COCOFile, error) {
	var f COCOFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, malformed("while decoding coco json: %v", err)
	}
	return &f, nil
}

// Objects groups annotations by image in the order images are listed.
// Annotations pointing at unknown images or categories, or without usable
// geometry, are counted as skipped.
func (f *COCOFile) Objects() ([]ImageObjects, int) {
	categories := make(map[int64]string, len(f.Categories))
	for _, c := range f.Categories {
		categories[c.ID] = c.Name
	}
	index := make(map[int64]int, len(f.Images))
	groups := make([]ImageObjects, len(f.Images))
	for i, img := range f.Images {
		index[img.ID] = i
		groups[i] = ImageObjects{FileName: img.FileName, Width: img.Width, Height: img.Height}
	}

	skipped := 0
	for _, ann := range f.Annotations {
		i, ok := index[ann.ImageID]
		if !ok {
			skipped++
			continue
		}
		name, ok := categories[ann.CategoryID]
		if !ok {
			skipped++
			continue
		}
		obj, ok := cocoObject(ann)
		if !ok {
			skipped++
			continue
		}
		obj.ClassName = name
		groups[i].Objects = append(groups[i].Objects, obj)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Objects) > 0 {
			out = append(out, g)
		}
	}
	return out, skipped
}

func cocoObject(ann COCOAnnotation) (Object, bool) {
	obj := Object{ClassIndex: -1, Confidence: ann.Score}
	if points := cocoPolygon(ann.Segmentation); len(points) >= 3 {
		obj.Type = domain.TypePolygon
		obj.Geometry.Points = points
		return obj, true
	}
	if len(ann.BBox) != 4 || ann.BBox[2] < 0 || ann.BBox[3] < 0 {
		return Object{}, false
	}
	obj.Type = domain.TypeBBox
	obj.Geometry.BBox = geometry.Rect{X: ann.BBox[0], Y: ann.BBox[1], Width: ann.BBox[2], Height: ann.BBox[3]}
	if len(ann.Keypoints) >= 3 && len(ann.Keypoints)%3 == 0 {
		obj.Type = domain.TypeKeypoint
		for i := 0; i < len(ann.Keypoints); i += 3 {
			obj.Geometry.Keypoints = append(obj.Geometry.Keypoints, domain.Keypoint{
				X: ann.Keypoints[i],
				Y: ann.Keypoints[i+1],
				V: int(ann.Keypoints[i+2]),
			})
		}
	}
	return obj, true
}

// cocoPolygon reads the first ring of a polygon segmentation, accepting both
// [[x,y,...]] and [x,y,...]. RLE masks yield nil.
func cocoPolygon(raw json.RawMessage) []geometry.Point {
	if len(raw) == 0 {
		return nil
	}
	var rings [][]float64
	if err := json.Unmarshal(raw, &rings); err != nil || len(rings) == 0 {
		var flat []float64
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil
		}
		rings = [][]float64{flat}
	}
	ring := rings[0]
	if len(ring) < 6 || len(ring)%2 != 0 {
		return nil
	}
	points := make([]geometry.Point, 0, len(ring)/2)
	for i := 0; i < len(ring); i += 2 {
		points = append(points, geometry.Pt(ring[i], ring[i+1]))
	}
	return points
}

// ExportImage pairs an image with the annotations to export for it
type ExportImage struct {
	Image       *domain.Image
	Annotations []*domain.Annotation
}

// ExportSet is the input of the document encoders
type ExportSet struct {
	Info    map[string]any
	Classes domain.ClassList
	Images  []ExportImage
}

// BuildCOCO converts an export set to a COCO document. Image and annotation
// ids count from 1; category ids are class ids plus one. Classify
// annotations have no geometry in COCO and are left out.
func BuildCOCO(set ExportSet) *COCOFile {
	f := &COCOFile{
		Info:        set.Info,
		Licenses:    []any{},
		Images:      []COCOImage{},
		Annotations: []COCOAnnotation{},
		Categories:  []COCOCategory{},
	}
	if f.Info == nil {
		f.Info = map[string]any{"description": "demarca export", "version": "1.0"}
	}

	classes := append(domain.ClassList(nil), set.Classes...)
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	for _, c := range classes {
		f.Categories = append(f.Categories, COCOCategory{ID: int64(c.ID) + 1, Name: c.Name, Supercategory: "object"})
	}

	var annID int64
	for i, item := range set.Images {
		imageID := int64(i + 1)
		f.Images = append(f.Images, COCOImage{
			ID:       imageID,
			FileName: item.Image.Filename,
			Width:    item.Image.Width,
			Height:   item.Image.Height,
		})
		for _, a := range item.Annotations {
			if a.Type == domain.TypeClassify {
				continue
			}
			annID++
			f.Annotations = append(f.Annotations, cocoAnnotation(annID, imageID, a))
		}
	}
	return f
}

func cocoAnnotation(id, imageID int64, a *domain.Annotation) COCOAnnotation {
	out := COCOAnnotation{
		ID:           id,
		ImageID:      imageID,
		CategoryID:   int64(a.ClassID) + 1,
		Segmentation: json.RawMessage("[]"),
		Score:        a.Confidence,
	}
	box := a.Bounds()
	out.BBox = []float64{box.X, box.Y, box.Width, box.Height}
	out.Area = box.Area()

	switch a.Type {
	case domain.TypePolygon:
		ring := make([]float64, 0, len(a.Geometry.Points)*2)
		for _, p := range a.Geometry.Points {
			ring = append(ring, p.X, p.Y)
		}
		seg, _ := json.Marshal([][]float64{ring})
		out.Segmentation = seg
		out.Area = geometry.PolygonArea(a.Geometry.Points)
	case domain.TypeKeypoint:
		for _, k := range a.Geometry.Keypoints {
			out.Keypoints = append(out.Keypoints, k.X, k.Y, float64(k.V))
			if k.V > 0 {
				out.NumKeypoints++
			}
		}
	}
	return out
}

// EncodeCOCO writes the export set as indented COCO JSON
func EncodeCOCO(w io.Writer, set ExportSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(BuildCOCO(set)); err != nil {
		return fmt.Errorf("while writing coco json: %w", domain.ErrIOFailure)
	}
	return nil
}
