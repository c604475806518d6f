package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lewtec/demarca/internal/geometry"
)

// AnnotationType is the geometry kind of an annotation
type AnnotationType string

const (
	TypeBBox     AnnotationType = "bbox"
	TypePolygon  AnnotationType = "polygon"
	TypeKeypoint AnnotationType = "keypoint"
	TypeOBB      AnnotationType = "obb"
	TypeClassify AnnotationType = "classify"
)

// ParseAnnotationType validates a persisted type name
func ParseAnnotationType(s string) (AnnotationType, error) {
	switch t := AnnotationType(s); t {
	case TypeBBox, TypePolygon, TypeKeypoint, TypeOBB, TypeClassify:
		return t, nil
	}
	return "", fmt.Errorf("annotation type %q: %w", s, ErrMalformedInput)
}

// Keypoint is a pose keypoint in image pixel space. V is the YOLO visibility
// flag (0 absent, 1 occluded, 2 visible).
type Keypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	V int     `json:"v"`
}

// Geometry is the payload of an annotation. Which fields are meaningful
// depends on the annotation type.
type Geometry struct {
	BBox      geometry.Rect
	Points    []geometry.Point
	Keypoints []Keypoint
	Angle     float64
}

// Translate moves every coordinate of g by d.
func (g Geometry) Translate(d geometry.Point) Geometry {
	out := Geometry{BBox: g.BBox.Translate(d), Angle: g.Angle}
	if g.Points != nil {
		out.Points = geometry.TranslatePoints(g.Points, d)
	}
	if g.Keypoints != nil {
		out.Keypoints = make([]Keypoint, len(g.Keypoints))
		for i, k := range g.Keypoints {
			out.Keypoints[i] = Keypoint{X: k.X + d.X, Y: k.Y + d.Y, V: k.V}
		}
	}
	return out
}

// Annotation is a single labelled shape on an image
type Annotation struct {
	ID         int64
	ImageID    int64
	ProjectID  int64
	ClassID    int
	ClassName  string
	Type       AnnotationType
	Geometry   Geometry
	Confidence *float64
	Attributes map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy of a.
func (a *Annotation) Clone() *Annotation {
	c := *a
	c.Geometry = a.Geometry.Translate(geometry.Point{})
	if a.Confidence != nil {
		conf := *a.Confidence
		c.Confidence = &conf
	}
	if a.Attributes != nil {
		c.Attributes = make(map[string]any, len(a.Attributes))
		for k, v := range a.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// Bounds returns the axis-aligned extent of the annotation. Classify
// annotations have no extent.
func (a *Annotation) Bounds() geometry.Rect {
	switch a.Type {
	case TypePolygon:
		return geometry.BoundingBox(a.Geometry.Points)
	case TypeClassify:
		return geometry.Rect{}
	default:
		return a.Geometry.BBox
	}
}

// Contains reports whether p lies inside the annotation. p must be in the
// same space as the geometry.
func (a *Annotation) Contains(p geometry.Point) bool {
	switch a.Type {
	case TypePolygon:
		return geometry.PointInPolygon(p, a.Geometry.Points)
	case TypeClassify:
		return false
	default:
		return a.Geometry.BBox.Contains(p)
	}
}

// Validate checks the shape invariants of the payload
func (a *Annotation) Validate() error {
	if _, err := ParseAnnotationType(string(a.Type)); err != nil {
		return err
	}
	if a.ClassID < 0 {
		return fmt.Errorf("negative class id %d: %w", a.ClassID, ErrMalformedInput)
	}
	switch a.Type {
	case TypePolygon:
		if len(a.Geometry.Points) < 3 {
			return fmt.Errorf("polygon with %d points: %w", len(a.Geometry.Points), ErrMalformedInput)
		}
	case TypeBBox, TypeKeypoint, TypeOBB:
		if a.Geometry.BBox.Width < 0 || a.Geometry.BBox.Height < 0 {
			return fmt.Errorf("negative box size: %w", ErrMalformedInput)
		}
	}
	return nil
}

type boxData struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type polygonData struct {
	Points []geometry.Point `json:"points"`
}

type keypointData struct {
	boxData
	Keypoints []Keypoint `json:"keypoints"`
}

type obbData struct {
	boxData
	Angle float64 `json:"angle"`
}

type classifyData struct {
	ClassID int `json:"class_id"`
}

func toBoxData(r geometry.Rect) boxData {
	return boxData{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

func (b boxData) rect() geometry.Rect {
	return geometry.Rect{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

// MarshalData encodes the geometry into the persisted per-type data JSON.
func (a *Annotation) MarshalData() ([]byte, error) {
	var v any
	switch a.Type {
	case TypeBBox:
		v = toBoxData(a.Geometry.BBox)
	case TypePolygon:
		points := a.Geometry.Points
		if points == nil {
			points = []geometry.Point{}
		}
		v = polygonData{Points: points}
	case TypeKeypoint:
		kps := a.Geometry.Keypoints
		if kps == nil {
			kps = []Keypoint{}
		}
		v = keypointData{boxData: toBoxData(a.Geometry.BBox), Keypoints: kps}
	case TypeOBB:
		v = obbData{boxData: toBoxData(a.Geometry.BBox), Angle: a.Geometry.Angle}
	case TypeClassify:
		v = classifyData{ClassID: a.ClassID}
	default:
		return nil, fmt.Errorf("annotation type %q: %w", a.Type, ErrMalformedInput)
	}
	return json.Marshal(v)
}

// UnmarshalData decodes persisted data JSON for the annotation's type.
func (a *Annotation) UnmarshalData(data []byte) error {
	var g Geometry
	switch a.Type {
	case TypeBBox:
		var d boxData
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("while decoding bbox data: %w", ErrMalformedInput)
		}
		g.BBox = d.rect()
	case TypePolygon:
		var d polygonData
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("while decoding polygon data: %w", ErrMalformedInput)
		}
		g.Points = d.Points
	case TypeKeypoint:
		var d keypointData
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("while decoding keypoint data: %w", ErrMalformedInput)
		}
		g.BBox = d.rect()
		g.Keypoints = d.Keypoints
	case TypeOBB:
		var d obbData
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("while decoding obb data: %w", ErrMalformedInput)
		}
		g.BBox = d.rect()
		g.Angle = d.Angle
	case TypeClassify:
	default:
		return fmt.Errorf("annotation type %q: %w", a.Type, ErrMalformedInput)
	}
	a.Geometry = g
	return nil
}

// MarshalAttributes encodes the attribute bag, folding Confidence into
// attributes.confidence.
func (a *Annotation) MarshalAttributes() ([]byte, error) {
	attrs := make(map[string]any, len(a.Attributes)+1)
	for k, v := range a.Attributes {
		attrs[k] = v
	}
	delete(attrs, "confidence")
	if a.Confidence != nil {
		attrs["confidence"] = *a.Confidence
	}
	return json.Marshal(attrs)
}

// UnmarshalAttributes is the inverse of MarshalAttributes.
func (a *Annotation) UnmarshalAttributes(data []byte) error {
	a.Attributes = nil
	a.Confidence = nil
	if len(data) == 0 {
		return nil
	}
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		return fmt.Errorf("while decoding attributes: %w", ErrMalformedInput)
	}
	if c, ok := attrs["confidence"].(float64); ok {
		a.Confidence = &c
		delete(attrs, "confidence")
	}
	if len(attrs) > 0 {
		a.Attributes = attrs
	}
	return nil
}

// AnnotationStats aggregates annotation counts for a project
type AnnotationStats struct {
	TotalAnnotations int64
	AnnotatedImages  int64
	PerClass         map[int]int64
}

// AnnotationRepository defines the interface for annotation storage operations
type AnnotationRepository interface {
	// Create inserts an annotation and re-derives the image status
	Create(ctx context.Context, a *Annotation) (*Annotation, error)

	// Get retrieves an annotation by ID
	Get(ctx context.Context, id int64) (*Annotation, error)

	// Update rewrites class and geometry of an existing annotation
	Update(ctx context.Context, a *Annotation) error

	// Delete removes an annotation and re-derives the image status
	Delete(ctx context.Context, id int64) error

	// ListForImage lists the annotations of an image in drawing order
	ListForImage(ctx context.Context, imageID int64) ([]*Annotation, error)

	// ListForProject lists every annotation of a project
	ListForProject(ctx context.Context, projectID int64) ([]*Annotation, error)

	// CountForImage returns the number of annotations on an image
	CountForImage(ctx context.Context, imageID int64) (int64, error)

	// DeleteForImage removes all annotations of an image
	DeleteForImage(ctx context.Context, imageID int64) (int64, error)

	// DeleteByClass removes every annotation of a class in a project
	DeleteByClass(ctx context.Context, projectID int64, classID int) (int64, error)

	// Relabel moves annotations to another class
	Relabel(ctx context.Context, imageID int64, ids []int64, classID int, className string) (int64, error)

	// RemapClass rewrites class_id and class_name from oldID to newID
	RemapClass(ctx context.Context, projectID int64, oldID, newID int, name string) error

	// Stats returns project level counts
	Stats(ctx context.Context, projectID int64) (*AnnotationStats, error)
}
