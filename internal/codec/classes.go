// Package codec converts annotations to and from YOLO text, COCO JSON and
// Pascal VOC XML. Codecs work on pixel-space geometry and never touch the
// store.
package codec

import (
	"fmt"

	"github.com/lewtec/demarca/internal/domain"
)

// ClassResolver maps class names to project class ids, creating ids for
// unseen names.
type ClassResolver interface {
	Resolve(name string) int
}

var palette = []domain.Color{
	{R: 230, G: 25, B: 75},
	{R: 60, G: 180, B: 75},
	{R: 255, G: 225, B: 25},
	{R: 0, G: 130, B: 200},
	{R: 245, G: 130, B: 48},
	{R: 145, G: 30, B: 180},
	{R: 70, G: 240, B: 240},
	{R: 240, G: 50, B: 230},
	{R: 210, G: 245, B: 60},
	{R: 250, G: 190, B: 212},
}

// PaletteColor returns a stable color for a class id
func PaletteColor(id int) domain.Color {
	if id < 0 {
		id = -id
	}
	return palette[id%len(palette)]
}

// ClassTable resolves names against a project class list, appending unseen
// names in first-seen order.
type ClassTable struct {
	classes domain.ClassList
	added   []domain.ClassDef
}

// NewClassTable creates a table over a copy of classes
func NewClassTable(classes domain.ClassList) *ClassTable {
	return &ClassTable{classes: append(domain.ClassList(nil), classes...)}
}

// Resolve returns the id of name, creating a class when it is unknown
func (t *ClassTable) Resolve(name string) int {
	if c, ok := t.classes.ByName(name); ok {
		return c.ID
	}
	var c domain.ClassDef
	t.classes, c = t.classes.Add(name, PaletteColor(t.classes.NextID()))
	t.added = append(t.added, c)
	return c.ID
}

// Name returns the class name of id, or class_<id>
func (t *ClassTable) Name(id int) string {
	return t.classes.NameOf(id)
}

// Added lists the classes created by Resolve
func (t *ClassTable) Added() []domain.ClassDef {
	return t.added
}

// Classes returns the full class list including added classes
func (t *ClassTable) Classes() domain.ClassList {
	return t.classes
}

// Object is one decoded annotation before it is bound to an image. ClassName
// is set by named formats; index formats set ClassIndex and leave ClassName
// empty.
type Object struct {
	ClassIndex int
	ClassName  string
	Type       domain.AnnotationType
	Geometry   domain.Geometry
	Confidence *float64
}

// Annotation binds an object to a resolved class
func (o Object) Annotation(classID int, className string) *domain.Annotation {
	a := &domain.Annotation{
		ClassID:    classID,
		ClassName:  className,
		Type:       o.Type,
		Geometry:   o.Geometry,
		Confidence: o.Confidence,
	}
	return a
}

func malformed(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrMalformedInput)...)
}
