package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Color is an RGB class color, persisted as "#RRGGBB".
type Color struct {
	R, G, B uint8
}

// DefaultColor is used for classes created without an explicit color.
var DefaultColor = Color{R: 255}

// ParseColor parses "#RRGGBB" or "RRGGBB".
func ParseColor(s string) (Color, error) {
	var c Color
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return c, fmt.Errorf("while parsing color %q: %w", s, ErrMalformedInput)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("while parsing color %q: %w", s, ErrMalformedInput)
	}
	return c, nil
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ClassDef is a project class. IDs are contiguous 0..n-1 within a project.
type ClassDef struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

// ClassList is the ordered class list of a project.
type ClassList []ClassDef

// ByID finds a class by id.
func (l ClassList) ByID(id int) (ClassDef, bool) {
	for _, c := range l {
		if c.ID == id {
			return c, true
		}
	}
	return ClassDef{}, false
}

// ByName finds a class by exact name.
func (l ClassList) ByName(name string) (ClassDef, bool) {
	for _, c := range l {
		if c.Name == name {
			return c, true
		}
	}
	return ClassDef{}, false
}

// NameOf returns the class name for id, or "class_<id>" when unknown.
func (l ClassList) NameOf(id int) string {
	if c, ok := l.ByID(id); ok {
		return c.Name
	}
	return fmt.Sprintf("class_%d", id)
}

// NextID returns the id a newly appended class would receive.
func (l ClassList) NextID() int {
	next := 0
	for _, c := range l {
		if c.ID >= next {
			next = c.ID + 1
		}
	}
	return next
}

// Add appends a class with the next id and returns the new list and class.
func (l ClassList) Add(name string, color Color) (ClassList, ClassDef) {
	c := ClassDef{ID: l.NextID(), Name: name, Color: color}
	return append(l, c), c
}

// Remove drops class id and renumbers the remaining classes 0..n-1, keeping
// their order. The returned map gives old id → new id for every surviving class.
func (l ClassList) Remove(id int) (ClassList, map[int]int, error) {
	if _, ok := l.ByID(id); !ok {
		return l, nil, fmt.Errorf("class %d: %w", id, ErrNotFound)
	}
	out := make(ClassList, 0, len(l)-1)
	remap := make(map[int]int, len(l)-1)
	for _, c := range l {
		if c.ID == id {
			continue
		}
		remap[c.ID] = len(out)
		c.ID = len(out)
		out = append(out, c)
	}
	return out, remap, nil
}

// Validate checks that ids are unique and non-negative.
func (l ClassList) Validate() error {
	seen := make(map[int]bool, len(l))
	for _, c := range l {
		if c.ID < 0 || seen[c.ID] {
			return fmt.Errorf("class id %d: %w", c.ID, ErrInvariantViolation)
		}
		seen[c.ID] = true
	}
	return nil
}
