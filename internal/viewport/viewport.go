// Package viewport maps between image pixel space and view (widget) space.
package viewport

import (
	"math"

	"github.com/lewtec/demarca/internal/geometry"
)

const (
	DefaultMinScale = 0.1
	DefaultMaxScale = 5.0

	wheelZoomIn  = 1.1
	wheelZoomOut = 0.9
)

// Viewport holds the affine image→view mapping: view = image*scale + offset.
// The zero value is unusable; use New.
type Viewport struct {
	scale    float64
	offset   geometry.Point
	image    geometry.Size
	view     geometry.Size
	loaded   bool
	minScale float64
	maxScale float64
}

// New returns a viewport with scale bounds [minScale, maxScale]. Non-positive or
// inverted bounds fall back to the defaults.
func New(minScale, maxScale float64) *Viewport {
	if minScale <= 0 || maxScale < minScale {
		minScale, maxScale = DefaultMinScale, DefaultMaxScale
	}
	return &Viewport{scale: 1, minScale: minScale, maxScale: maxScale}
}

// Reset fits the image into the view without upscaling past 1:1 and centres it.
func (v *Viewport) Reset(image, view geometry.Size) {
	if image.Empty() {
		v.loaded = false
		return
	}
	v.image = image
	v.view = view
	v.loaded = true

	scale := 1.0
	if !view.Empty() {
		scale = math.Min(math.Min(view.Width/image.Width, view.Height/image.Height), 1.0)
	}
	v.scale = scale
	v.offset = geometry.Point{
		X: (view.Width - image.Width*scale) / 2,
		Y: (view.Height - image.Height*scale) / 2,
	}
}

// Resize refits the loaded image into a new view size.
func (v *Viewport) Resize(view geometry.Size) {
	if !v.loaded {
		v.view = view
		return
	}
	v.Reset(v.image, view)
}

// Unload forgets the current image.
func (v *Viewport) Unload() {
	v.loaded = false
	v.image = geometry.Size{}
}

// Loaded reports whether an image is set.
func (v *Viewport) Loaded() bool {
	return v.loaded
}

func (v *Viewport) Scale() float64           { return v.scale }
func (v *Viewport) Offset() geometry.Point   { return v.offset }
func (v *Viewport) ImageSize() geometry.Size { return v.image }
func (v *Viewport) ViewSize() geometry.Size  { return v.view }

// ToView maps an image-space point into view space.
func (v *Viewport) ToView(p geometry.Point) geometry.Point {
	return p.Scale(v.scale).Add(v.offset)
}

// ToViewRect maps an image-space rectangle into view space.
func (v *Viewport) ToViewRect(r geometry.Rect) geometry.Rect {
	min := v.ToView(r.Min())
	return geometry.Rect{X: min.X, Y: min.Y, Width: r.Width * v.scale, Height: r.Height * v.scale}
}

// ToImage maps a view-space point into image space. It reports false when no
// image is loaded.
func (v *Viewport) ToImage(p geometry.Point) (geometry.Point, bool) {
	if !v.loaded || v.scale == 0 {
		return geometry.Point{}, false
	}
	return p.Sub(v.offset).Scale(1 / v.scale), true
}

// Zoom multiplies the scale by factor, clamped to the viewport bounds, keeping
// the image point under pivot fixed. It reports false when nothing happened.
func (v *Viewport) Zoom(pivot geometry.Point, factor float64) bool {
	if factor <= 0 {
		return false
	}
	before, ok := v.ToImage(pivot)
	if !ok {
		return false
	}
	v.scale = math.Max(v.minScale, math.Min(v.maxScale, v.scale*factor))
	v.offset = pivot.Sub(before.Scale(v.scale))
	return true
}

// ZoomWheel zooms by one wheel notch: in for positive steps, out for negative.
func (v *Viewport) ZoomWheel(pivot geometry.Point, steps float64) bool {
	switch {
	case steps > 0:
		return v.Zoom(pivot, wheelZoomIn)
	case steps < 0:
		return v.Zoom(pivot, wheelZoomOut)
	}
	return false
}

// Pan shifts the offset by delta. The image may leave the view entirely.
func (v *Viewport) Pan(delta geometry.Point) {
	v.offset = v.offset.Add(delta)
}
