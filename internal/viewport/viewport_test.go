package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/demarca/internal/geometry"
)

const eps = 1e-9

func TestViewport_Reset(t *testing.T) {
	t.Run("downscales to fit and centres", func(t *testing.T) {
		v := New(0, 0)
		v.Reset(geometry.Size{Width: 2000, Height: 1000}, geometry.Size{Width: 1000, Height: 1000})

		assert.InDelta(t, 0.5, v.Scale(), eps)
		assert.InDelta(t, 0.0, v.Offset().X, eps)
		assert.InDelta(t, 250.0, v.Offset().Y, eps)
	})

	t.Run("never upscales", func(t *testing.T) {
		v := New(0, 0)
		v.Reset(geometry.Size{Width: 100, Height: 50}, geometry.Size{Width: 1000, Height: 800})

		assert.InDelta(t, 1.0, v.Scale(), eps)
		assert.InDelta(t, 450.0, v.Offset().X, eps)
		assert.InDelta(t, 375.0, v.Offset().Y, eps)
	})
}

func TestViewport_NotLoaded(t *testing.T) {
	v := New(0, 0)

	_, ok := v.ToImage(geometry.Pt(10, 10))
	assert.False(t, ok)
	assert.False(t, v.Zoom(geometry.Pt(10, 10), 2))
	assert.InDelta(t, 1.0, v.Scale(), eps)
}

func TestViewport_RoundTrip(t *testing.T) {
	v := New(0, 0)
	v.Reset(geometry.Size{Width: 640, Height: 480}, geometry.Size{Width: 800, Height: 600})
	v.Zoom(geometry.Pt(123, 77), 3.3)
	v.Pan(geometry.Pt(-41.5, 12.25))

	for _, p := range []geometry.Point{geometry.Pt(0, 0), geometry.Pt(639, 479), geometry.Pt(12.5, 300.75)} {
		back, ok := v.ToImage(v.ToView(p))
		require.True(t, ok)
		assert.InDelta(t, p.X, back.X, 1e-9)
		assert.InDelta(t, p.Y, back.Y, 1e-9)
	}
}

func TestViewport_ZoomKeepsPivot(t *testing.T) {
	v := New(0, 0)
	v.Reset(geometry.Size{Width: 1024, Height: 768}, geometry.Size{Width: 800, Height: 600})

	for _, factor := range []float64{1.1, 0.9, 4, 0.01, 100} {
		pivot := geometry.Pt(321, 123)
		before, _ := v.ToImage(pivot)
		require.True(t, v.Zoom(pivot, factor))

		after := v.ToView(before)
		assert.InDelta(t, pivot.X, after.X, 1e-9)
		assert.InDelta(t, pivot.Y, after.Y, 1e-9)
		assert.GreaterOrEqual(t, v.Scale(), DefaultMinScale)
		assert.LessOrEqual(t, v.Scale(), DefaultMaxScale)
	}
}

func TestViewport_Pan(t *testing.T) {
	v := New(0, 0)
	v.Reset(geometry.Size{Width: 100, Height: 100}, geometry.Size{Width: 100, Height: 100})
	v.Pan(geometry.Pt(-5000, 5000))

	assert.Equal(t, geometry.Pt(-5000, 5000), v.Offset())
}

func TestViewport_ZoomWheel(t *testing.T) {
	v := New(0, 0)
	v.Reset(geometry.Size{Width: 100, Height: 100}, geometry.Size{Width: 100, Height: 100})

	v.ZoomWheel(geometry.Pt(50, 50), 120)
	assert.InDelta(t, 1.1, v.Scale(), eps)
	v.ZoomWheel(geometry.Pt(50, 50), -120)
	assert.InDelta(t, 0.99, v.Scale(), eps)
}
