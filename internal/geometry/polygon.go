package geometry

import "math"

// PointInPolygon tests p against the closed polygon with the even-odd rule,
// casting a ray towards +X. Horizontal edges never toggle the parity. A point
// lying exactly on a vertex or an edge gets whatever the ray cast yields.
func PointInPolygon(p Point, polygon []Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	a := polygon[0]
	for i := 1; i <= n; i++ {
		b := polygon[i%n]
		if p.Y > math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y) && p.X <= math.Max(a.X, b.X) {
			// a.Y != b.Y is implied by the strict lower bound above.
			xCross := (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y) + a.X
			if a.X == b.X || p.X <= xCross {
				inside = !inside
			}
		}
		a = b
	}
	return inside
}

// PolygonArea returns the absolute shoelace area.
func PolygonArea(polygon []Point) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return math.Abs(sum) / 2
}

// TranslatePoints returns a copy of points moved by d.
func TranslatePoints(points []Point, d Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = p.Add(d)
	}
	return out
}
