package geometry

// Handle identifies a resize handle on a box corner.
type Handle int

const (
	HandleNone Handle = iota
	HandleTopLeft
	HandleTopRight
	HandleBottomLeft
	HandleBottomRight
)

// Handles lists the corner handles in hit-test order.
var Handles = []Handle{HandleTopLeft, HandleTopRight, HandleBottomLeft, HandleBottomRight}

func (h Handle) String() string {
	switch h {
	case HandleTopLeft:
		return "top_left"
	case HandleTopRight:
		return "top_right"
	case HandleBottomLeft:
		return "bottom_left"
	case HandleBottomRight:
		return "bottom_right"
	default:
		return "none"
	}
}

// Opposite returns the diagonally opposite corner.
func (h Handle) Opposite() Handle {
	switch h {
	case HandleTopLeft:
		return HandleBottomRight
	case HandleTopRight:
		return HandleBottomLeft
	case HandleBottomLeft:
		return HandleTopRight
	case HandleBottomRight:
		return HandleTopLeft
	default:
		return HandleNone
	}
}

// Corner returns the position of corner h on a normalized r.
func (r Rect) Corner(h Handle) Point {
	switch h {
	case HandleTopRight:
		return Point{X: r.X + r.Width, Y: r.Y}
	case HandleBottomLeft:
		return Point{X: r.X, Y: r.Y + r.Height}
	case HandleBottomRight:
		return Point{X: r.X + r.Width, Y: r.Y + r.Height}
	default:
		return Point{X: r.X, Y: r.Y}
	}
}

// HandleRect is the square hit region of half-width half centred on c.
func HandleRect(c Point, half float64) Rect {
	return Rect{X: c.X - half, Y: c.Y - half, Width: 2 * half, Height: 2 * half}
}

// HandleAt returns the first corner handle of box whose hit region contains p,
// or HandleNone. box and p must be in the same space.
func HandleAt(p Point, box Rect, half float64) Handle {
	box = box.Normalize()
	for _, h := range Handles {
		if HandleRect(box.Corner(h), half).Contains(p) {
			return h
		}
	}
	return HandleNone
}
