package diorama

import "math"

// identityTransform is the identity affine matrix.
var identityTransform = [6]float64{1, 0, 0, 1, 0, 0}

// layerMatrix builds the affine matrix that places a w x h sprite for tr.
// Returns [a, b, c, d, tx, ty].
//
// The sprite's top-left sits at (tr.X, tr.Y) before scaling and rotation,
// which both happen about the sprite center:
//
//	Translate(-w/2, -h/2) -> Scale -> Rotate -> Translate(X + w/2, Y + h/2)
func layerMatrix(tr Transform, w, h float64) [6]float64 {
	cx, cy := w/2, h/2
	m := translateAffine(-cx, -cy)
	m = multiplyAffine(scaleAffine(tr.Scale), m)
	m = multiplyAffine(rotateAffine(tr.Rotation), m)
	return multiplyAffine(translateAffine(tr.X+cx, tr.Y+cy), m)
}

func translateAffine(x, y float64) [6]float64 {
	return [6]float64{1, 0, 0, 1, x, y}
}

func scaleAffine(s float64) [6]float64 {
	return [6]float64{s, 0, 0, s, 0, 0}
}

// rotateAffine rotates clockwise on screen by deg degrees (y points down).
func rotateAffine(deg float64) [6]float64 {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	return [6]float64{cos, sin, -sin, cos, 0, 0}
}

// multiplyAffine returns outer * inner: inner applies first.
//
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
func multiplyAffine(outer, inner [6]float64) [6]float64 {
	return [6]float64{
		outer[0]*inner[0] + outer[2]*inner[1],
		outer[1]*inner[0] + outer[3]*inner[1],
		outer[0]*inner[2] + outer[2]*inner[3],
		outer[1]*inner[2] + outer[3]*inner[3],
		outer[0]*inner[4] + outer[2]*inner[5] + outer[4],
		outer[1]*inner[4] + outer[3]*inner[5] + outer[5],
	}
}

// invertAffine computes the inverse of a 2D affine matrix.
// Returns the identity matrix if the matrix is singular (determinant near 0).
func invertAffine(m [6]float64) [6]float64 {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return identityTransform
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return [6]float64{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// transformPoint applies an affine matrix to a point.
func transformPoint(m [6]float64, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// quadCorners returns the four corners of a w x h rect under m, clockwise
// from top-left.
func quadCorners(m [6]float64, w, h float64) [4]Vec2 {
	var out [4]Vec2
	for i, p := range [4][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}} {
		x, y := transformPoint(m, p[0], p[1])
		out[i] = Vec2{x, y}
	}
	return out
}

// worldAABB computes the axis-aligned bounding box of a w x h rect under m.
func worldAABB(m [6]float64, w, h float64) Rect {
	c := quadCorners(m, w, h)
	minX := math.Min(math.Min(c[0].X, c[1].X), math.Min(c[2].X, c[3].X))
	minY := math.Min(math.Min(c[0].Y, c[1].Y), math.Min(c[2].Y, c[3].Y))
	maxX := math.Max(math.Max(c[0].X, c[1].X), math.Max(c[2].X, c[3].X))
	maxY := math.Max(math.Max(c[0].Y, c[1].Y), math.Max(c[2].Y, c[3].Y))
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// containsLocal reports whether world point (x, y) falls inside the w x h
// rect placed by m.
func containsLocal(m [6]float64, w, h, x, y float64) bool {
	lx, ly := transformPoint(invertAffine(m), x, y)
	return lx >= 0 && lx <= w && ly >= 0 && ly <= h
}

// centerOf returns the world position of the sprite center under m.
func centerOf(m [6]float64, w, h float64) Vec2 {
	x, y := transformPoint(m, w/2, h/2)
	return Vec2{x, y}
}

// --- Handles ---

// HandleKind identifies a manipulation handle on the selected layer.
type HandleKind uint8

const (
	HandleNone HandleKind = iota
	HandleScale
	HandleRotate
)

func (k HandleKind) String() string {
	switch k {
	case HandleScale:
		return "scale"
	case HandleRotate:
		return "rotate"
	default:
		return "none"
	}
}

const (
	handleRadius       = 6.0
	rotateHandleOffset = 24.0
)

// Handle is a hit target drawn on the selected layer.
type Handle struct {
	Kind HandleKind
	Pos  Vec2
}

// layerHandles returns scale handles at the corners and a rotate handle
// above the top edge, all in world space.
func layerHandles(m [6]float64, w, h float64) [5]Handle {
	c := quadCorners(m, w, h)
	var out [5]Handle
	for i := range c {
		out[i] = Handle{Kind: HandleScale, Pos: c[i]}
	}
	// Top-center, pushed outward along the sprite's local up axis.
	tx, ty := (c[0].X+c[1].X)/2, (c[0].Y+c[1].Y)/2
	ux, uy := -m[2], -m[3]
	if l := math.Hypot(ux, uy); l > 0 {
		ux, uy = ux/l, uy/l
	}
	out[4] = Handle{Kind: HandleRotate, Pos: Vec2{tx + ux*rotateHandleOffset, ty + uy*rotateHandleOffset}}
	return out
}

// hitHandle returns the handle under (x, y), preferring rotate.
func hitHandle(hs [5]Handle, x, y float64) HandleKind {
	r2 := handleRadius * handleRadius * 2
	for i := len(hs) - 1; i >= 0; i-- {
		dx, dy := x-hs[i].Pos.X, y-hs[i].Pos.Y
		if dx*dx+dy*dy <= r2 {
			return hs[i].Kind
		}
	}
	return HandleNone
}
