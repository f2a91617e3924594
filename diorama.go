package diorama

import "math"

// Vec2 is a 2D vector used for positions, offsets and sizes.
type Vec2 struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle. The coordinate system has its origin at
// the top-left, with Y increasing downward.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether the point (x, y) lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Vec2 {
	return Vec2{r.X + r.Width/2, r.Y + r.Height/2}
}

// Stage is the logical canvas a scene is authored against. Percent-based
// location fields resolve against it.
type Stage struct {
	Width, Height float64
}

// MouseButton identifies a mouse button.
type MouseButton uint8

const (
	MouseButtonLeft   MouseButton = iota // primary (left) mouse button
	MouseButtonRight                     // secondary (right) mouse button
	MouseButtonMiddle                    // middle mouse button (scroll wheel click)
)

// KeyModifiers is a bitmask of keyboard modifier keys.
// Values can be combined with bitwise OR (e.g. ModShift | ModCtrl).
type KeyModifiers uint8

const (
	ModShift KeyModifiers = 1 << iota // Shift key
	ModCtrl                           // Control key
	ModAlt                            // Alt / Option key
	ModMeta                           // Meta / Command / Windows key
)

// Has reports whether all modifiers in m2 are set.
func (m KeyModifiers) Has(m2 KeyModifiers) bool {
	return m&m2 == m2
}

// Key identifies the editor keys the controllers react to. Hosts translate
// their native key codes into these.
type Key uint8

const (
	KeyUnknown Key = iota
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyPlus
	KeyMinus
	KeySpace
	KeyEscape
	KeyDelete
	KeyZ
	KeyY
	KeyR
	KeyK
)

var keyNames = map[Key]string{
	KeyLeft:   "left",
	KeyRight:  "right",
	KeyUp:     "up",
	KeyDown:   "down",
	KeyPlus:   "plus",
	KeyMinus:  "minus",
	KeySpace:  "space",
	KeyEscape: "escape",
	KeyDelete: "delete",
	KeyZ:      "z",
	KeyY:      "y",
	KeyR:      "r",
	KeyK:      "k",
}

// String returns the lower-case key name used in test scripts.
func (k Key) String() string {
	if s, ok := keyNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKey maps a key name back to a Key. Unknown names yield KeyUnknown.
func ParseKey(name string) Key {
	for k, s := range keyNames {
		if s == name {
			return k
		}
	}
	return KeyUnknown
}

// isFinite reports whether f is neither NaN nor infinite.
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ptr returns a pointer to a copy of v.
func ptr[T any](v T) *T {
	return &v
}
