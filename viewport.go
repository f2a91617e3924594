package diorama

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// scrollAnim holds active scroll-to tweens for X and Y.
type scrollAnim struct {
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

// Viewport is the scroll window over the timeline content. X is the
// content pixel at the left edge; Y the content pixel below the ruler.
type Viewport struct {
	X, Y float64

	// Width and Height are the visible content area.
	Width, Height float64

	// ContentWidth and ContentHeight bound scrolling.
	ContentWidth, ContentHeight float64

	scrollTween *scrollAnim
}

// ScrollTo animates the view to (x, y) over duration seconds.
func (v *Viewport) ScrollTo(x, y float64, duration float32, easeFn ease.TweenFunc) {
	v.scrollTween = &scrollAnim{
		tweenX: gween.New(float32(v.X), float32(x), duration, easeFn),
		tweenY: gween.New(float32(v.Y), float32(y), duration, easeFn),
	}
}

// Scrolling reports whether a ScrollTo animation is running.
func (v *Viewport) Scrolling() bool { return v.scrollTween != nil }

// StopScroll cancels a running ScrollTo.
func (v *Viewport) StopScroll() { v.scrollTween = nil }

// ScrollBy moves the view immediately, cancelling any animation.
func (v *Viewport) ScrollBy(dx, dy float64) {
	v.scrollTween = nil
	v.X += dx
	v.Y += dy
	v.clamp()
}

// update advances the scroll animation and clamps.
func (v *Viewport) update(dt float32) {
	if v.scrollTween != nil {
		if !v.scrollTween.doneX {
			val, done := v.scrollTween.tweenX.Update(dt)
			v.X = float64(val)
			v.scrollTween.doneX = done
		}
		if !v.scrollTween.doneY {
			val, done := v.scrollTween.tweenY.Update(dt)
			v.Y = float64(val)
			v.scrollTween.doneY = done
		}
		if v.scrollTween.doneX && v.scrollTween.doneY {
			v.scrollTween = nil
		}
	}
	v.clamp()
}

// clamp keeps the view inside the content. Content smaller than the view
// pins to 0.
func (v *Viewport) clamp() {
	maxX := math.Max(0, v.ContentWidth-v.Width)
	maxY := math.Max(0, v.ContentHeight-v.Height)
	v.X = math.Max(0, math.Min(v.X, maxX))
	v.Y = math.Max(0, math.Min(v.Y, maxY))
}

// MaxY returns the largest vertical scroll.
func (v *Viewport) MaxY() float64 {
	return math.Max(0, v.ContentHeight-v.Height)
}
