package diorama

import (
	"sort"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

var easings = map[string]ease.TweenFunc{
	"linear":     ease.Linear,
	"inQuad":     ease.InQuad,
	"outQuad":    ease.OutQuad,
	"inOutQuad":  ease.InOutQuad,
	"inCubic":    ease.InCubic,
	"outCubic":   ease.OutCubic,
	"inOutCubic": ease.InOutCubic,
	"inSine":     ease.InSine,
	"outSine":    ease.OutSine,
	"inOutSine":  ease.InOutSine,
	"inExpo":     ease.InExpo,
	"outExpo":    ease.OutExpo,
	"inOutExpo":  ease.InOutExpo,
	"inBack":     ease.InBack,
	"outBack":    ease.OutBack,
	"outBounce":  ease.OutBounce,
	"outElastic": ease.OutElastic,
}

// LookupEasing returns the easing function registered under name.
func LookupEasing(name string) (ease.TweenFunc, bool) {
	fn, ok := easings[name]
	return fn, ok
}

// EasingNames lists the registered easing names in sorted order.
func EasingNames() []string {
	names := make([]string, 0, len(easings))
	for n := range easings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// easeProgress maps linear progress p in [0, 1] through the named easing.
// Unknown names fall back to linear.
func easeProgress(name string, p float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	fn, ok := easings[name]
	if !ok {
		return p
	}
	return float64(fn(float32(p), 0, 1, 1))
}

// offsetTween animates a 2D offset back to rest. Used to snap a cancelled
// drag preview home instead of jumping.
type offsetTween struct {
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

func newOffsetTween(fromX, fromY float64, duration float32, fn ease.TweenFunc) *offsetTween {
	return &offsetTween{
		tweenX: gween.New(float32(fromX), 0, duration, fn),
		tweenY: gween.New(float32(fromY), 0, duration, fn),
	}
}

// Update advances both axes by dt seconds and returns the current offset.
func (o *offsetTween) Update(dt float32) (dx, dy float64, done bool) {
	var x, y float32
	x, o.doneX = o.tweenX.Update(dt)
	y, o.doneY = o.tweenY.Update(dt)
	return float64(x), float64(y), o.doneX && o.doneY
}
