package diorama

import (
	"cmp"
	"math"
	"slices"
)

// TimelineItem is one draggable marker on the timeline: a layer's base at
// t=0, or one of its dynamic location keyframes.
type TimelineItem struct {
	Layer string
	// Index is the behavior index of the keyframe, or BaseItem.
	Index int
	Time  float64
	// Z is the resolved Z once the item is in force. It picks the lane.
	Z    float64
	Base bool
}

// IsBase reports whether the item stands for the layer base.
func (it TimelineItem) IsBase() bool { return it.Index == BaseItem }

// Lane is one row of the timeline: every item whose resolved Z equals Z.
type Lane struct {
	Z     float64
	Items []TimelineItem
}

// Timeline is the lane layout of a scene. Lanes are sorted by Z
// descending, so the highest layer is the top row.
type Timeline struct {
	Lanes    []Lane
	Duration float64
}

// BuildTimeline lays a scene out into lanes. A keyframe that does not set
// z_depth lands on the lane of the Z established before it.
func BuildTimeline(s *Scene) Timeline {
	tl := Timeline{Duration: s.Duration}
	byZ := make(map[float64]int)
	add := func(it TimelineItem) {
		i, ok := byZ[it.Z]
		if !ok {
			i = len(tl.Lanes)
			byZ[it.Z] = i
			tl.Lanes = append(tl.Lanes, Lane{Z: it.Z})
		}
		tl.Lanes[i].Items = append(tl.Lanes[i].Items, it)
	}
	for _, l := range s.Layers {
		kfs, zs := ResolvedKeyframeZ(l)
		z, _ := baseZ(l, kfs)
		add(TimelineItem{Layer: l.SpriteName, Index: BaseItem, Z: z, Base: true})
		for i, kf := range kfs {
			add(TimelineItem{Layer: l.SpriteName, Index: kf.Index, Time: kf.Time, Z: zs[i]})
		}
	}
	slices.SortFunc(tl.Lanes, func(a, b Lane) int { return cmp.Compare(b.Z, a.Z) })
	for i := range tl.Lanes {
		slices.SortStableFunc(tl.Lanes[i].Items, func(a, b TimelineItem) int {
			return cmp.Compare(a.Time, b.Time)
		})
	}
	return tl
}

// LaneOf returns the index of the lane with the given Z, or -1.
func (tl *Timeline) LaneOf(z float64) int {
	for i, ln := range tl.Lanes {
		if ln.Z == z {
			return i
		}
	}
	return -1
}

// Find returns the item for a layer and behavior index.
func (tl *Timeline) Find(layer string, index int) (TimelineItem, int, bool) {
	for i, ln := range tl.Lanes {
		for _, it := range ln.Items {
			if it.Layer == layer && it.Index == index {
				return it, i, true
			}
		}
	}
	return TimelineItem{}, -1, false
}

// laneMidpoint picks the Z of a new lane dropped between lanes a > b.
// Integer lanes get an integer midpoint; adjacent integers have none, so
// normalize reports that every Z >= a must first move up by one, after
// which a itself is free.
func laneMidpoint(a, b float64) (z float64, normalize bool) {
	if a == math.Trunc(a) && b == math.Trunc(b) {
		if a-b == 1 {
			return a, true
		}
		return math.Floor((a + b) / 2), false
	}
	return (a + b) / 2, false
}

// snapTime rounds t to a multiple of step inside [0, duration].
func snapTime(t, step, duration float64) float64 {
	t = clamp(t, 0, duration)
	if step <= 0 {
		return t
	}
	n := math.Round(t / step)
	if n*step > duration+timeEpsilon {
		n = math.Floor(duration / step)
	}
	// Trim float noise such as 0.30000000000000004.
	return math.Round(n*step*1e9) / 1e9
}

// laneDrop is where a vertical drag lands.
type laneDrop struct {
	Z float64
	// Normalize is set when the drop needs NormalizeLanes{At: Z} first.
	Normalize bool
	// Gap is set when the drop opens a new lane between two others.
	Gap bool
}

// dropAt resolves a lane-area y (0 at the first lane's top, scroll
// included) against a layout. The outer quarters of a lane are the gaps
// to its neighbours; the middle half snaps to the lane itself.
func dropAt(tl *Timeline, relY, trackHeight float64) (laneDrop, bool) {
	n := len(tl.Lanes)
	if n == 0 || trackHeight <= 0 {
		return laneDrop{}, false
	}
	if relY < 0 {
		return laneDrop{Z: tl.Lanes[0].Z}, true
	}
	idx := int(math.Floor(relY / trackHeight))
	if idx >= n {
		return laneDrop{Z: tl.Lanes[n-1].Z}, true
	}
	within := math.Mod(relY, trackHeight)
	switch {
	case within < 0.25*trackHeight && idx > 0:
		z, norm := laneMidpoint(tl.Lanes[idx-1].Z, tl.Lanes[idx].Z)
		return laneDrop{Z: z, Normalize: norm, Gap: true}, true
	case within > 0.75*trackHeight && idx < n-1:
		z, norm := laneMidpoint(tl.Lanes[idx].Z, tl.Lanes[idx+1].Z)
		return laneDrop{Z: z, Normalize: norm, Gap: true}, true
	}
	return laneDrop{Z: tl.Lanes[idx].Z}, true
}
