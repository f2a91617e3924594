package diorama

import "sort"

// LocationState is the resolver's output: the location fields in force at a
// time. Nil fields were not set by any static or elapsed keyframe. Z is
// always resolved.
type LocationState struct {
	X        *float64
	Y        *float64
	Scale    *float64
	Rotation *float64
	Z        float64
}

// KeyframeRef identifies a dynamic location keyframe by its index in the
// layer's behavior list.
type KeyframeRef struct {
	Index    int
	Time     float64
	Location *Location
}

// isStaticLocation reports whether a location acts as the layer's baseline.
func isStaticLocation(loc *Location) bool {
	start, ok := loc.Start()
	return !ok || start == 0
}

// staticLocation returns the first location with no time_offset (or zero),
// and its behavior index, or -1.
func staticLocation(l *Layer) (*Location, int) {
	for i, b := range l.Behaviors {
		if loc, ok := b.(*Location); ok && isStaticLocation(loc) {
			return loc, i
		}
	}
	return nil, -1
}

// Keyframes returns the layer's dynamic location keyframes sorted by time.
// The static baseline is excluded. Ties keep behavior order.
func Keyframes(l *Layer) []KeyframeRef {
	_, staticIdx := staticLocation(l)
	var out []KeyframeRef
	for i, b := range l.Behaviors {
		loc, ok := b.(*Location)
		if !ok || i == staticIdx {
			continue
		}
		start, ok := loc.Start()
		if !ok || !isFinite(start) {
			continue
		}
		out = append(out, KeyframeRef{Index: i, Time: start, Location: loc})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Time < out[b].Time })
	return out
}

// BaseZ returns the Z a layer has before any dynamic keyframe fires: the
// static location's z_depth, else the layer's, else the first dynamic
// keyframe that sets one, else 0.
func BaseZ(l *Layer) float64 {
	z, _ := baseZ(l, Keyframes(l))
	return z
}

// baseZ also reports whether the value came from the smart-default rule.
func baseZ(l *Layer, kfs []KeyframeRef) (float64, bool) {
	if static, _ := staticLocation(l); static != nil && static.ZDepth != nil {
		return *static.ZDepth, false
	}
	if l.ZDepth != nil && isFinite(*l.ZDepth) {
		return *l.ZDepth, false
	}
	for _, kf := range kfs {
		if kf.Location.ZDepth != nil {
			return *kf.Location.ZDepth, true
		}
	}
	return 0, true
}

// locationChannel selects one optional field of a Location.
type locationChannel func(*Location) *float64

func channelX(stage Stage) locationChannel {
	return func(loc *Location) *float64 {
		if loc.X != nil {
			return loc.X
		}
		if loc.HorizontalPercent != nil && stage.Width > 0 {
			v := *loc.HorizontalPercent / 100 * stage.Width
			return &v
		}
		return nil
	}
}

func channelY(stage Stage) locationChannel {
	return func(loc *Location) *float64 {
		if loc.Y != nil {
			return loc.Y
		}
		if loc.VerticalPercent != nil && stage.Height > 0 {
			v := *loc.VerticalPercent / 100 * stage.Height
			return &v
		}
		return nil
	}
}

func channelScale(loc *Location) *float64    { return loc.Scale }
func channelRotation(loc *Location) *float64 { return loc.Rotation }

// ResolveLocation computes the effective location fields of a layer at time
// t. Each field is a right-continuous step function of t that changes only
// at keyframes defining it, except where a keyframe requests a tween.
func ResolveLocation(l *Layer, t float64, stage Stage) LocationState {
	kfs := Keyframes(l)
	static, _ := staticLocation(l)

	var st LocationState
	st.X = clonePtr(resolveChannel(static, kfs, t, channelX(stage)))
	st.Y = clonePtr(resolveChannel(static, kfs, t, channelY(stage)))
	st.Scale = clonePtr(resolveChannel(static, kfs, t, channelScale))
	st.Rotation = clonePtr(resolveChannel(static, kfs, t, channelRotation))
	st.Z = resolveZ(l, kfs, t)
	return st
}

// resolveChannel walks keyframes in time order carrying the current value.
func resolveChannel(static *Location, kfs []KeyframeRef, t float64, ch locationChannel) *float64 {
	var cur *float64
	if static != nil {
		cur = ch(static)
	}
	prevTime := 0.0
	for _, kf := range kfs {
		v := ch(kf.Location)
		if kf.Time > t {
			// A tweened keyframe starts moving at the previous keyframe's
			// time, so it can affect t before its own time.
			if v != nil && kf.Location.Tween != "" && cur != nil && t >= prevTime {
				span := kf.Time - prevTime
				if span > 0 {
					p := easeProgress(kf.Location.Tween, (t-prevTime)/span)
					out := *cur + (*v-*cur)*p
					return &out
				}
			}
			break
		}
		if v != nil {
			cur = v
		}
		prevTime = kf.Time
	}
	return cur
}

// resolveZ is the Z step function. Z never tweens.
func resolveZ(l *Layer, kfs []KeyframeRef, t float64) float64 {
	z, _ := baseZ(l, kfs)
	for _, kf := range kfs {
		if kf.Time > t {
			break
		}
		if kf.Location.ZDepth != nil {
			z = *kf.Location.ZDepth
		}
	}
	return z
}

// ResolvedKeyframeZ returns, for each dynamic keyframe in time order, the Z
// in force once it fires. A keyframe that does not set z_depth inherits the
// Z established before it.
func ResolvedKeyframeZ(l *Layer) ([]KeyframeRef, []float64) {
	kfs := Keyframes(l)
	z, _ := baseZ(l, kfs)
	out := make([]float64, len(kfs))
	for i, kf := range kfs {
		if kf.Location.ZDepth != nil {
			z = *kf.Location.ZDepth
		}
		out[i] = z
	}
	return kfs, out
}
