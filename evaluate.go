package diorama

import "math"

// Transform is the evaluator's output for a layer at a time.
type Transform struct {
	X, Y     float64
	Scale    float64
	Rotation float64 // degrees, in (-180, 180]
	Opacity  float64 // [0, 1]
	Z        float64
}

// spikeWidth is the standard deviation, in cycles, of the spike waveform.
const spikeWidth = 0.08

// Evaluate computes a layer's transform at time t with no stage context, so
// percent-based location fields are ignored. See Stage.Evaluate.
func Evaluate(l *Layer, t, globalScroll float64) Transform {
	return Stage{}.Evaluate(l, t, globalScroll)
}

// Evaluate computes a layer's transform at time t. It is pure: the same
// (layer, t, globalScroll) always yields the same Transform.
//
// Composition order: base, keyframed location override, additive motion
// behaviors, background scroll, normalization.
func (s Stage) Evaluate(l *Layer, t, globalScroll float64) Transform {
	tr := Transform{
		X:        l.XOffset,
		Y:        l.YOffset,
		Scale:    l.Scale,
		Rotation: l.Rotation,
		Opacity:  1,
	}

	loc := ResolveLocation(l, t, s)
	if loc.X != nil {
		tr.X = *loc.X
	}
	if loc.Y != nil {
		tr.Y = *loc.Y
	}
	if loc.Scale != nil {
		tr.Scale = *loc.Scale
	}
	if loc.Rotation != nil {
		tr.Rotation = *loc.Rotation
	}
	tr.Z = loc.Z

	var bg *Background
	for _, b := range l.Behaviors {
		switch v := b.(type) {
		case *Oscillate:
			if d, ok := elapsed(v, t); ok {
				tr.add(v.Coordinate, v.Amplitude*math.Sin(2*math.Pi*v.Frequency*d+v.PhaseOffset))
			}
		case *Drift:
			if d, ok := elapsed(v, t); ok {
				c := v.Velocity * d
				if v.DriftCap != nil {
					c = clamp(c, -*v.DriftCap, *v.DriftCap)
				}
				tr.add(v.Coordinate, c)
			}
		case *Pulse:
			if d, ok := elapsed(v, t); ok {
				val := pulseValue(v, d)
				switch v.Coordinate {
				case CoordOpacity:
					tr.Opacity = val
				case CoordScale:
					tr.Scale = val
				default:
					tr.add(v.Coordinate, val)
				}
			}
		case *Background:
			if bg == nil {
				bg = v
			}
		case *Location, *Sound:
			// handled by the resolver and the sound scheduler
		}
	}

	if bg != nil {
		tr.X -= globalScroll * backgroundSpeed(l, bg)
	}

	tr.Rotation = NormalizeRotation(tr.Rotation)
	tr.Opacity = clamp(tr.Opacity, 0, 1)
	return tr.sanitize(l)
}

// elapsed returns the time since a behavior's start and whether it is active.
func elapsed(b Behavior, t float64) (float64, bool) {
	start, _ := b.Start()
	if t < start {
		return 0, false
	}
	return t - start, true
}

func (tr *Transform) add(c Coordinate, v float64) {
	switch c {
	case CoordX:
		tr.X += v
	case CoordY:
		tr.Y += v
	case CoordScale:
		tr.Scale += v
	case CoordOpacity:
		tr.Opacity += v
	case CoordRotation:
		tr.Rotation += v
	}
}

// pulseValue maps the waveform at elapsed time d into [MinValue, MaxValue].
func pulseValue(p *Pulse, d float64) float64 {
	phase := p.Frequency * d
	phase -= math.Floor(phase)
	var w float64
	switch p.Waveform {
	case WaveSpike:
		x := (phase - 0.5) / spikeWidth
		w = math.Exp(-0.5 * x * x)
	default:
		w = (1 - math.Cos(2*math.Pi*phase)) / 2
	}
	return p.MinValue + (p.MaxValue-p.MinValue)*w
}

// backgroundSpeed picks the behavior's scroll speed, then the layer's,
// then 1.
func backgroundSpeed(l *Layer, bg *Background) float64 {
	if bg.ScrollSpeed != nil {
		return *bg.ScrollSpeed
	}
	if l.ScrollSpeed != nil {
		return *l.ScrollSpeed
	}
	return 1
}

// sanitize replaces non-finite channels with the layer's base values so the
// renderer never sees NaN.
func (tr Transform) sanitize(l *Layer) Transform {
	if !isFinite(tr.X) {
		tr.X = finiteOr(l.XOffset, 0)
	}
	if !isFinite(tr.Y) {
		tr.Y = finiteOr(l.YOffset, 0)
	}
	if !isFinite(tr.Scale) {
		tr.Scale = finiteOr(l.Scale, 1)
	}
	if !isFinite(tr.Rotation) {
		tr.Rotation = NormalizeRotation(finiteOr(l.Rotation, 0))
	}
	if !isFinite(tr.Opacity) {
		tr.Opacity = 1
	}
	if !isFinite(tr.Z) {
		tr.Z = 0
	}
	return tr
}

// Valid reports whether every channel is finite.
func (tr Transform) Valid() bool {
	return isFinite(tr.X) && isFinite(tr.Y) && isFinite(tr.Scale) &&
		isFinite(tr.Rotation) && isFinite(tr.Opacity) && isFinite(tr.Z)
}

// NormalizeRotation wraps degrees into (-180, 180]. Non-finite input yields 0.
func NormalizeRotation(deg float64) float64 {
	if !isFinite(deg) {
		return 0
	}
	r := math.Mod(deg, 360)
	if r <= -180 {
		r += 360
	} else if r > 180 {
		r -= 360
	}
	return r
}
