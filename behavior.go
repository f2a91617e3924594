package diorama

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
)

// BehaviorKind is the wire discriminant of a behavior variant.
type BehaviorKind string

const (
	KindOscillate  BehaviorKind = "oscillate"
	KindDrift      BehaviorKind = "drift"
	KindPulse      BehaviorKind = "pulse"
	KindBackground BehaviorKind = "background"
	KindLocation   BehaviorKind = "location"
	KindSound      BehaviorKind = "sound"
)

// BehaviorKinds lists every variant in the order the add menu shows them.
var BehaviorKinds = []BehaviorKind{
	KindOscillate, KindDrift, KindPulse, KindBackground, KindLocation, KindSound,
}

// ParseBehaviorKind validates a wire type name.
func ParseBehaviorKind(s string) (BehaviorKind, error) {
	for _, k := range BehaviorKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBehaviorKind, s)
}

// Coordinate names the transform channel a motion behavior drives.
type Coordinate string

const (
	CoordX        Coordinate = "x"
	CoordY        Coordinate = "y"
	CoordScale    Coordinate = "scale"
	CoordOpacity  Coordinate = "opacity"
	CoordRotation Coordinate = "rotation"
)

var allCoordinates = []Coordinate{CoordX, CoordY, CoordScale, CoordOpacity, CoordRotation}

// AllowedCoordinates returns the coordinates a variant may target. Variants
// that do not take a coordinate return nil.
func AllowedCoordinates(kind BehaviorKind) []Coordinate {
	switch kind {
	case KindOscillate, KindDrift, KindPulse:
		out := make([]Coordinate, len(allCoordinates))
		copy(out, allCoordinates)
		return out
	default:
		return nil
	}
}

// Waveform selects the shape of a pulse.
type Waveform string

const (
	WaveSine  Waveform = "sine"
	WaveSpike Waveform = "spike"
)

// PreRoll is how far before t=0 a time_offset may sit.
const PreRoll = 1.0

// Behavior is a declarative modifier attached to a layer. The set of
// implementations is closed: *Oscillate, *Drift, *Pulse, *Background,
// *Location and *Sound.
type Behavior interface {
	Kind() BehaviorKind
	// Start returns the time_offset and whether it is set. Behaviors
	// without one are static and active from t=0.
	Start() (float64, bool)
	meta() *Meta
	clone() Behavior
}

// Meta holds the fields every variant shares.
type Meta struct {
	TimeOffset *float64
	// Extra keeps unrecognized wire fields so they survive a round trip.
	Extra map[string]json.RawMessage
}

// Start implements Behavior.
func (m *Meta) Start() (float64, bool) {
	if m.TimeOffset == nil {
		return 0, false
	}
	return *m.TimeOffset, true
}

func (m *Meta) meta() *Meta { return m }

func (m Meta) cloneMeta() Meta {
	out := Meta{TimeOffset: clonePtr(m.TimeOffset)}
	if m.Extra != nil {
		out.Extra = maps.Clone(m.Extra)
	}
	return out
}

// Oscillate adds amplitude*sin(2*pi*frequency*(t-start)+phase) to Coordinate.
type Oscillate struct {
	Meta
	Coordinate  Coordinate
	Frequency   float64
	Amplitude   float64
	PhaseOffset float64
}

// Drift adds velocity*(t-start) to Coordinate, clamped to +-DriftCap.
type Drift struct {
	Meta
	Coordinate Coordinate
	Velocity   float64
	DriftCap   *float64
}

// Pulse maps a periodic waveform into [MinValue, MaxValue].
type Pulse struct {
	Meta
	Coordinate Coordinate
	Frequency  float64
	MinValue   float64
	MaxValue   float64
	Waveform   Waveform
}

// Background scrolls the layer horizontally with the global scroll.
type Background struct {
	Meta
	ScrollSpeed *float64
}

// Location is a keyframe. Nil fields are inherited from the prior keyframe
// or the layer base.
type Location struct {
	Meta
	X                 *float64
	Y                 *float64
	VerticalPercent   *float64
	HorizontalPercent *float64
	Scale             *float64
	Rotation          *float64
	ZDepth            *float64
	// Tween, when set, names the easing used to travel from the previous
	// keyframe's values to this one. Empty means snap.
	Tween string
}

// Sound schedules playback of a pre-recorded clip at its time_offset.
type Sound struct {
	Meta
	SoundFile string
	Volume    float64
	FadeIn    float64
	FadeOut   float64
	Loop      bool
}

func (*Oscillate) Kind() BehaviorKind  { return KindOscillate }
func (*Drift) Kind() BehaviorKind      { return KindDrift }
func (*Pulse) Kind() BehaviorKind      { return KindPulse }
func (*Background) Kind() BehaviorKind { return KindBackground }
func (*Location) Kind() BehaviorKind   { return KindLocation }
func (*Sound) Kind() BehaviorKind      { return KindSound }

func (b *Oscillate) clone() Behavior {
	c := *b
	c.Meta = b.cloneMeta()
	return &c
}

func (b *Drift) clone() Behavior {
	c := *b
	c.Meta = b.cloneMeta()
	c.DriftCap = clonePtr(b.DriftCap)
	return &c
}

func (b *Pulse) clone() Behavior {
	c := *b
	c.Meta = b.cloneMeta()
	return &c
}

func (b *Background) clone() Behavior {
	c := *b
	c.Meta = b.cloneMeta()
	c.ScrollSpeed = clonePtr(b.ScrollSpeed)
	return &c
}

func (b *Location) clone() Behavior {
	c := *b
	c.Meta = b.cloneMeta()
	c.X = clonePtr(b.X)
	c.Y = clonePtr(b.Y)
	c.VerticalPercent = clonePtr(b.VerticalPercent)
	c.HorizontalPercent = clonePtr(b.HorizontalPercent)
	c.Scale = clonePtr(b.Scale)
	c.Rotation = clonePtr(b.Rotation)
	c.ZDepth = clonePtr(b.ZDepth)
	return &c
}

func (b *Sound) clone() Behavior {
	c := *b
	c.Meta = b.cloneMeta()
	return &c
}

// CloneBehavior returns a deep copy of b.
func CloneBehavior(b Behavior) Behavior {
	if b == nil {
		return nil
	}
	return b.clone()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DefaultFor returns a new behavior of the given kind with its documented
// default parameters.
func DefaultFor(kind BehaviorKind) (Behavior, error) {
	switch kind {
	case KindOscillate:
		return &Oscillate{Coordinate: CoordY, Frequency: 1, Amplitude: 20}, nil
	case KindDrift:
		return &Drift{Coordinate: CoordX, Velocity: 10}, nil
	case KindPulse:
		return &Pulse{Coordinate: CoordOpacity, Frequency: 1, MinValue: 0.5, MaxValue: 1, Waveform: WaveSine}, nil
	case KindBackground:
		return &Background{ScrollSpeed: ptr(1.0)}, nil
	case KindLocation:
		return &Location{Meta: Meta{TimeOffset: ptr(0.0)}}, nil
	case KindSound:
		return &Sound{Meta: Meta{TimeOffset: ptr(0.0)}, Volume: 1}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBehaviorKind, kind)
	}
}

// Validate checks a behavior against the model invariants. duration bounds
// time_offset; pass 0 to skip the upper bound.
func Validate(b Behavior, duration float64) error {
	if b == nil {
		return fmt.Errorf("%w: nil behavior", ErrUnknownBehaviorKind)
	}
	kind := b.Kind()
	if start, ok := b.Start(); ok {
		if !isFinite(start) {
			return &BehaviorError{kind, "time_offset", "must be finite"}
		}
		if start < -PreRoll {
			return &BehaviorError{kind, "time_offset", fmt.Sprintf("%.2f is before the %.1fs pre-roll", start, PreRoll)}
		}
		if duration > 0 && start > duration {
			return &BehaviorError{kind, "time_offset", fmt.Sprintf("%.2f exceeds scene duration %.2f", start, duration)}
		}
	}

	switch v := b.(type) {
	case *Oscillate:
		if err := checkCoordinate(kind, v.Coordinate); err != nil {
			return err
		}
		if err := checkFinite(kind, "frequency", v.Frequency, "amplitude", v.Amplitude, "phase_offset", v.PhaseOffset); err != nil {
			return err
		}
		if v.Amplitude < 0 {
			return &BehaviorError{kind, "amplitude", "must be >= 0"}
		}
		if v.Frequency < 0 {
			return &BehaviorError{kind, "frequency", "must be >= 0"}
		}
	case *Drift:
		if err := checkCoordinate(kind, v.Coordinate); err != nil {
			return err
		}
		if err := checkFinite(kind, "velocity", v.Velocity); err != nil {
			return err
		}
		if v.DriftCap != nil && (!isFinite(*v.DriftCap) || *v.DriftCap < 0) {
			return &BehaviorError{kind, "drift_cap", "must be >= 0"}
		}
	case *Pulse:
		if err := checkCoordinate(kind, v.Coordinate); err != nil {
			return err
		}
		if err := checkFinite(kind, "frequency", v.Frequency, "min_value", v.MinValue, "max_value", v.MaxValue); err != nil {
			return err
		}
		if v.Frequency < 0 {
			return &BehaviorError{kind, "frequency", "must be >= 0"}
		}
		if v.MinValue > v.MaxValue {
			return &BehaviorError{kind, "min_value", "must be <= max_value"}
		}
		if v.Waveform != WaveSine && v.Waveform != WaveSpike {
			return &BehaviorError{kind, "waveform", fmt.Sprintf("unknown waveform %q", v.Waveform)}
		}
	case *Background:
		if v.ScrollSpeed != nil && !isFinite(*v.ScrollSpeed) {
			return &BehaviorError{kind, "scroll_speed", "must be finite"}
		}
	case *Location:
		fields := []struct {
			name string
			p    *float64
		}{
			{"x", v.X}, {"y", v.Y},
			{"vertical_percent", v.VerticalPercent}, {"horizontal_percent", v.HorizontalPercent},
			{"scale", v.Scale}, {"rotation", v.Rotation}, {"z_depth", v.ZDepth},
		}
		for _, f := range fields {
			if f.p != nil && !isFinite(*f.p) {
				return &BehaviorError{kind, f.name, "must be finite"}
			}
		}
		if v.Tween != "" {
			if _, ok := LookupEasing(v.Tween); !ok {
				return &BehaviorError{kind, "tween", fmt.Sprintf("unknown easing %q", v.Tween)}
			}
		}
	case *Sound:
		if err := checkFinite(kind, "volume", v.Volume, "fade_in", v.FadeIn, "fade_out", v.FadeOut); err != nil {
			return err
		}
		if v.Volume < 0 || v.Volume > 1 {
			return &BehaviorError{kind, "volume", "must be within [0, 1]"}
		}
		if v.FadeIn < 0 || v.FadeOut < 0 {
			return &BehaviorError{kind, "fade", "must be >= 0"}
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownBehaviorKind, b)
	}
	return nil
}

func checkCoordinate(kind BehaviorKind, c Coordinate) error {
	for _, ok := range AllowedCoordinates(kind) {
		if c == ok {
			return nil
		}
	}
	return &BehaviorError{kind, "coordinate", fmt.Sprintf("unknown coordinate %q", c)}
}

// checkFinite takes name/value pairs.
func checkFinite(kind BehaviorKind, pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		v, _ := pairs[i+1].(float64)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &BehaviorError{kind, name, "must be finite"}
		}
	}
	return nil
}
