package diorama

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// DefaultDuration is the scene length used when a document omits one.
const DefaultDuration = 30.0

// Scene is an identified animation document.
type Scene struct {
	Name            string
	Duration        float64
	BackgroundImage *string
	// Revision is bumped by stores on every successful save and used to
	// detect concurrent modification.
	Revision int
	Layers   []*Layer
	Extra    map[string]json.RawMessage
}

// Layer is one placed sprite in a scene.
type Layer struct {
	SpriteName  string
	XOffset     float64
	YOffset     float64
	Scale       float64
	Rotation    float64
	ZDepth      *float64
	ScrollSpeed *float64
	Behaviors   []Behavior
	Extra       map[string]json.RawMessage
}

// NewScene returns an empty scene with the default duration.
func NewScene(name string) *Scene {
	return &Scene{Name: name, Duration: DefaultDuration}
}

// NewLayer returns a layer at the origin with unit scale.
func NewLayer(sprite string) *Layer {
	return &Layer{SpriteName: sprite, Scale: 1}
}

// Clone returns a deep copy of the scene.
func (s *Scene) Clone() *Scene {
	if s == nil {
		return nil
	}
	out := *s
	out.BackgroundImage = clonePtr(s.BackgroundImage)
	out.Extra = cloneExtra(s.Extra)
	out.Layers = make([]*Layer, len(s.Layers))
	for i, l := range s.Layers {
		out.Layers[i] = l.Clone()
	}
	return &out
}

// Clone returns a deep copy of the layer and its behaviors.
func (l *Layer) Clone() *Layer {
	if l == nil {
		return nil
	}
	out := *l
	out.ZDepth = clonePtr(l.ZDepth)
	out.ScrollSpeed = clonePtr(l.ScrollSpeed)
	out.Extra = cloneExtra(l.Extra)
	if l.Behaviors != nil {
		out.Behaviors = make([]Behavior, len(l.Behaviors))
		for i, b := range l.Behaviors {
			out.Behaviors[i] = CloneBehavior(b)
		}
	}
	return &out
}

func cloneExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = bytes.Clone(v)
	}
	return out
}

// ParseScene decodes a scene document.
func ParseScene(data []byte) (*Scene, error) {
	var s Scene
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SerializeScene encodes a scene document.
func SerializeScene(s *Scene) ([]byte, error) {
	return json.Marshal(s)
}

// --- decoding ---

// fields pulls known keys out of a raw JSON object. Whatever is left after
// decoding becomes the Extra pass-through map.
type fields struct {
	raw map[string]json.RawMessage
	err error
}

func newFields(data []byte, what string) (*fields, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode %s: null object", what)
	}
	return &fields{raw: raw}, nil
}

func (f *fields) take(key string) (json.RawMessage, bool) {
	v, ok := f.raw[key]
	if !ok {
		return nil, false
	}
	delete(f.raw, key)
	if isNull(v) {
		return nil, false
	}
	return v, true
}

// optNumber decodes an optional number. Null, NaN and non-numeric strings
// read as absent.
func (f *fields) optNumber(key string) *float64 {
	v, ok := f.take(key)
	if !ok || f.err != nil {
		return nil
	}
	n, ok, err := coerceNumber(v)
	if err != nil {
		f.err = fmt.Errorf("field %q: %w", key, err)
		return nil
	}
	if !ok {
		return nil
	}
	return &n
}

func (f *fields) number(key string, dst *float64) {
	if n := f.optNumber(key); n != nil {
		*dst = *n
	}
}

func (f *fields) str(key string, dst *string) {
	v, ok := f.take(key)
	if !ok || f.err != nil {
		return
	}
	if err := json.Unmarshal(v, dst); err != nil {
		f.err = fmt.Errorf("field %q: %w", key, err)
	}
}

func (f *fields) boolean(key string, dst *bool) {
	v, ok := f.take(key)
	if !ok || f.err != nil {
		return
	}
	if err := json.Unmarshal(v, dst); err != nil {
		f.err = fmt.Errorf("field %q: %w", key, err)
	}
}

func (f *fields) extra() map[string]json.RawMessage {
	if len(f.raw) == 0 {
		return nil
	}
	// Stored compact so a decode of our own output compares equal.
	for k, v := range f.raw {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err == nil {
			f.raw[k] = buf.Bytes()
		}
	}
	return f.raw
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}

// coerceNumber accepts JSON numbers and numeric strings. ok is false when
// the value is not a finite number.
func coerceNumber(v json.RawMessage) (n float64, ok bool, err error) {
	if err := json.Unmarshal(v, &n); err == nil {
		return n, isFinite(n), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false, fmt.Errorf("not a number: %s", v)
	}
	n, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if perr != nil || !isFinite(n) {
		return 0, false, nil
	}
	return n, true, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scene) UnmarshalJSON(data []byte) error {
	f, err := newFields(data, "scene")
	if err != nil {
		return err
	}
	out := Scene{Duration: DefaultDuration}
	f.str("name", &out.Name)
	f.number("duration", &out.Duration)
	if v, ok := f.take("background_image"); ok && f.err == nil {
		var img string
		if err := json.Unmarshal(v, &img); err != nil {
			return fmt.Errorf("decode scene: field \"background_image\": %w", err)
		}
		out.BackgroundImage = &img
	}
	if rev := f.optNumber("revision"); rev != nil {
		out.Revision = int(*rev)
	}
	if v, ok := f.take("layers"); ok && f.err == nil {
		var raws []json.RawMessage
		if err := json.Unmarshal(v, &raws); err != nil {
			return fmt.Errorf("decode scene: field \"layers\": %w", err)
		}
		out.Layers = make([]*Layer, 0, len(raws))
		for i, raw := range raws {
			l := &Layer{}
			if err := l.UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("decode scene: layer %d: %w", i, err)
			}
			out.Layers = append(out.Layers, l)
		}
	}
	if f.err != nil {
		return fmt.Errorf("decode scene: %w", f.err)
	}
	if out.Duration <= 0 {
		out.Duration = DefaultDuration
	}
	out.Extra = f.extra()
	*s = out
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Layer) UnmarshalJSON(data []byte) error {
	f, err := newFields(data, "layer")
	if err != nil {
		return err
	}
	out := Layer{Scale: 1}
	f.str("sprite_name", &out.SpriteName)
	f.number("x_offset", &out.XOffset)
	f.number("y_offset", &out.YOffset)
	f.number("scale", &out.Scale)
	f.number("rotation", &out.Rotation)
	out.ZDepth = f.optNumber("z_depth")
	out.ScrollSpeed = f.optNumber("scroll_speed")
	if v, ok := f.take("behaviors"); ok && f.err == nil {
		var raws []json.RawMessage
		if err := json.Unmarshal(v, &raws); err != nil {
			return fmt.Errorf("field \"behaviors\": %w", err)
		}
		out.Behaviors = make([]Behavior, 0, len(raws))
		for i, raw := range raws {
			b, err := decodeBehavior(raw)
			if err != nil {
				return fmt.Errorf("behavior %d: %w", i, err)
			}
			out.Behaviors = append(out.Behaviors, b)
		}
	}
	if f.err != nil {
		return f.err
	}
	if out.SpriteName == "" {
		return fmt.Errorf("missing sprite_name")
	}
	out.Rotation = NormalizeRotation(out.Rotation)
	out.Extra = f.extra()
	*l = out
	return nil
}

// DecodeBehavior decodes a single behavior object.
func DecodeBehavior(data []byte) (Behavior, error) {
	return decodeBehavior(data)
}

func decodeBehavior(data []byte) (Behavior, error) {
	f, err := newFields(data, "behavior")
	if err != nil {
		return nil, err
	}
	var typ string
	f.str("type", &typ)
	if f.err != nil {
		return nil, f.err
	}
	kind, err := ParseBehaviorKind(typ)
	if err != nil {
		return nil, err
	}
	b, err := DefaultFor(kind)
	if err != nil {
		return nil, err
	}
	m := b.meta()
	m.TimeOffset = f.optNumber("time_offset")

	switch v := b.(type) {
	case *Oscillate:
		f.str("coordinate", (*string)(&v.Coordinate))
		f.number("frequency", &v.Frequency)
		f.number("amplitude", &v.Amplitude)
		f.number("phase_offset", &v.PhaseOffset)
	case *Drift:
		f.str("coordinate", (*string)(&v.Coordinate))
		f.number("velocity", &v.Velocity)
		v.DriftCap = f.optNumber("drift_cap")
	case *Pulse:
		f.str("coordinate", (*string)(&v.Coordinate))
		f.number("frequency", &v.Frequency)
		f.number("min_value", &v.MinValue)
		f.number("max_value", &v.MaxValue)
		f.str("waveform", (*string)(&v.Waveform))
	case *Background:
		v.ScrollSpeed = f.optNumber("scroll_speed")
	case *Location:
		v.X = f.optNumber("x")
		v.Y = f.optNumber("y")
		v.VerticalPercent = f.optNumber("vertical_percent")
		v.HorizontalPercent = f.optNumber("horizontal_percent")
		v.Scale = f.optNumber("scale")
		v.Rotation = f.optNumber("rotation")
		v.ZDepth = f.optNumber("z_depth")
		f.str("tween", &v.Tween)
	case *Sound:
		f.str("sound_file", &v.SoundFile)
		f.number("volume", &v.Volume)
		f.number("fade_in", &v.FadeIn)
		f.number("fade_out", &v.FadeOut)
		f.boolean("loop", &v.Loop)
	}
	if f.err != nil {
		return nil, f.err
	}
	m.Extra = f.extra()
	return b, nil
}

// --- encoding ---

type object map[string]any

func newObject(extra map[string]json.RawMessage) object {
	o := make(object, len(extra)+8)
	for k, v := range extra {
		o[k] = v
	}
	return o
}

func (o object) optNumber(key string, p *float64) {
	if p != nil && isFinite(*p) {
		o[key] = *p
	}
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// MarshalJSON implements json.Marshaler.
func (s *Scene) MarshalJSON() ([]byte, error) {
	o := newObject(s.Extra)
	o["name"] = s.Name
	o["duration"] = finiteOr(s.Duration, DefaultDuration)
	if s.BackgroundImage != nil {
		o["background_image"] = *s.BackgroundImage
	} else {
		o["background_image"] = nil
	}
	if s.Revision != 0 {
		o["revision"] = s.Revision
	}
	layers := s.Layers
	if layers == nil {
		layers = []*Layer{}
	}
	o["layers"] = layers
	return json.Marshal(o)
}

// MarshalJSON implements json.Marshaler.
func (l *Layer) MarshalJSON() ([]byte, error) {
	o := newObject(l.Extra)
	o["sprite_name"] = l.SpriteName
	o["x_offset"] = finiteOr(l.XOffset, 0)
	o["y_offset"] = finiteOr(l.YOffset, 0)
	o["scale"] = finiteOr(l.Scale, 1)
	o["rotation"] = finiteOr(l.Rotation, 0)
	o.optNumber("z_depth", l.ZDepth)
	o.optNumber("scroll_speed", l.ScrollSpeed)
	behaviors := make([]json.RawMessage, 0, len(l.Behaviors))
	for i, b := range l.Behaviors {
		raw, err := EncodeBehavior(b)
		if err != nil {
			return nil, fmt.Errorf("layer %q behavior %d: %w", l.SpriteName, i, err)
		}
		behaviors = append(behaviors, raw)
	}
	o["behaviors"] = behaviors
	return json.Marshal(o)
}

// EncodeBehavior encodes a single behavior object.
func EncodeBehavior(b Behavior) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil behavior", ErrUnknownBehaviorKind)
	}
	m := b.meta()
	o := newObject(m.Extra)
	o["type"] = string(b.Kind())
	o.optNumber("time_offset", m.TimeOffset)

	switch v := b.(type) {
	case *Oscillate:
		o["coordinate"] = string(v.Coordinate)
		o["frequency"] = v.Frequency
		o["amplitude"] = v.Amplitude
		o["phase_offset"] = v.PhaseOffset
	case *Drift:
		o["coordinate"] = string(v.Coordinate)
		o["velocity"] = v.Velocity
		o.optNumber("drift_cap", v.DriftCap)
	case *Pulse:
		o["coordinate"] = string(v.Coordinate)
		o["frequency"] = v.Frequency
		o["min_value"] = v.MinValue
		o["max_value"] = v.MaxValue
		o["waveform"] = string(v.Waveform)
	case *Background:
		o.optNumber("scroll_speed", v.ScrollSpeed)
	case *Location:
		o.optNumber("x", v.X)
		o.optNumber("y", v.Y)
		o.optNumber("vertical_percent", v.VerticalPercent)
		o.optNumber("horizontal_percent", v.HorizontalPercent)
		o.optNumber("scale", v.Scale)
		o.optNumber("rotation", v.Rotation)
		o.optNumber("z_depth", v.ZDepth)
		if v.Tween != "" {
			o["tween"] = v.Tween
		}
	case *Sound:
		o["sound_file"] = v.SoundFile
		o["volume"] = v.Volume
		o["fade_in"] = v.FadeIn
		o["fade_out"] = v.FadeOut
		o["loop"] = v.Loop
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownBehaviorKind, b)
	}
	return json.Marshal(o)
}
