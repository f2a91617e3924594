package diorama

import (
	"fmt"
	"math"
	"slices"
)

// BaseItem is the keyframe index used for a layer's base (t=0) item.
const BaseItem = -1

// timeEpsilon is how close two keyframe times must be to count as the same.
const timeEpsilon = 1e-6

// Intent is a single model mutation. Intents are the only way user input
// changes a scene; they apply to a scene copy so a failure leaves the
// original untouched. The set is closed.
type Intent interface {
	// Kind names the intent for events and logs.
	Kind() string
	apply(s *Scene) error
}

// AddLayer appends a layer. Its behaviors are validated first.
type AddLayer struct {
	Layer *Layer
}

// RemoveLayer deletes a layer by name.
type RemoveLayer struct {
	Name string
}

// PatchLayer changes base fields of a layer.
type PatchLayer struct {
	Name  string
	Patch LayerPatch
}

// SetBehaviors replaces a layer's behavior list.
type SetBehaviors struct {
	Name      string
	Behaviors []Behavior
}

// AddBehavior appends a behavior built from the kind's defaults.
type AddBehavior struct {
	Name     string
	Behavior BehaviorKind
}

// RemoveBehavior deletes the behavior at Index.
type RemoveBehavior struct {
	Name  string
	Index int
}

// MoveLayer commits a body drag: the layer is at (X, Y) at Time. After
// t=0 this writes a location keyframe at Time, otherwise it updates the
// static location or the base offsets.
type MoveLayer struct {
	Name string
	Time float64
	X, Y float64
}

// MoveKeyframe retimes and/or re-lanes a keyframe. Index is a behavior
// index or BaseItem. Nil fields are left alone. Time is ignored for the
// base item.
type MoveKeyframe struct {
	Name   string
	Index  int
	Time   *float64
	ZDepth *float64
}

// DeleteKeyframe removes the location keyframe at Index.
type DeleteKeyframe struct {
	Name  string
	Index int
}

// NormalizeLanes shifts every explicit Z >= At up by one across the whole
// scene, opening an integer lane at At.
type NormalizeLanes struct {
	At float64
}

func (AddLayer) Kind() string       { return "add-layer" }
func (RemoveLayer) Kind() string    { return "remove-layer" }
func (PatchLayer) Kind() string     { return "update-layer" }
func (SetBehaviors) Kind() string   { return "update-behaviors" }
func (AddBehavior) Kind() string    { return "add-behavior" }
func (RemoveBehavior) Kind() string { return "remove-behavior" }
func (MoveLayer) Kind() string      { return "position-changed" }
func (MoveKeyframe) Kind() string   { return "keyframe-moved" }
func (DeleteKeyframe) Kind() string { return "keyframe-deleted" }
func (NormalizeLanes) Kind() string { return "lanes-normalized" }

func findLayer(s *Scene, name string) (*Layer, int, error) {
	for i, l := range s.Layers {
		if l.SpriteName == name {
			return l, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%q: %w", name, ErrLayerNotFound)
}

func validateAll(bs []Behavior, duration float64) error {
	for i, b := range bs {
		if err := Validate(b, duration); err != nil {
			return fmt.Errorf("behavior %d: %w", i, err)
		}
	}
	return nil
}

func (in AddLayer) apply(s *Scene) error {
	if in.Layer == nil || in.Layer.SpriteName == "" {
		return &InvariantError{Op: "add layer", Reason: "missing sprite name"}
	}
	if _, _, err := findLayer(s, in.Layer.SpriteName); err == nil {
		return &InvariantError{Op: "add layer", Layer: in.Layer.SpriteName, Reason: "duplicate sprite name"}
	}
	if err := validateAll(in.Layer.Behaviors, s.Duration); err != nil {
		return err
	}
	l := in.Layer.Clone()
	l.Rotation = NormalizeRotation(l.Rotation)
	s.Layers = append(s.Layers, l)
	return nil
}

func (in RemoveLayer) apply(s *Scene) error {
	_, i, err := findLayer(s, in.Name)
	if err != nil {
		return err
	}
	s.Layers = slices.Delete(s.Layers, i, i+1)
	return nil
}

func (in PatchLayer) apply(s *Scene) error {
	l, _, err := findLayer(s, in.Name)
	if err != nil {
		return err
	}
	return in.Patch.apply(l)
}

func (in SetBehaviors) apply(s *Scene) error {
	l, _, err := findLayer(s, in.Name)
	if err != nil {
		return err
	}
	if err := validateAll(in.Behaviors, s.Duration); err != nil {
		return err
	}
	l.Behaviors = make([]Behavior, len(in.Behaviors))
	for i, b := range in.Behaviors {
		l.Behaviors[i] = CloneBehavior(b)
	}
	return nil
}

func (in AddBehavior) apply(s *Scene) error {
	l, _, err := findLayer(s, in.Name)
	if err != nil {
		return err
	}
	b, err := DefaultFor(in.Behavior)
	if err != nil {
		return err
	}
	l.Behaviors = append(l.Behaviors, b)
	return nil
}

func (in RemoveBehavior) apply(s *Scene) error {
	l, _, err := findLayer(s, in.Name)
	if err != nil {
		return err
	}
	if in.Index < 0 || in.Index >= len(l.Behaviors) {
		return &InvariantError{Op: "remove behavior", Layer: in.Name, Reason: fmt.Sprintf("index %d out of range", in.Index)}
	}
	l.Behaviors = slices.Delete(l.Behaviors, in.Index, in.Index+1)
	return nil
}

func (in MoveLayer) apply(s *Scene) error {
	l, _, err := findLayer(s, in.Name)
	if err != nil {
		return err
	}
	if !isFinite(in.X) || !isFinite(in.Y) || !isFinite(in.Time) {
		return &InvariantError{Op: "move layer", Layer: in.Name, Reason: "non-finite position"}
	}
	if in.Time > 0 {
		t := clamp(in.Time, 0, s.Duration)
		for _, kf := range Keyframes(l) {
			if math.Abs(kf.Time-t) < timeEpsilon {
				setXY(kf.Location, in.X, in.Y)
				return nil
			}
		}
		loc := &Location{Meta: Meta{TimeOffset: ptr(t)}}
		setXY(loc, in.X, in.Y)
		l.Behaviors = append(l.Behaviors, loc)
		return nil
	}
	if static, _ := staticLocation(l); static != nil && definesPosition(static) {
		setXY(static, in.X, in.Y)
		return nil
	}
	l.XOffset, l.YOffset = in.X, in.Y
	return nil
}

func definesPosition(loc *Location) bool {
	return loc.X != nil || loc.Y != nil || loc.HorizontalPercent != nil || loc.VerticalPercent != nil
}

// setXY writes absolute pixels and drops the percent fields they replace.
func setXY(loc *Location, x, y float64) {
	loc.X = ptr(x)
	loc.Y = ptr(y)
	loc.HorizontalPercent = nil
	loc.VerticalPercent = nil
}

func (in MoveKeyframe) apply(s *Scene) error {
	l, _, err := findLayer(s, in.Name)
	if err != nil {
		return err
	}
	if in.ZDepth != nil && !isFinite(*in.ZDepth) {
		return &InvariantError{Op: "move keyframe", Layer: in.Name, Reason: "non-finite z_depth"}
	}
	static, staticIdx := staticLocation(l)
	if in.Index == BaseItem || (in.Index == staticIdx && staticIdx >= 0) {
		if in.ZDepth == nil {
			return nil
		}
		if static != nil && static.ZDepth != nil {
			static.ZDepth = ptr(*in.ZDepth)
		} else {
			l.ZDepth = ptr(*in.ZDepth)
		}
		return nil
	}
	loc, err := keyframeAt(l, in.Index)
	if err != nil {
		return err
	}
	if in.Time != nil {
		if !isFinite(*in.Time) {
			return &InvariantError{Op: "move keyframe", Layer: in.Name, Reason: "non-finite time"}
		}
		loc.TimeOffset = ptr(clamp(*in.Time, 0, s.Duration))
	}
	if in.ZDepth != nil {
		loc.ZDepth = ptr(*in.ZDepth)
	}
	return nil
}

func keyframeAt(l *Layer, index int) (*Location, error) {
	if index < 0 || index >= len(l.Behaviors) {
		return nil, fmt.Errorf("%q index %d: %w", l.SpriteName, index, ErrKeyframeNotFound)
	}
	loc, ok := l.Behaviors[index].(*Location)
	if !ok {
		return nil, fmt.Errorf("%q index %d is %s: %w", l.SpriteName, index, l.Behaviors[index].Kind(), ErrKeyframeNotFound)
	}
	return loc, nil
}

func (in DeleteKeyframe) apply(s *Scene) error {
	l, _, err := findLayer(s, in.Name)
	if err != nil {
		return err
	}
	if _, err := keyframeAt(l, in.Index); err != nil {
		return err
	}
	l.Behaviors = slices.Delete(l.Behaviors, in.Index, in.Index+1)
	return nil
}

func (in NormalizeLanes) apply(s *Scene) error {
	if !isFinite(in.At) {
		return &InvariantError{Op: "normalize lanes", Reason: "non-finite lane"}
	}
	bump := func(z *float64) *float64 {
		if z != nil && *z >= in.At {
			return ptr(*z + 1)
		}
		return z
	}
	for _, l := range s.Layers {
		explicit := l.ZDepth != nil
		l.ZDepth = bump(l.ZDepth)
		for _, b := range l.Behaviors {
			if loc, ok := b.(*Location); ok {
				explicit = explicit || loc.ZDepth != nil
				loc.ZDepth = bump(loc.ZDepth)
			}
		}
		// A layer with no Z anywhere sits at 0 and has to move too.
		if !explicit && 0 >= in.At {
			l.ZDepth = ptr(1.0)
		}
	}
	return nil
}
