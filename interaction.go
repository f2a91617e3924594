package diorama

import (
	"math"

	"github.com/tanema/gween/ease"
)

// InteractionState is the canvas pointer state.
type InteractionState uint8

const (
	StateIdle InteractionState = iota
	StateBodyDrag
	StateHandleDrag
)

func (s InteractionState) String() string {
	switch s {
	case StateBodyDrag:
		return "body-drag"
	case StateHandleDrag:
		return "handle-drag"
	default:
		return "idle"
	}
}

// Committer accepts committed intents. Session implements it.
type Committer interface {
	Commit(intents ...Intent) error
}

// graphCommitter applies intents straight to the graph. It stands in when
// no session is wired.
type graphCommitter struct{ g *SceneGraph }

func (c graphCommitter) Commit(intents ...Intent) error { return c.g.Apply(intents...) }

// Undoer is implemented by committers that can step a linear history.
type Undoer interface {
	Undo() error
	Redo() error
}

// Nudge and scale steps for keyboard editing.
const (
	nudgeFine   = 1.0
	nudgeNormal = 10.0
	nudgeCoarse = 50.0
	scaleStep   = 0.1
	scaleCoarse = 0.5
	minScale    = 0.01

	snapBackDuration = 0.15
)

// Interaction is the canvas controller: hit testing, selection, body and
// handle drags, and keyboard editing. Coordinates are canvas pixels.
//
// Drags only change the graph's preview shadow; the model is touched once,
// on release, through the Committer.
type Interaction struct {
	graph    *SceneGraph
	clock    *Clock
	renderer *Renderer
	commit   Committer

	dragThreshold float64

	// TextFocus suppresses Space while the host has a text field focused.
	TextFocus bool
	// OnNotice receives rejected mutations.
	OnNotice func(Notice)

	state  InteractionState
	handle HandleKind
	target string
	moved  bool

	startX, startY float64
	lastX, lastY   float64

	// Captured at press.
	startPos    Vec2
	startScale  float64
	startRot    float64
	center      Vec2
	startDist   float64
	startAngle  float64
	pressTime   float64
	pending     Intent
	snapBack    *offsetTween
	snapTarget  string
	snapTime    float64
	snapOrigin  Vec2
}

// NewInteraction wires the controller. renderer supplies last-frame
// geometry for hit testing.
func NewInteraction(g *SceneGraph, c *Clock, r *Renderer, commit Committer, dragThreshold float64) *Interaction {
	if dragThreshold <= 0 {
		dragThreshold = DefaultDragThreshold
	}
	if commit == nil {
		commit = graphCommitter{g}
	}
	return &Interaction{graph: g, clock: c, renderer: r, commit: commit, dragThreshold: dragThreshold}
}

// State returns the pointer state.
func (in *Interaction) State() InteractionState { return in.state }

// ActiveHandle returns the handle being dragged, or HandleNone.
func (in *Interaction) ActiveHandle() HandleKind { return in.handle }

// Target returns the layer being dragged.
func (in *Interaction) Target() string { return in.target }

// PointerDown handles a press at canvas point (x, y).
func (in *Interaction) PointerDown(x, y float64, button MouseButton, mods KeyModifiers) {
	if button != MouseButtonLeft || in.state != StateIdle {
		return
	}
	in.finishSnapBack()
	in.startX, in.startY = x, y
	in.lastX, in.lastY = x, y
	in.moved = false
	in.pending = nil
	in.pressTime = in.clock.Time()

	// Handles of the primary selection win over bodies.
	if p := in.graph.Primary(); p != "" {
		if cmd, ok := in.renderer.Command(p); ok {
			if k := hitHandle(layerHandles(cmd.Matrix, cmd.Width, cmd.Height), x, y); k != HandleNone {
				in.beginHandle(p, k, &cmd, x, y)
				return
			}
		}
	}

	hit, ok := in.renderer.HitTest(x, y)
	if !ok {
		in.graph.ClearSelection()
		return
	}
	if mods.Has(ModShift) {
		in.graph.ToggleSelect(hit)
		if !in.graph.IsSelected(hit) {
			return
		}
	} else if in.graph.IsSelected(hit) {
		in.graph.SetPrimary(hit)
	} else {
		in.graph.Select(hit)
	}
	l, ok := in.graph.GetLayer(hit)
	if !ok {
		return
	}
	in.state = StateBodyDrag
	in.target = hit
	in.startPos = in.positionAt(l, in.pressTime)
}

func (in *Interaction) beginHandle(name string, k HandleKind, cmd *DrawCommand, x, y float64) {
	l, ok := in.graph.GetLayer(name)
	if !ok {
		return
	}
	in.state = StateHandleDrag
	in.handle = k
	in.target = name
	in.startScale = l.Scale
	in.startRot = l.Rotation
	in.center = centerOf(cmd.Matrix, cmd.Width, cmd.Height)
	in.startDist = math.Hypot(x-in.center.X, y-in.center.Y)
	in.startAngle = math.Atan2(y-in.center.Y, x-in.center.X)
}

// positionAt is the position a body drag starts from: the keyframed
// location in force at t, else the base offsets.
func (in *Interaction) positionAt(l *Layer, t float64) Vec2 {
	loc := ResolveLocation(l, t, in.renderer.Stage())
	p := Vec2{l.XOffset, l.YOffset}
	if loc.X != nil {
		p.X = *loc.X
	}
	if loc.Y != nil {
		p.Y = *loc.Y
	}
	return p
}

// PointerMove handles pointer motion with the button held.
func (in *Interaction) PointerMove(x, y float64) {
	if in.state == StateIdle {
		return
	}
	in.lastX, in.lastY = x, y
	if !in.moved {
		if math.Hypot(x-in.startX, y-in.startY) < in.dragThreshold {
			return
		}
		in.moved = true
	}

	var intent Intent
	switch in.state {
	case StateBodyDrag:
		intent = MoveLayer{
			Name: in.target,
			Time: in.pressTime,
			X:    in.startPos.X + (x - in.startX),
			Y:    in.startPos.Y + (y - in.startY),
		}
	case StateHandleDrag:
		var patch LayerPatch
		switch in.handle {
		case HandleScale:
			s := in.startScale
			if in.startDist > 0 {
				s = in.startScale * math.Hypot(x-in.center.X, y-in.center.Y) / in.startDist
			}
			patch.Scale = ptr(math.Max(s, minScale))
		case HandleRotate:
			delta := (math.Atan2(y-in.center.Y, x-in.center.X) - in.startAngle) * 180 / math.Pi
			patch.Rotation = ptr(NormalizeRotation(in.startRot + delta))
		}
		intent = PatchLayer{Name: in.target, Patch: patch}
	}
	if err := in.graph.PreviewIntents(in.target, intent); err != nil {
		logf("preview %q: %v", in.target, err)
		return
	}
	in.pending = intent
}

// PointerUp ends a drag, committing it if the pointer moved past the
// threshold.
func (in *Interaction) PointerUp(x, y float64) {
	if in.state == StateIdle {
		return
	}
	if x != in.lastX || y != in.lastY {
		in.PointerMove(x, y)
	}
	target, pending := in.target, in.pending
	in.reset()
	in.graph.ClearPreview(target)
	if pending != nil {
		in.apply(pending)
	}
}

// Cancel aborts a drag and restores the state captured at press. A body
// drag slides back to where it started.
func (in *Interaction) Cancel() bool {
	if in.state == StateIdle {
		return false
	}
	if in.state == StateBodyDrag && in.moved {
		in.snapBack = newOffsetTween(in.lastX-in.startX, in.lastY-in.startY, snapBackDuration, ease.OutQuad)
		in.snapTarget = in.target
		in.snapTime = in.pressTime
		in.snapOrigin = in.startPos
	} else {
		in.graph.ClearPreview(in.target)
	}
	in.reset()
	return true
}

func (in *Interaction) reset() {
	in.state = StateIdle
	in.handle = HandleNone
	in.target = ""
	in.moved = false
	in.pending = nil
}

// Update advances the cancel snap-back animation.
func (in *Interaction) Update(dt float64) {
	if in.snapBack == nil {
		return
	}
	dx, dy, done := in.snapBack.Update(float32(dt))
	if done {
		in.finishSnapBack()
		return
	}
	_ = in.graph.PreviewIntents(in.snapTarget, MoveLayer{
		Name: in.snapTarget,
		Time: in.snapTime,
		X:    in.snapOrigin.X + dx,
		Y:    in.snapOrigin.Y + dy,
	})
}

func (in *Interaction) finishSnapBack() {
	if in.snapBack == nil {
		return
	}
	in.graph.ClearPreview(in.snapTarget)
	in.snapBack = nil
	in.snapTarget = ""
}

func (in *Interaction) apply(intents ...Intent) bool {
	if err := in.commit.Commit(intents...); err != nil {
		if in.OnNotice != nil {
			in.OnNotice(noticeFor(err))
		}
		return false
	}
	return true
}

// KeyDown handles an editor key and reports whether it was consumed.
func (in *Interaction) KeyDown(key Key, mods KeyModifiers) bool {
	switch key {
	case KeySpace:
		if in.TextFocus {
			return false
		}
		in.clock.Toggle()
		return true
	case KeyEscape:
		if in.Cancel() {
			return true
		}
		in.graph.ClearSelection()
		return true
	case KeyZ, KeyY:
		if !mods.Has(ModCtrl) && !mods.Has(ModMeta) {
			return false
		}
		u, ok := in.commit.(Undoer)
		if !ok {
			return false
		}
		var err error
		if key == KeyZ {
			err = u.Undo()
		} else {
			err = u.Redo()
		}
		if err != nil && in.OnNotice != nil {
			in.OnNotice(noticeFor(err))
		}
		return true
	}

	if in.state != StateIdle {
		return false
	}
	switch key {
	case KeyLeft, KeyRight, KeyUp, KeyDown:
		return in.nudge(key, mods)
	case KeyPlus, KeyMinus:
		return in.scaleBy(key, mods)
	case KeyDelete:
		sel := in.graph.Selected()
		if len(sel) == 0 {
			return false
		}
		intents := make([]Intent, len(sel))
		for i, name := range sel {
			intents[i] = RemoveLayer{Name: name}
		}
		in.apply(intents...)
		return true
	}
	return false
}

func (in *Interaction) nudge(key Key, mods KeyModifiers) bool {
	name := in.graph.Primary()
	l, ok := in.graph.GetLayer(name)
	if !ok {
		return false
	}
	step := nudgeNormal
	switch {
	case mods.Has(ModCtrl):
		step = nudgeFine
	case mods.Has(ModShift):
		step = nudgeCoarse
	}
	var dx, dy float64
	switch key {
	case KeyLeft:
		dx = -step
	case KeyRight:
		dx = step
	case KeyUp:
		dy = -step
	case KeyDown:
		dy = step
	}
	t := in.clock.Time()
	p := in.positionAt(l, t)
	in.apply(MoveLayer{Name: name, Time: t, X: p.X + dx, Y: p.Y + dy})
	return true
}

func (in *Interaction) scaleBy(key Key, mods KeyModifiers) bool {
	name := in.graph.Primary()
	l, ok := in.graph.GetLayer(name)
	if !ok {
		return false
	}
	step := scaleStep
	if mods.Has(ModShift) {
		step = scaleCoarse
	}
	if key == KeyMinus {
		step = -step
	}
	in.apply(PatchLayer{Name: name, Patch: LayerPatch{Scale: ptr(math.Max(l.Scale+step, minScale))}})
	return true
}
