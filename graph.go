package diorama

import (
	"fmt"
	"slices"
)

// LayerPatch carries the base fields an update may change. Nil fields are
// left alone.
type LayerPatch struct {
	XOffset     *float64
	YOffset     *float64
	Scale       *float64
	Rotation    *float64
	ZDepth      *float64
	ScrollSpeed *float64
	// ClearZDepth removes the layer's explicit Z so the smart default applies.
	ClearZDepth bool
}

func (p LayerPatch) apply(l *Layer) error {
	for _, v := range []*float64{p.XOffset, p.YOffset, p.Scale, p.Rotation, p.ZDepth, p.ScrollSpeed} {
		if v != nil && !isFinite(*v) {
			return &InvariantError{Op: "update layer", Layer: l.SpriteName, Reason: "non-finite value"}
		}
	}
	if p.XOffset != nil {
		l.XOffset = *p.XOffset
	}
	if p.YOffset != nil {
		l.YOffset = *p.YOffset
	}
	if p.Scale != nil {
		l.Scale = *p.Scale
	}
	if p.Rotation != nil {
		l.Rotation = NormalizeRotation(*p.Rotation)
	}
	if p.ClearZDepth {
		l.ZDepth = nil
	}
	if p.ZDepth != nil {
		l.ZDepth = ptr(*p.ZDepth)
	}
	if p.ScrollSpeed != nil {
		l.ScrollSpeed = ptr(*p.ScrollSpeed)
	}
	return nil
}

// SceneGraph owns the working copy of a scene: the ordered layers, a
// name index, selection, visibility and the drag preview shadow.
//
// Layers are identified by sprite name. Callers look a layer up on every
// operation rather than holding on to *Layer across mutations.
type SceneGraph struct {
	scene *Scene
	index map[string]int

	// selection is kept in click order; the primary is one of its members.
	selection []string
	primary   string

	visible map[string]bool
	preview map[string]*Layer

	// version increments on every successful mutation.
	version uint64

	onRemove []func(name string)
}

// NewSceneGraph wraps a scene. A nil scene yields an empty untitled one.
// Duplicate sprite names in the input are an invariant violation.
func NewSceneGraph(scene *Scene) (*SceneGraph, error) {
	if scene == nil {
		scene = NewScene("untitled")
	}
	g := &SceneGraph{
		visible: make(map[string]bool),
		preview: make(map[string]*Layer),
	}
	if err := g.reset(scene); err != nil {
		return nil, err
	}
	return g, nil
}

func buildIndex(s *Scene) (map[string]int, error) {
	idx := make(map[string]int, len(s.Layers))
	for i, l := range s.Layers {
		if l == nil {
			return nil, &InvariantError{Op: "index", Reason: fmt.Sprintf("nil layer at %d", i)}
		}
		if _, dup := idx[l.SpriteName]; dup {
			return nil, &InvariantError{Op: "index", Layer: l.SpriteName, Reason: "duplicate sprite name"}
		}
		idx[l.SpriteName] = i
	}
	return idx, nil
}

// reset swaps in a new scene, dropping selection members and previews for
// layers that no longer exist.
func (g *SceneGraph) reset(s *Scene) error {
	idx, err := buildIndex(s)
	if err != nil {
		return err
	}
	g.scene = s
	g.index = idx
	g.pruneSelection()
	for name := range g.preview {
		if _, ok := idx[name]; !ok {
			delete(g.preview, name)
		}
	}
	for name := range g.visible {
		if _, ok := idx[name]; !ok {
			delete(g.visible, name)
		}
	}
	g.version++
	return nil
}

// Scene returns the working scene. Treat it as read-only; mutate through
// the graph.
func (g *SceneGraph) Scene() *Scene { return g.scene }

// SetRevision records the stored revision after a save. It does not count
// as a mutation.
func (g *SceneGraph) SetRevision(rev int) { g.scene.Revision = rev }

// Version returns a counter that changes on every mutation.
func (g *SceneGraph) Version() uint64 { return g.version }

// Layers returns the layers in insertion order. The returned slice MUST
// NOT be mutated.
func (g *SceneGraph) Layers() []*Layer { return g.scene.Layers }

// Len returns the number of layers.
func (g *SceneGraph) Len() int { return len(g.scene.Layers) }

// GetLayer looks a layer up by sprite name.
func (g *SceneGraph) GetLayer(name string) (*Layer, bool) {
	i, ok := g.index[name]
	if !ok {
		return nil, false
	}
	return g.scene.Layers[i], true
}

// OnRemove registers a callback fired after a layer leaves the graph,
// whether by RemoveLayer, Apply or Replace.
func (g *SceneGraph) OnRemove(fn func(name string)) {
	g.onRemove = append(g.onRemove, fn)
}

// AddLayer appends a layer. A duplicate sprite name is rejected and the
// graph is left unchanged.
func (g *SceneGraph) AddLayer(l *Layer) error {
	return g.Apply(AddLayer{Layer: l})
}

// RemoveLayer removes a layer by name.
func (g *SceneGraph) RemoveLayer(name string) error {
	return g.Apply(RemoveLayer{Name: name})
}

// UpdateLayer applies a patch to a layer's base fields.
func (g *SceneGraph) UpdateLayer(name string, patch LayerPatch) error {
	return g.Apply(PatchLayer{Name: name, Patch: patch})
}

// UpdateBehaviors replaces a layer's behavior list. Every behavior is
// validated against the scene duration first.
func (g *SceneGraph) UpdateBehaviors(name string, behaviors []Behavior) error {
	return g.Apply(SetBehaviors{Name: name, Behaviors: behaviors})
}

// Apply runs intents against a copy of the scene and swaps it in only if
// all of them succeed, so a failed mutation leaves the graph unchanged.
func (g *SceneGraph) Apply(intents ...Intent) error {
	next, err := applyIntents(g.scene, intents)
	if err != nil {
		return err
	}
	return g.replace(next)
}

// Replace swaps in an authoritative snapshot.
func (g *SceneGraph) Replace(s *Scene) error {
	if s == nil {
		return &InvariantError{Op: "replace", Reason: "nil scene"}
	}
	return g.replace(s.Clone())
}

func (g *SceneGraph) replace(next *Scene) error {
	before := g.index
	if err := g.reset(next); err != nil {
		logf("invariant violation: %v", err)
		return err
	}
	for name := range before {
		if _, ok := g.index[name]; ok {
			continue
		}
		for _, fn := range g.onRemove {
			fn(name)
		}
	}
	return nil
}

func applyIntents(s *Scene, intents []Intent) (*Scene, error) {
	next := s.Clone()
	for _, in := range intents {
		if in == nil {
			continue
		}
		if err := in.apply(next); err != nil {
			return nil, err
		}
	}
	if _, err := buildIndex(next); err != nil {
		return nil, err
	}
	return next, nil
}

// --- Selection ---

// Select makes name the only selected layer and the primary. An unknown
// name clears the selection.
func (g *SceneGraph) Select(name string) {
	g.selection = g.selection[:0]
	g.primary = ""
	if _, ok := g.index[name]; !ok {
		return
	}
	g.selection = append(g.selection, name)
	g.primary = name
}

// ToggleSelect adds name to the selection as the new primary, or removes it
// if already selected. Removing the primary promotes the most recently
// selected remaining member.
func (g *SceneGraph) ToggleSelect(name string) {
	if _, ok := g.index[name]; !ok {
		return
	}
	if i := slices.Index(g.selection, name); i >= 0 {
		g.selection = slices.Delete(g.selection, i, i+1)
		if g.primary == name {
			g.primary = ""
			if n := len(g.selection); n > 0 {
				g.primary = g.selection[n-1]
			}
		}
		return
	}
	g.selection = append(g.selection, name)
	g.primary = name
}

// SetPrimary makes an already selected layer the primary without changing
// the set. Unselected names are added.
func (g *SceneGraph) SetPrimary(name string) {
	if _, ok := g.index[name]; !ok {
		return
	}
	if !slices.Contains(g.selection, name) {
		g.selection = append(g.selection, name)
	}
	g.primary = name
}

// ClearSelection empties the selection set.
func (g *SceneGraph) ClearSelection() {
	g.selection = g.selection[:0]
	g.primary = ""
}

// Primary returns the primary selected layer name, or "".
func (g *SceneGraph) Primary() string { return g.primary }

// Selected returns the selection set in click order.
func (g *SceneGraph) Selected() []string {
	return slices.Clone(g.selection)
}

// IsSelected reports whether name is in the selection set.
func (g *SceneGraph) IsSelected(name string) bool {
	return slices.Contains(g.selection, name)
}

func (g *SceneGraph) pruneSelection() {
	g.selection = slices.DeleteFunc(g.selection, func(name string) bool {
		_, ok := g.index[name]
		return !ok
	})
	if _, ok := g.index[g.primary]; !ok {
		g.primary = ""
		if n := len(g.selection); n > 0 {
			g.primary = g.selection[n-1]
		}
	}
}

// --- Visibility ---

// SetVisible shows or hides a layer.
func (g *SceneGraph) SetVisible(name string, visible bool) {
	if _, ok := g.index[name]; !ok {
		return
	}
	if visible {
		delete(g.visible, name)
		return
	}
	g.visible[name] = false
}

// IsVisible reports whether a layer is drawn. Unset means visible.
func (g *SceneGraph) IsVisible(name string) bool {
	v, ok := g.visible[name]
	return !ok || v
}

// --- Preview shadow ---

// SetPreview installs a non-committed stand-in for a layer. The renderer
// and timeline read it through Effective until it is cleared.
func (g *SceneGraph) SetPreview(name string, l *Layer) {
	if _, ok := g.index[name]; !ok || l == nil {
		return
	}
	g.preview[name] = l
}

// PreviewIntents applies intents to a copy of one layer and installs the
// result as that layer's preview.
func (g *SceneGraph) PreviewIntents(name string, intents ...Intent) error {
	next, err := applyIntents(g.scene, intents)
	if err != nil {
		return err
	}
	for _, l := range next.Layers {
		if l.SpriteName == name {
			g.SetPreview(name, l)
			return nil
		}
	}
	return fmt.Errorf("preview %q: %w", name, ErrLayerNotFound)
}

// ClearPreview drops the preview for one layer.
func (g *SceneGraph) ClearPreview(name string) {
	delete(g.preview, name)
}

// ClearPreviews drops every preview.
func (g *SceneGraph) ClearPreviews() {
	clear(g.preview)
}

// HasPreview reports whether a layer currently shows a preview.
func (g *SceneGraph) HasPreview(name string) bool {
	_, ok := g.preview[name]
	return ok
}

// Effective returns the preview for a layer if one is set, else the layer.
func (g *SceneGraph) Effective(name string) (*Layer, bool) {
	if l, ok := g.preview[name]; ok {
		return l, true
	}
	return g.GetLayer(name)
}

// EffectiveScene returns a shallow view of the scene with previews
// substituted. Layers are shared, not copied.
func (g *SceneGraph) EffectiveScene() *Scene {
	if len(g.preview) == 0 {
		return g.scene
	}
	out := *g.scene
	out.Layers = make([]*Layer, len(g.scene.Layers))
	for i, l := range g.scene.Layers {
		if p, ok := g.preview[l.SpriteName]; ok {
			out.Layers[i] = p
		} else {
			out.Layers[i] = l
		}
	}
	return &out
}
