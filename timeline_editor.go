package diorama

import (
	"fmt"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/tanema/gween/ease"
)

// KeyframeEvent identifies a timeline item and where it is (or would be).
type KeyframeEvent struct {
	Layer string
	Index int
	Time  float64
	Z     float64
}

// MenuAction is a context menu entry.
type MenuAction uint8

const (
	MenuDeleteKeyframe MenuAction = iota
	MenuFocusLayer
)

func (a MenuAction) String() string {
	switch a {
	case MenuDeleteKeyframe:
		return "Delete Keyframe"
	case MenuFocusLayer:
		return "Focus Layer"
	default:
		return "unknown"
	}
}

// ContextMenu is the right-click menu over a timeline item.
type ContextMenu struct {
	X, Y    float64
	Item    TimelineItem
	Actions []MenuAction
}

const (
	itemHitRadius = 6.0
	menuWidth     = 120.0
	menuRowHeight = 16.0
	followScroll  = 0.25
)

type timelineState uint8

const (
	timelineIdle timelineState = iota
	timelinePress
	timelineDrag
	timelineScrub
)

// TimelineEditor is the two-axis keyframe editor: X is time, Y is one lane
// per distinct Z. Pointer coordinates are panel-local with the ruler at the
// top.
type TimelineEditor struct {
	graph  *SceneGraph
	clock  *Clock
	commit Committer
	cfg    TimelineConfig

	zoom   float64
	view   Viewport
	bounds Rect

	OnKeyframeSelect  func(KeyframeEvent)
	OnKeyframePreview func(KeyframeEvent)
	OnKeyframeMove    func(KeyframeEvent)
	OnNotice          func(Notice)

	state    timelineState
	layout   Timeline
	item     TimelineItem
	startX   float64
	startY   float64
	lastX    float64
	lastY    float64
	pending  []Intent
	pendingE KeyframeEvent

	selected *KeyframeEvent
	menu     *ContextMenu
}

// NewTimelineEditor wires the editor. A nil committer applies intents
// straight to the graph.
func NewTimelineEditor(g *SceneGraph, c *Clock, commit Committer, cfg TimelineConfig) *TimelineEditor {
	if commit == nil {
		commit = graphCommitter{g}
	}
	if cfg.DragThreshold <= 0 {
		cfg.DragThreshold = DefaultDragThreshold
	}
	e := &TimelineEditor{graph: g, clock: c, commit: commit, cfg: cfg, zoom: cfg.Zoom}
	e.SetBounds(Rect{Width: 800, Height: cfg.Height})
	return e
}

// SetBounds places the panel on screen. Only Draw uses the position.
func (e *TimelineEditor) SetBounds(r Rect) {
	e.bounds = r
	e.view.Width = r.Width
	e.view.Height = math.Max(0, r.Height-e.cfg.RulerHeight)
	e.refreshContent()
}

// Bounds returns the panel rect.
func (e *TimelineEditor) Bounds() Rect { return e.bounds }

// Viewport returns the scroll state.
func (e *TimelineEditor) Viewport() *Viewport { return &e.view }

// Zoom returns pixels per second.
func (e *TimelineEditor) Zoom() float64 { return e.zoom }

// SetZoom sets pixels per second, clamped to the configured range.
func (e *TimelineEditor) SetZoom(z float64) {
	if !isFinite(z) {
		return
	}
	e.zoom = clamp(z, e.cfg.MinZoom, e.cfg.MaxZoom)
	e.refreshContent()
}

// SetZoomAt zooms keeping the time under panel x fixed.
func (e *TimelineEditor) SetZoomAt(z, x float64) {
	t := (x + e.view.X) / e.zoom
	e.SetZoom(z)
	e.view.X = t*e.zoom - x
	e.view.clamp()
}

// Selected returns the last clicked item, if any.
func (e *TimelineEditor) Selected() (KeyframeEvent, bool) {
	if e.selected == nil {
		return KeyframeEvent{}, false
	}
	return *e.selected, true
}

// ContextMenu returns the open menu or nil.
func (e *TimelineEditor) ContextMenu() *ContextMenu { return e.menu }

// CloseMenu dismisses the context menu.
func (e *TimelineEditor) CloseMenu() { e.menu = nil }

// Dragging reports whether an item drag is past the threshold.
func (e *TimelineEditor) Dragging() bool { return e.state == timelineDrag }

// Busy reports whether the editor owns the pointer.
func (e *TimelineEditor) Busy() bool { return e.state != timelineIdle }

func (e *TimelineEditor) refreshContent() {
	e.view.ContentWidth = e.clock.Duration()*e.zoom + e.cfg.FollowHysteresis
	lanes := len(e.layout.Lanes)
	if e.state == timelineIdle {
		lanes = len(BuildTimeline(e.graph.EffectiveScene()).Lanes)
	}
	e.view.ContentHeight = float64(lanes) * e.cfg.TrackHeight
	e.view.clamp()
}

// --- Geometry ---

func (e *TimelineEditor) timeAt(x float64) float64 {
	return (x + e.view.X) / e.zoom
}

func (e *TimelineEditor) xAt(t float64) float64 {
	return t*e.zoom - e.view.X
}

func (e *TimelineEditor) laneTop(i int) float64 {
	return e.cfg.RulerHeight + float64(i)*e.cfg.TrackHeight - e.view.Y
}

// itemAt returns the topmost item under panel point (x, y).
func (e *TimelineEditor) itemAt(tl *Timeline, x, y float64) (TimelineItem, bool) {
	if y < e.cfg.RulerHeight {
		return TimelineItem{}, false
	}
	for i := len(tl.Lanes) - 1; i >= 0; i-- {
		top := e.laneTop(i)
		if y < top || y >= top+e.cfg.TrackHeight {
			continue
		}
		items := tl.Lanes[i].Items
		for j := len(items) - 1; j >= 0; j-- {
			if math.Abs(x-e.xAt(items[j].Time)) <= itemHitRadius {
				return items[j], true
			}
		}
	}
	return TimelineItem{}, false
}

func (e *TimelineEditor) menuRect() Rect {
	return Rect{X: e.menu.X, Y: e.menu.Y, Width: menuWidth, Height: menuRowHeight * float64(len(e.menu.Actions))}
}

// --- Pointer ---

// PointerDown handles a press at panel point (x, y).
func (e *TimelineEditor) PointerDown(x, y float64, button MouseButton, mods KeyModifiers) {
	if e.state != timelineIdle {
		return
	}
	if e.menu != nil {
		r := e.menuRect()
		if button == MouseButtonLeft && r.Contains(x, y) {
			row := int((y - r.Y) / menuRowHeight)
			if row >= 0 && row < len(e.menu.Actions) {
				if err := e.Choose(e.menu.Actions[row]); err != nil {
					e.notice(err)
				}
			}
			return
		}
		e.menu = nil
	}

	layout := BuildTimeline(e.graph.Scene())
	if button == MouseButtonRight {
		if it, ok := e.itemAt(&layout, x, y); ok {
			e.openMenu(it, x, y)
		}
		return
	}
	if button != MouseButtonLeft {
		return
	}
	if y < e.cfg.RulerHeight {
		e.state = timelineScrub
		e.clock.BeginScrub()
		e.clock.Seek(e.timeAt(x))
		return
	}
	it, ok := e.itemAt(&layout, x, y)
	if !ok {
		return
	}
	e.state = timelinePress
	e.layout = layout
	e.item = it
	e.startX, e.startY = x, y
	e.lastX, e.lastY = x, y
	e.pending = nil
	e.view.StopScroll()
}

func (e *TimelineEditor) openMenu(it TimelineItem, x, y float64) {
	m := &ContextMenu{X: x, Y: y, Item: it}
	if !it.IsBase() {
		m.Actions = append(m.Actions, MenuDeleteKeyframe)
	}
	m.Actions = append(m.Actions, MenuFocusLayer)
	e.menu = m
}

// PointerMove handles pointer motion with the button held.
func (e *TimelineEditor) PointerMove(x, y float64) {
	switch e.state {
	case timelineScrub:
		e.clock.Seek(e.timeAt(x))
		return
	case timelineIdle:
		return
	}
	e.lastX, e.lastY = x, y
	if e.state == timelinePress {
		if math.Hypot(x-e.startX, y-e.startY) < e.cfg.DragThreshold {
			return
		}
		e.state = timelineDrag
	}
	e.preview()
}

// preview recomputes the drop from the last pointer position and installs
// it in the graph's shadow.
func (e *TimelineEditor) preview() {
	ev, commit, show := e.dropIntents(e.lastX, e.lastY)
	if err := e.graph.PreviewIntents(e.item.Layer, show...); err != nil {
		logf("timeline preview %q: %v", e.item.Layer, err)
		return
	}
	e.pending = commit
	e.pendingE = ev
	if e.OnKeyframePreview != nil {
		e.OnKeyframePreview(ev)
	}
}

// dropIntents turns a pointer position into the intents a release would
// commit, and the ones that preview it. A drop between adjacent integer
// lanes previews at the fractional midpoint since the normalization shift
// touches other layers.
func (e *TimelineEditor) dropIntents(x, y float64) (KeyframeEvent, []Intent, []Intent) {
	it := e.item
	ev := KeyframeEvent{Layer: it.Layer, Index: it.Index, Time: it.Time, Z: it.Z}
	mv := MoveKeyframe{Name: it.Layer, Index: it.Index}
	if !it.IsBase() {
		t := snapTime(it.Time+(x-e.startX)/e.zoom, e.cfg.TimeSnap, e.layout.Duration)
		mv.Time = ptr(t)
		ev.Time = t
	}

	relY := y - e.cfg.RulerHeight + e.view.Y
	drop, ok := dropAt(&e.layout, relY, e.cfg.TrackHeight)
	if !ok || (!drop.Gap && drop.Z == it.Z) {
		return ev, []Intent{mv}, []Intent{mv}
	}
	ev.Z = drop.Z
	mv.ZDepth = ptr(drop.Z)
	if !drop.Normalize {
		return ev, []Intent{mv}, []Intent{mv}
	}
	shown := mv
	shown.ZDepth = ptr(drop.Z - 0.5)
	return ev, []Intent{NormalizeLanes{At: drop.Z}, mv}, []Intent{shown}
}

// PointerUp ends a scrub, a click or a drag. A drag commits exactly once.
func (e *TimelineEditor) PointerUp(x, y float64) {
	switch e.state {
	case timelineIdle:
		return
	case timelineScrub:
		e.clock.Seek(e.timeAt(x))
		e.clock.EndScrub()
		e.state = timelineIdle
		return
	}
	if x != e.lastX || y != e.lastY {
		e.PointerMove(x, y)
	}
	it, state := e.item, e.state
	pending, ev := e.pending, e.pendingE
	e.state = timelineIdle
	e.pending = nil
	e.graph.ClearPreview(it.Layer)

	if state == timelinePress {
		ev := KeyframeEvent{Layer: it.Layer, Index: it.Index, Time: it.Time, Z: it.Z}
		e.selected = &ev
		e.graph.Select(it.Layer)
		if e.OnKeyframeSelect != nil {
			e.OnKeyframeSelect(ev)
		}
		return
	}
	if pending == nil {
		return
	}
	if err := e.commit.Commit(pending...); err != nil {
		e.notice(err)
		return
	}
	e.selected = &ev
	if e.OnKeyframeMove != nil {
		e.OnKeyframeMove(ev)
	}
}

// Cancel aborts a drag or scrub without committing.
func (e *TimelineEditor) Cancel() bool {
	switch e.state {
	case timelineIdle:
		if e.menu != nil {
			e.menu = nil
			return true
		}
		return false
	case timelineScrub:
		e.clock.EndScrub()
	default:
		e.graph.ClearPreview(e.item.Layer)
	}
	e.state = timelineIdle
	e.pending = nil
	return true
}

// Wheel scrolls the lanes, or zooms around x with Ctrl held.
func (e *TimelineEditor) Wheel(x, dx, dy float64, mods KeyModifiers) {
	if mods.Has(ModCtrl) {
		e.SetZoomAt(e.zoom*math.Pow(1.1, dy), x)
		return
	}
	e.view.ScrollBy(-dx*e.cfg.TrackHeight, -dy*e.cfg.TrackHeight)
}

// Choose runs a context menu action and closes the menu.
func (e *TimelineEditor) Choose(a MenuAction) error {
	if e.menu == nil {
		return nil
	}
	it := e.menu.Item
	e.menu = nil
	switch a {
	case MenuDeleteKeyframe:
		if it.IsBase() {
			return fmt.Errorf("%q base: %w", it.Layer, ErrKeyframeNotFound)
		}
		if err := e.commit.Commit(DeleteKeyframe{Name: it.Layer, Index: it.Index}); err != nil {
			return err
		}
		if e.selected != nil && e.selected.Layer == it.Layer {
			e.selected = nil
		}
	case MenuFocusLayer:
		e.graph.Select(it.Layer)
		e.clock.Seek(it.Time)
	}
	return nil
}

func (e *TimelineEditor) notice(err error) {
	if e.OnNotice != nil {
		e.OnNotice(noticeFor(err))
	}
}

// --- Update ---

// Update scrolls the lanes while a drag nears the top or bottom edge and
// keeps the playhead in view while playing.
func (e *TimelineEditor) Update(dt float64) {
	e.refreshContent()
	if e.state == timelineDrag {
		e.autoScroll(dt)
	} else if e.clock.Playing() {
		e.follow()
	}
	e.view.update(float32(dt))
}

func (e *TimelineEditor) autoScroll(dt float64) {
	margin := e.cfg.AutoScrollMargin
	step := e.cfg.AutoScrollSpeed * dt
	var dy float64
	switch {
	case e.lastY < e.cfg.RulerHeight+margin:
		dy = -step
	case e.lastY > e.bounds.Height-margin:
		dy = step
	default:
		return
	}
	before := e.view.Y
	e.view.ScrollBy(0, dy)
	if e.view.Y != before {
		e.preview()
	}
}

// follow pages the view once the playhead comes within FollowHysteresis of
// the right edge, or leaves the view to the left after a loop.
func (e *TimelineEditor) follow() {
	if e.view.Scrolling() {
		return
	}
	px := e.xAt(e.clock.Time())
	if px >= 0 && px <= e.view.Width-e.cfg.FollowHysteresis {
		return
	}
	target := math.Max(0, e.clock.Time()*e.zoom-e.cfg.FollowHysteresis)
	e.view.ScrollTo(target, e.view.Y, followScroll, ease.OutQuad)
}

// --- Draw ---

var (
	colorPanel    = color.RGBA{0x1e, 0x1f, 0x24, 0xff}
	colorRuler    = color.RGBA{0x2b, 0x2d, 0x33, 0xff}
	colorLaneA    = color.RGBA{0x25, 0x27, 0x2d, 0xff}
	colorLaneB    = color.RGBA{0x22, 0x24, 0x29, 0xff}
	colorTick     = color.RGBA{0x70, 0x74, 0x7c, 0xff}
	colorItem     = color.RGBA{0x8c, 0xc8, 0xff, 0xff}
	colorBaseItem = color.RGBA{0xb0, 0xb0, 0xb0, 0xff}
	colorPlayhead = color.RGBA{0xff, 0x50, 0x50, 0xff}
	colorMenu     = color.RGBA{0x33, 0x36, 0x3d, 0xf0}
)

// Draw renders the panel at its bounds. Previews are drawn where they
// would land.
func (e *TimelineEditor) Draw(dst *ebiten.Image) {
	ox, oy := float32(e.bounds.X), float32(e.bounds.Y)
	w, h := float32(e.bounds.Width), float32(e.bounds.Height)
	vector.DrawFilledRect(dst, ox, oy, w, h, colorPanel, false)

	tl := BuildTimeline(e.graph.EffectiveScene())
	th := float32(e.cfg.TrackHeight)
	for i, ln := range tl.Lanes {
		top := float32(e.laneTop(i))
		if top+th < float32(e.cfg.RulerHeight) || top > h {
			continue
		}
		clr := colorLaneA
		if i%2 == 1 {
			clr = colorLaneB
		}
		vector.DrawFilledRect(dst, ox, oy+top, w, th, clr, false)
		ebitenutil.DebugPrintAt(dst, fmt.Sprintf("z=%g", ln.Z), int(ox)+2, int(oy+top)+2)
		cy := oy + top + th/2
		for _, it := range ln.Items {
			cx := ox + float32(e.xAt(it.Time))
			if cx < ox-itemHitRadius || cx > ox+w+itemHitRadius {
				continue
			}
			ic := colorItem
			if it.IsBase() {
				ic = colorBaseItem
			}
			vector.DrawFilledCircle(dst, cx, cy, itemHitRadius-1, ic, true)
			if s := e.selected; s != nil && s.Layer == it.Layer && s.Index == it.Index {
				vector.StrokeCircle(dst, cx, cy, itemHitRadius+1, 1.5, colorPrimary, true)
			}
		}
	}

	e.drawRuler(dst, ox, oy, w)
	px := ox + float32(e.xAt(e.clock.Time()))
	vector.StrokeLine(dst, px, oy, px, oy+h, 1, colorPlayhead, false)

	if m := e.menu; m != nil {
		r := e.menuRect()
		vector.DrawFilledRect(dst, ox+float32(r.X), oy+float32(r.Y), float32(r.Width), float32(r.Height), colorMenu, false)
		for i, a := range m.Actions {
			ebitenutil.DebugPrintAt(dst, a.String(), int(ox+float32(r.X))+4, int(oy+float32(r.Y))+i*int(menuRowHeight))
		}
	}
}

func (e *TimelineEditor) drawRuler(dst *ebiten.Image, ox, oy, w float32) {
	rh := float32(e.cfg.RulerHeight)
	vector.DrawFilledRect(dst, ox, oy, w, rh, colorRuler, false)
	// Keep labels at least 40px apart.
	step := math.Max(1, math.Ceil(40/e.zoom))
	first := math.Ceil(e.timeAt(0)/step) * step
	for t := first; t <= e.clock.Duration(); t += step {
		x := ox + float32(e.xAt(t))
		if x > ox+w {
			break
		}
		vector.StrokeLine(dst, x, oy+rh-6, x, oy+rh, 1, colorTick, false)
		ebitenutil.DebugPrintAt(dst, fmt.Sprintf("%gs", t), int(x)+2, int(oy))
	}
}
