package diorama

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// DrawCommand is one layer placed for a frame. Commands are produced by
// Renderer.Frame and sorted by Z; building them touches no GPU state.
type DrawCommand struct {
	Layer     string
	Transform Transform
	// Matrix places the sprite's w x h rect in scene space.
	Matrix        [6]float64
	Width, Height float64
	// Tiled repeats the image across the canvas width (background layers).
	Tiled bool
	// Placeholder is set while the image is not loaded.
	Placeholder bool

	treeOrder int // insertion order, for a stable sort
}

// Bounds returns the command's axis-aligned bounding box.
func (c *DrawCommand) Bounds() Rect {
	return worldAABB(c.Matrix, c.Width, c.Height)
}

// ScrollFunc maps scene time to the global horizontal scroll.
type ScrollFunc func(t float64) float64

// LinearScroll is the default: globalScroll = t.
func LinearScroll(t float64) float64 { return t }

// Renderer turns the scene graph into draw commands and submits them to an
// ebiten image. It never mutates scene state.
type Renderer struct {
	assets *AssetCache
	stage  Stage
	scroll ScrollFunc

	// Debug enables per-frame stats and the origin/bbox/Z overlay.
	Debug bool

	commands []DrawCommand
	sortBuf  []DrawCommand
	stats    debugStats
}

// NewRenderer returns a renderer for a stage of the given size. assets may
// be nil, in which case every layer draws as a placeholder.
func NewRenderer(assets *AssetCache, stage Stage) *Renderer {
	return &Renderer{
		assets:   assets,
		stage:    stage,
		scroll:   LinearScroll,
		commands: make([]DrawCommand, 0, 64),
	}
}

// SetScroll replaces the scene scroll function. Nil restores LinearScroll.
func (r *Renderer) SetScroll(fn ScrollFunc) {
	if fn == nil {
		fn = LinearScroll
	}
	r.scroll = fn
}

// Stage returns the stage size.
func (r *Renderer) Stage() Stage { return r.stage }

func (r *Renderer) spriteSize(name string) (w, h float64, ok bool) {
	if r.assets == nil {
		return placeholderSize, placeholderSize, false
	}
	return r.assets.Size(name)
}

// Frame evaluates every visible layer at t and returns the draw list sorted
// by Z ascending, ties in insertion order. Previews are used in place of
// their layers. The returned slice is reused by the next call.
func (r *Renderer) Frame(g *SceneGraph, t float64) []DrawCommand {
	var t0 time.Time
	if r.Debug {
		t0 = time.Now()
	}
	r.commands = r.commands[:0]
	scroll := r.scroll(t)
	order := 0
	for _, base := range g.Layers() {
		name := base.SpriteName
		if !g.IsVisible(name) {
			continue
		}
		l, _ := g.Effective(name)
		if r.assets != nil {
			r.assets.Request(name)
		}
		cmd, ok := r.layerCommand(l, t, scroll)
		if !ok {
			continue
		}
		order++
		cmd.treeOrder = order
		r.commands = append(r.commands, cmd)
	}
	if r.Debug {
		r.stats.evaluateTime = time.Since(t0)
		t0 = time.Now()
	}
	r.mergeSort()
	if r.Debug {
		r.stats.sortTime = time.Since(t0)
		r.stats.layerCount = g.Len()
		r.stats.commandCount = len(r.commands)
	}
	return r.commands
}

// layerCommand evaluates one layer. A panic or a non-finite transform skips
// the layer for this frame instead of taking the loop down.
func (r *Renderer) layerCommand(l *Layer, t, scroll float64) (cmd DrawCommand, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			logf("render: layer %q skipped: %v", l.SpriteName, p)
			ok = false
		}
	}()
	tr := r.stage.Evaluate(l, t, scroll)
	if !tr.Valid() {
		logf("%v", &InvariantError{Op: "render", Layer: l.SpriteName, Reason: "non-finite transform"})
		return DrawCommand{}, false
	}
	w, h, loaded := r.spriteSize(l.SpriteName)
	return DrawCommand{
		Layer:       l.SpriteName,
		Transform:   tr,
		Matrix:      layerMatrix(tr, w, h),
		Width:       w,
		Height:      h,
		Tiled:       hasBackground(l),
		Placeholder: !loaded,
	}, true
}

func hasBackground(l *Layer) bool {
	for _, b := range l.Behaviors {
		if _, ok := b.(*Background); ok {
			return true
		}
	}
	return false
}

// HitTest returns the topmost layer under scene point (x, y) in the last
// frame's draw list.
func (r *Renderer) HitTest(x, y float64) (string, bool) {
	for i := len(r.commands) - 1; i >= 0; i-- {
		c := &r.commands[i]
		if containsLocal(c.Matrix, c.Width, c.Height, x, y) {
			return c.Layer, true
		}
	}
	return "", false
}

// Command returns the last frame's command for a layer.
func (r *Renderer) Command(name string) (DrawCommand, bool) {
	for _, c := range r.commands {
		if c.Layer == name {
			return c, true
		}
	}
	return DrawCommand{}, false
}

// --- Merge sort ---

// commandLessOrEqual returns true if a should sort before or at the same
// position as b. Using <= for treeOrder ensures stability.
func commandLessOrEqual(a, b *DrawCommand) bool {
	if a.Transform.Z != b.Transform.Z {
		return a.Transform.Z < b.Transform.Z
	}
	return a.treeOrder <= b.treeOrder
}

// mergeSort sorts r.commands in-place using r.sortBuf as scratch space.
// Bottom-up merge sort: zero allocations after the sort buffer reaches its
// high-water mark.
func (r *Renderer) mergeSort() {
	n := len(r.commands)
	if n <= 1 {
		return
	}
	if cap(r.sortBuf) < n {
		r.sortBuf = make([]DrawCommand, n)
	}
	r.sortBuf = r.sortBuf[:n]

	a := r.commands
	b := r.sortBuf
	swapped := false

	for width := 1; width < n; width *= 2 {
		for i := 0; i < n; i += 2 * width {
			lo := i
			mid := min(lo+width, n)
			hi := min(lo+2*width, n)
			mergeRun(a, b, lo, mid, hi)
		}
		a, b = b, a
		swapped = !swapped
	}

	if swapped {
		copy(r.commands, r.sortBuf)
	}
}

// mergeRun merges two sorted runs [lo, mid) and [mid, hi) from src into dst.
func mergeRun(src, dst []DrawCommand, lo, mid, hi int) {
	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if commandLessOrEqual(&src[i], &src[j]) {
			dst[k] = src[i]
			i++
		} else {
			dst[k] = src[j]
			j++
		}
		k++
	}
	for i < mid {
		dst[k] = src[i]
		i++
		k++
	}
	for j < hi {
		dst[k] = src[j]
		j++
		k++
	}
}

// --- Submission ---

var (
	colorPlaceholder = color.RGBA{0x90, 0x90, 0x90, 0xff}
	colorSelection   = color.RGBA{0x3d, 0x9b, 0xff, 0xff}
	colorPrimary     = color.RGBA{0xff, 0xc8, 0x3d, 0xff}
	colorHandle      = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorDebug       = color.RGBA{0xff, 0x40, 0x40, 0xff}
)

// commandGeoM converts an affine matrix to an ebiten.GeoM.
func commandGeoM(m [6]float64) ebiten.GeoM {
	var g ebiten.GeoM
	g.SetElement(0, 0, m[0])
	g.SetElement(1, 0, m[1])
	g.SetElement(0, 1, m[2])
	g.SetElement(1, 1, m[3])
	g.SetElement(0, 2, m[4])
	g.SetElement(1, 2, m[5])
	return g
}

// Draw renders the scene at t onto screen: background image, layers in Z
// order, selection overlay, debug overlay.
func (r *Renderer) Draw(screen *ebiten.Image, g *SceneGraph, t float64) {
	if bg := g.Scene().BackgroundImage; bg != nil && r.assets != nil {
		r.assets.Request(*bg)
		if tex := r.assets.Texture(*bg); tex != nil {
			b := tex.Bounds()
			var op ebiten.DrawImageOptions
			op.GeoM.Scale(r.stage.Width/float64(b.Dx()), r.stage.Height/float64(b.Dy()))
			screen.DrawImage(tex, &op)
		}
	}

	cmds := r.Frame(g, t)

	var t0 time.Time
	if r.Debug {
		t0 = time.Now()
	}
	for i := range cmds {
		r.submit(screen, &cmds[i])
	}
	for i := range cmds {
		c := &cmds[i]
		if g.IsSelected(c.Layer) {
			drawSelection(screen, c, c.Layer == g.Primary())
		}
		if r.Debug {
			drawDebugOverlay(screen, c)
		}
	}
	if r.Debug {
		r.stats.submitTime = time.Since(t0)
		r.debugLog()
	}
}

func (r *Renderer) submit(screen *ebiten.Image, c *DrawCommand) {
	var tex *ebiten.Image
	if r.assets != nil {
		tex = r.assets.Texture(c.Layer)
	}
	if tex == nil {
		strokeQuad(screen, quadCorners(c.Matrix, c.Width, c.Height), 1, colorPlaceholder)
		return
	}
	var op ebiten.DrawImageOptions
	op.ColorScale.ScaleAlpha(float32(c.Transform.Opacity))
	if !c.Tiled {
		op.GeoM = commandGeoM(c.Matrix)
		screen.DrawImage(tex, &op)
		return
	}
	// Tile horizontally so the scrolled image always covers the canvas.
	step := c.Width * c.Transform.Scale
	if step <= 0 {
		return
	}
	shift := math.Mod(c.Matrix[4], step)
	if shift > 0 {
		shift -= step
	}
	for x := shift; x < r.stage.Width; x += step {
		m := c.Matrix
		m[4] = x
		op.GeoM = commandGeoM(m)
		screen.DrawImage(tex, &op)
	}
}

func strokeQuad(dst *ebiten.Image, q [4]Vec2, width float32, clr color.Color) {
	for i := range q {
		a, b := q[i], q[(i+1)%4]
		vector.StrokeLine(dst, float32(a.X), float32(a.Y), float32(b.X), float32(b.Y), width, clr, true)
	}
}

func drawSelection(dst *ebiten.Image, c *DrawCommand, primary bool) {
	clr := colorSelection
	if primary {
		clr = colorPrimary
	}
	strokeQuad(dst, quadCorners(c.Matrix, c.Width, c.Height), 2, clr)
	if !primary {
		return
	}
	for _, h := range layerHandles(c.Matrix, c.Width, c.Height) {
		vector.DrawFilledCircle(dst, float32(h.Pos.X), float32(h.Pos.Y), handleRadius, colorHandle, true)
		vector.StrokeCircle(dst, float32(h.Pos.X), float32(h.Pos.Y), handleRadius, 1, clr, true)
	}
}

func drawDebugOverlay(dst *ebiten.Image, c *DrawCommand) {
	ox, oy := float32(c.Transform.X), float32(c.Transform.Y)
	vector.StrokeLine(dst, ox-4, oy, ox+4, oy, 1, colorDebug, false)
	vector.StrokeLine(dst, ox, oy-4, ox, oy+4, 1, colorDebug, false)
	b := c.Bounds()
	vector.StrokeRect(dst, float32(b.X), float32(b.Y), float32(b.Width), float32(b.Height), 1, colorDebug, false)
	ebitenutil.DebugPrintAt(dst, fmt.Sprintf("%s z=%g", c.Layer, c.Transform.Z), int(b.X), int(b.Y)-14)
}
