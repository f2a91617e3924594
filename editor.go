package diorama

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const noticeDuration = 3 * time.Second

// EditorOptions carries the editor's optional collaborators.
type EditorOptions struct {
	// Session persists commits. Without one, commits apply to the graph
	// only.
	Session *Session
	// Loader fetches sprite images. Defaults to the session's port.
	Loader SpriteLoader
	// Sounds plays sound behaviors. Nil disables sound.
	Sounds SoundPlayer
}

// Editor is the top-level host object: it owns the clock, renderer and
// controllers for one scene graph and implements ebiten.Game.
type Editor struct {
	cfg Config

	graph       *SceneGraph
	clock       *Clock
	assets      *AssetCache
	renderer    *Renderer
	interaction *Interaction
	timeline    *TimelineEditor
	session     *Session
	sounds      *SoundScheduler

	canvas Rect

	// OnNotice receives every user-facing notice.
	OnNotice func(Notice)
	notice   *Notice
	noticeAt time.Time

	// ScreenshotDir is the directory where screenshots are saved.
	ScreenshotDir string

	pointer         pointerState
	injectQueue     []syntheticEvent
	testRunner      *TestRunner
	screenshotQueue []string

	fps fpsMeter
}

// NewEditor builds an editor over g. With a session in opts, the session's
// graph is used and g may be nil.
func NewEditor(cfg Config, g *SceneGraph, opts EditorOptions) *Editor {
	if opts.Session != nil {
		g = opts.Session.Graph()
	}
	if g == nil {
		g, _ = NewSceneGraph(nil)
	}
	loader := opts.Loader
	if loader == nil && opts.Session != nil {
		loader = opts.Session.Port()
	}

	e := &Editor{
		cfg:           cfg,
		graph:         g,
		clock:         NewClock(g.Scene().Duration, cfg.Loop),
		session:       opts.Session,
		canvas:        Rect{Width: cfg.Canvas.Width, Height: cfg.Canvas.Height},
		ScreenshotDir: cfg.ScreenshotDir,
	}
	if loader != nil {
		e.assets = NewAssetCache(loader)
		g.OnRemove(e.assets.Cancel)
	}
	e.renderer = NewRenderer(e.assets, Stage{Width: cfg.Canvas.Width, Height: cfg.Canvas.Height})
	e.renderer.Debug = cfg.Debug

	var commit Committer
	if e.session != nil {
		commit = e.session
		e.session.OnNotice = e.raise
	}
	e.interaction = NewInteraction(g, e.clock, e.renderer, commit, cfg.DragThreshold)
	e.interaction.OnNotice = e.raise
	e.timeline = NewTimelineEditor(g, e.clock, commit, cfg.Timeline)
	e.timeline.OnNotice = e.raise
	e.timeline.SetBounds(Rect{X: 0, Y: cfg.Canvas.Height, Width: cfg.Canvas.Width, Height: cfg.Timeline.Height})
	if opts.Sounds != nil {
		e.sounds = NewSoundScheduler(g, opts.Sounds)
	}
	return e
}

// Preload fetches every layer sprite and the background image before the
// first frame. Failed names fall back to placeholders as usual.
func (e *Editor) Preload(ctx context.Context) error {
	if e.assets == nil {
		return nil
	}
	s := e.graph.Scene()
	names := make([]string, 0, len(s.Layers)+1)
	for _, l := range s.Layers {
		names = append(names, l.SpriteName)
	}
	if s.BackgroundImage != nil && *s.BackgroundImage != "" {
		names = append(names, *s.BackgroundImage)
	}
	return e.assets.Preload(ctx, names)
}

// ResolveConflict answers a held save conflict: reload discards local
// edits for the stored scene, otherwise the local scene is saved over it.
// Without a session or a conflict it does nothing.
func (e *Editor) ResolveConflict(reload bool) error {
	if e.session == nil || e.session.Conflict() == nil {
		return nil
	}
	e.interaction.Cancel()
	e.timeline.Cancel()
	if !reload {
		e.session.KeepLocal()
		return nil
	}
	return e.session.Refresh(e.session.ctx)
}

// Graph returns the scene graph.
func (e *Editor) Graph() *SceneGraph { return e.graph }

// Clock returns the scene clock.
func (e *Editor) Clock() *Clock { return e.clock }

// Renderer returns the canvas renderer.
func (e *Editor) Renderer() *Renderer { return e.renderer }

// Interaction returns the canvas controller.
func (e *Editor) Interaction() *Interaction { return e.interaction }

// Timeline returns the timeline editor.
func (e *Editor) Timeline() *TimelineEditor { return e.timeline }

// Session returns the persistence session, or nil.
func (e *Editor) Session() *Session { return e.session }

// Assets returns the sprite cache, or nil without a loader.
func (e *Editor) Assets() *AssetCache { return e.assets }

// CanvasRect returns the canvas area in screen pixels.
func (e *Editor) CanvasRect() Rect { return e.canvas }

// TimelineRect returns the timeline panel in screen pixels.
func (e *Editor) TimelineRect() Rect { return e.timeline.Bounds() }

// SetDebugMode toggles frame stats and the debug overlay.
func (e *Editor) SetDebugMode(enabled bool) { e.renderer.Debug = enabled }

// LastNotice returns the notice currently shown, if any.
func (e *Editor) LastNotice() (Notice, bool) {
	if e.notice == nil {
		return Notice{}, false
	}
	return *e.notice, true
}

func (e *Editor) raise(n Notice) {
	e.notice = &n
	e.noticeAt = time.Now()
	if e.OnNotice != nil {
		e.OnNotice(n)
	}
}

// Update implements ebiten.Game.
func (e *Editor) Update() error {
	e.update(1.0 / float64(ebiten.TPS()))
	return nil
}

func (e *Editor) update(dt float64) {
	if e.session != nil {
		e.session.Poll()
	}
	if d := e.graph.Scene().Duration; d != e.clock.Duration() {
		e.clock.SetDuration(d)
	}
	if e.testRunner != nil {
		e.testRunner.step(e)
	}
	// Hit testing reads the last frame's geometry.
	e.renderer.Frame(e.graph, e.clock.Time())
	e.processInput()

	e.clock.Tick(dt)
	e.interaction.Update(dt)
	e.timeline.Update(dt)
	if e.sounds != nil {
		e.sounds.Update(e.clock)
	}
	if e.renderer.Debug {
		e.fps.update(dt)
	}
	if e.notice != nil && time.Since(e.noticeAt) > noticeDuration {
		e.notice = nil
	}
}

var (
	colorCanvas = color.RGBA{0x10, 0x10, 0x14, 0xff}
	colorToast  = color.RGBA{0x40, 0x20, 0x20, 0xe0}
)

// Draw implements ebiten.Game.
func (e *Editor) Draw(screen *ebiten.Image) {
	canvas := screen.SubImage(image.Rect(
		int(e.canvas.X), int(e.canvas.Y),
		int(e.canvas.X+e.canvas.Width), int(e.canvas.Y+e.canvas.Height),
	)).(*ebiten.Image)
	canvas.Fill(colorCanvas)
	e.renderer.Draw(canvas, e.graph, e.clock.Time())
	e.timeline.Draw(screen)
	if e.renderer.Debug {
		e.fps.draw(screen, e.canvas)
	}
	if n := e.notice; n != nil {
		w := float32(len(n.Message)*6 + 12)
		vector.DrawFilledRect(screen, 8, 8, w, 20, colorToast, false)
		ebitenutil.DebugPrintAt(screen, n.Message, 14, 10)
	}
	e.flushScreenshots(screen)
}

// Layout implements ebiten.Game. The editor has a fixed logical size.
func (e *Editor) Layout(_, _ int) (int, int) {
	return int(e.canvas.Width), int(e.canvas.Height + e.timeline.Bounds().Height)
}
