package diorama

import (
	"errors"
	"math"
	"testing"
)

// newTestEditor builds a headless editor. The timeline panel starts at
// screen y 540; its first lane spans screen y 560..588.
func newTestEditor(t *testing.T, layers ...*Layer) *Editor {
	t.Helper()
	s := NewScene("test")
	s.Layers = layers
	g, err := NewSceneGraph(s)
	if err != nil {
		t.Fatal(err)
	}
	return NewEditor(DefaultConfig(), g, EditorOptions{})
}

// pump runs frames until every injected event is consumed.
func pump(e *Editor) {
	for len(e.injectQueue) > 0 {
		e.update(1.0 / 60)
	}
}

func TestEditorLayout(t *testing.T) {
	e := newTestEditor(t)
	w, h := e.Layout(0, 0)
	if w != 960 || h != 720 {
		t.Errorf("layout = %dx%d, want 960x720", w, h)
	}
	if tr := e.TimelineRect(); tr.Y != 540 || tr.Width != 960 {
		t.Errorf("timeline rect = %+v", tr)
	}
}

func TestEditorCanvasDrag(t *testing.T) {
	e := newTestEditor(t, NewLayer("boat"))
	e.InjectDrag(10, 10, 110, 60, 4)
	pump(e)

	l, _ := e.Graph().GetLayer("boat")
	if l.XOffset != 100 || l.YOffset != 50 {
		t.Errorf("offset = (%v, %v), want (100, 50)", l.XOffset, l.YOffset)
	}
	if e.Graph().Primary() != "boat" {
		t.Errorf("primary = %q", e.Graph().Primary())
	}
}

func TestEditorTimelineDrag(t *testing.T) {
	boat := NewLayer("boat")
	boat.ZDepth = f(0)
	boat.Behaviors = []Behavior{locZ(4, 0)}
	e := newTestEditor(t, boat)

	var moved []KeyframeEvent
	e.Timeline().OnKeyframeMove = func(ev KeyframeEvent) { moved = append(moved, ev) }
	e.InjectDrag(160, 574, 200, 574, 3)
	pump(e)

	if len(moved) != 1 || moved[0].Time != 5 {
		t.Fatalf("moves = %+v", moved)
	}
	l, _ := e.Graph().GetLayer("boat")
	if start, _ := l.Behaviors[0].Start(); start != 5 {
		t.Errorf("keyframe at %v, want 5", start)
	}
}

func TestEditorGestureStaysInPane(t *testing.T) {
	e := newTestEditor(t, NewLayer("boat"))
	// A drag that starts on the canvas keeps driving the canvas when it
	// crosses into the timeline.
	e.InjectDrag(10, 10, 10, 610, 3)
	pump(e)
	l, _ := e.Graph().GetLayer("boat")
	if l.YOffset != 600 {
		t.Errorf("y offset = %v, want 600", l.YOffset)
	}
	if e.Clock().Scrubbing() || e.Timeline().Busy() {
		t.Error("timeline picked up a canvas gesture")
	}
}

func TestEditorEscapeClosesMenuFirst(t *testing.T) {
	boat := NewLayer("boat")
	boat.Behaviors = []Behavior{locZ(4, 0)}
	e := newTestEditor(t, boat)
	e.Graph().Select("boat")

	e.InjectPressMods(160, 574, MouseButtonRight, 0)
	e.InjectRelease(160, 574)
	pump(e)
	if e.Timeline().ContextMenu() == nil {
		t.Fatal("no context menu")
	}
	e.InjectKey(KeyEscape, 0)
	pump(e)
	if e.Timeline().ContextMenu() != nil {
		t.Error("menu still open")
	}
	if e.Graph().Primary() != "boat" {
		t.Error("escape cleared the selection while closing the menu")
	}
	e.InjectKey(KeyEscape, 0)
	pump(e)
	if e.Graph().Primary() != "" {
		t.Error("second escape kept the selection")
	}
}

func TestEditorWheel(t *testing.T) {
	e := newTestEditor(t)
	e.InjectWheel(100, 100, 0, 1, ModCtrl)
	pump(e)
	if e.Timeline().Zoom() != 40 {
		t.Error("wheel over the canvas zoomed the timeline")
	}
	e.InjectWheel(100, 600, 0, 1, ModCtrl)
	pump(e)
	if math.Abs(e.Timeline().Zoom()-44) > 1e-9 {
		t.Errorf("zoom = %v, want 44", e.Timeline().Zoom())
	}
}

func TestEditorKeys(t *testing.T) {
	e := newTestEditor(t, NewLayer("boat"))
	e.Graph().Select("boat")
	e.InjectKey(KeyRight, ModShift)
	e.InjectKey(KeySpace, 0)
	pump(e)
	l, _ := e.Graph().GetLayer("boat")
	if l.XOffset != 50 {
		t.Errorf("x offset = %v, want 50", l.XOffset)
	}
	if !e.Clock().Playing() {
		t.Error("space did not start playback")
	}
}

func TestEditorSessionNotice(t *testing.T) {
	p := newMemPort(NewScene("park"))
	p.saveErr = errors.New("disk full")
	s := openTestSession(t, p)
	e := NewEditor(DefaultConfig(), nil, EditorOptions{Session: s})
	var got []Notice
	e.OnNotice = func(n Notice) { got = append(got, n) }

	if err := s.Commit(AddLayer{Layer: NewLayer("a")}); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(testCtx(t)); err == nil {
		t.Fatal("flush succeeded")
	}
	n, ok := e.LastNotice()
	if !ok || n.Level != NoticeError || len(got) != 1 {
		t.Errorf("notice = %+v, %v (%d delivered)", n, ok, len(got))
	}
	if e.Graph() != s.Graph() {
		t.Error("editor not using the session graph")
	}
}

func newLoaderEditor(t *testing.T, l SpriteLoader, s *Scene) *Editor {
	t.Helper()
	g, err := NewSceneGraph(s)
	if err != nil {
		t.Fatal(err)
	}
	return NewEditor(DefaultConfig(), g, EditorOptions{Loader: l})
}

func TestEditorRemoveCancelsLoad(t *testing.T) {
	l := &fakeLoader{block: make(chan struct{})}
	s := NewScene("test")
	s.Layers = []*Layer{NewLayer("boat"), NewLayer("tree")}
	e := newLoaderEditor(t, l, s)
	e.update(1.0 / 60)
	if e.Assets().Status("boat") != AssetPending {
		t.Fatalf("status = %v, want pending", e.Assets().Status("boat"))
	}

	if err := e.Graph().Apply(RemoveLayer{Name: "boat"}); err != nil {
		t.Fatal(err)
	}
	if got := e.Assets().Status("boat"); got != AssetMissing {
		t.Errorf("status after remove = %v, want missing", got)
	}
	close(l.block)
	e.Assets().Wait()
	if got := e.Assets().Status("boat"); got != AssetMissing {
		t.Errorf("cancelled load wrote back: status = %v", got)
	}
	if got := e.Assets().Status("tree"); got != AssetReady {
		t.Errorf("tree status = %v, want ready", got)
	}
}

func TestEditorPreload(t *testing.T) {
	l := &fakeLoader{missing: map[string]bool{"ghost": true}}
	s := NewScene("test")
	s.Layers = []*Layer{NewLayer("boat"), NewLayer("ghost")}
	s.BackgroundImage = ptr("sky")
	e := newLoaderEditor(t, l, s)

	err := e.Preload(testCtx(t))
	if !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("preload err = %v, want not found", err)
	}
	for _, name := range []string{"boat", "sky"} {
		if got := e.Assets().Status(name); got != AssetReady {
			t.Errorf("%s status = %v, want ready", name, got)
		}
	}
	if got := e.Assets().Status("ghost"); got != AssetFailed {
		t.Errorf("ghost status = %v, want failed", got)
	}

	if err := newTestEditor(t).Preload(testCtx(t)); err != nil {
		t.Errorf("preload without loader = %v", err)
	}
}

func TestEditorResolveConflict(t *testing.T) {
	tests := []struct {
		name       string
		key        Key
		wantLayer  string
		wantStored int
	}{
		{"reload", KeyR, "remote", 5},
		{"keep local", KeyK, "local", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMemPort(NewScene("park"))
			s := openTestSession(t, p)
			e := NewEditor(DefaultConfig(), nil, EditorOptions{Session: s})
			newer := NewScene("park")
			newer.Revision = 5
			newer.Layers = []*Layer{NewLayer("remote")}
			p.mu.Lock()
			p.scenes["park"] = newer
			p.mu.Unlock()

			s.Commit(AddLayer{Layer: NewLayer("local")})
			if err := s.Flush(testCtx(t)); !errors.Is(err, ErrPersistenceConflict) {
				t.Fatalf("flush err = %v", err)
			}
			n, ok := e.LastNotice()
			if !ok || n.Level != NoticeWarning {
				t.Fatalf("notice = %+v, %v", n, ok)
			}

			e.InjectKey(tt.key, 0)
			pump(e)
			if s.Conflict() != nil {
				t.Fatal("conflict still held")
			}
			if err := s.Flush(testCtx(t)); err != nil {
				t.Fatal(err)
			}
			if _, ok := e.Graph().GetLayer(tt.wantLayer); !ok {
				t.Errorf("layer %q missing after resolve", tt.wantLayer)
			}
			if got := p.stored("park").Revision; got != tt.wantStored {
				t.Errorf("stored revision = %d, want %d", got, tt.wantStored)
			}
		})
	}
}

func TestEditorConflictKeysIgnoredWithoutConflict(t *testing.T) {
	p := newMemPort(NewScene("park"))
	s := openTestSession(t, p)
	e := NewEditor(DefaultConfig(), nil, EditorOptions{Session: s})
	if err := e.ResolveConflict(true); err != nil {
		t.Fatal(err)
	}
	e.InjectKey(KeyR, 0)
	pump(e)
	if s.Dirty() || p.saveCount() != 0 {
		t.Error("conflict key acted without a conflict")
	}
}
