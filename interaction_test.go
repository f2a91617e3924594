package diorama

import (
	"errors"
	"math"
	"testing"
)

type undoCommitter struct {
	recordingCommitter
	undos, redos int
}

func (c *undoCommitter) Undo() error { c.undos++; return nil }
func (c *undoCommitter) Redo() error { c.redos++; return nil }

// "back" covers 0..64 at z=0 and "front" 32..96 at z=1; both draw as 64px
// placeholders.
func newTestInteraction(t *testing.T) (*Interaction, *SceneGraph, *Clock, *recordingCommitter) {
	t.Helper()
	s := NewScene("canvas")
	back := NewLayer("back")
	front := NewLayer("front")
	front.XOffset, front.YOffset = 32, 32
	front.ZDepth = f(1)
	s.Layers = []*Layer{front, back}
	g, err := NewSceneGraph(s)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClock(s.Duration, false)
	r := NewRenderer(nil, Stage{Width: 960, Height: 540})
	r.Frame(g, 0)
	rc := &recordingCommitter{g: g}
	return NewInteraction(g, c, r, rc, DefaultDragThreshold), g, c, rc
}

func TestInteractionClickSelectsTopmost(t *testing.T) {
	in, g, _, rc := newTestInteraction(t)
	in.PointerDown(50, 50, MouseButtonLeft, 0)
	if in.State() != StateBodyDrag || in.Target() != "front" {
		t.Fatalf("state=%v target=%q", in.State(), in.Target())
	}
	in.PointerUp(52, 51)
	if g.Primary() != "front" || len(rc.calls) != 0 {
		t.Errorf("primary=%q commits=%d", g.Primary(), len(rc.calls))
	}
	if in.State() != StateIdle {
		t.Errorf("state after release = %v", in.State())
	}

	in.PointerDown(500, 500, MouseButtonLeft, 0)
	if len(g.Selected()) != 0 {
		t.Errorf("click on empty canvas kept %v selected", g.Selected())
	}
}

func TestInteractionShiftClickToggles(t *testing.T) {
	in, g, _, _ := newTestInteraction(t)
	in.PointerDown(10, 10, MouseButtonLeft, 0)
	in.PointerUp(10, 10)
	in.PointerDown(80, 80, MouseButtonLeft, ModShift)
	in.PointerUp(80, 80)
	if len(g.Selected()) != 2 || g.Primary() != "front" {
		t.Fatalf("selected=%v primary=%q", g.Selected(), g.Primary())
	}
	in.PointerDown(80, 80, MouseButtonLeft, ModShift)
	if g.IsSelected("front") || in.State() != StateIdle {
		t.Errorf("shift-click did not deselect: state=%v", in.State())
	}
}

func TestInteractionBodyDrag(t *testing.T) {
	tests := []struct {
		name string
		at   float64
	}{
		{"at t=0 moves the base", 0},
		{"later writes a keyframe", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, g, c, rc := newTestInteraction(t)
			c.Seek(tt.at)
			in.PointerDown(10, 10, MouseButtonLeft, 0)
			in.PointerMove(20, 20)
			if !g.HasPreview("back") {
				t.Fatal("no preview during drag")
			}
			if l, _ := g.GetLayer("back"); l.XOffset != 0 {
				t.Fatal("model changed before release")
			}
			in.PointerUp(30, 40)

			if len(rc.calls) != 1 {
				t.Fatalf("got %d commits, want 1", len(rc.calls))
			}
			want := MoveLayer{Name: "back", Time: tt.at, X: 20, Y: 30}
			if got := rc.calls[0][0]; got != want {
				t.Errorf("commit = %#v, want %#v", got, want)
			}
			if g.HasPreview("back") {
				t.Error("preview left after release")
			}
			l, _ := g.GetLayer("back")
			tr := Evaluate(l, tt.at, 0)
			if tr.X != 20 || tr.Y != 30 {
				t.Errorf("position at %v = (%v, %v), want (20, 30)", tt.at, tr.X, tr.Y)
			}
		})
	}
}

func TestInteractionBelowThresholdDoesNotMove(t *testing.T) {
	in, g, _, rc := newTestInteraction(t)
	in.PointerDown(10, 10, MouseButtonLeft, 0)
	in.PointerMove(12, 13)
	in.PointerUp(12, 13)
	if len(rc.calls) != 0 || g.HasPreview("back") {
		t.Errorf("commits=%d preview=%v", len(rc.calls), g.HasPreview("back"))
	}
	if g.Primary() != "back" {
		t.Errorf("primary = %q, want back", g.Primary())
	}
}

func TestInteractionScaleHandle(t *testing.T) {
	in, _, _, rc := newTestInteraction(t)
	in.PointerDown(50, 50, MouseButtonLeft, 0)
	in.PointerUp(50, 50)

	// Bottom-right corner of front; its center is (64, 64).
	in.PointerDown(96, 96, MouseButtonLeft, 0)
	if in.State() != StateHandleDrag || in.ActiveHandle() != HandleScale {
		t.Fatalf("state=%v handle=%v", in.State(), in.ActiveHandle())
	}
	in.PointerUp(128, 128)
	if len(rc.calls) != 1 {
		t.Fatalf("got %d commits, want 1", len(rc.calls))
	}
	p, ok := rc.calls[0][0].(PatchLayer)
	if !ok || p.Patch.Scale == nil || math.Abs(*p.Patch.Scale-2) > 1e-9 {
		t.Errorf("commit = %#v", rc.calls[0][0])
	}
}

func TestInteractionRotateHandle(t *testing.T) {
	in, g, _, _ := newTestInteraction(t)
	in.PointerDown(50, 50, MouseButtonLeft, 0)
	in.PointerUp(50, 50)

	// The rotate handle sits 24px above the top edge center.
	in.PointerDown(64, 8, MouseButtonLeft, 0)
	if in.ActiveHandle() != HandleRotate {
		t.Fatalf("handle = %v", in.ActiveHandle())
	}
	in.PointerUp(120, 64)
	l, _ := g.GetLayer("front")
	if math.Abs(l.Rotation-90) > 1e-9 {
		t.Errorf("rotation = %v, want 90", l.Rotation)
	}
}

func TestInteractionCancelSnapsBack(t *testing.T) {
	in, g, _, rc := newTestInteraction(t)
	in.PointerDown(10, 10, MouseButtonLeft, 0)
	in.PointerMove(60, 10)
	if !in.KeyDown(KeyEscape, 0) {
		t.Fatal("escape not consumed")
	}
	in.PointerUp(60, 10)
	if !g.HasPreview("back") {
		t.Fatal("snap-back should animate through the preview")
	}
	in.Update(0.05)
	in.Update(1)
	if g.HasPreview("back") || len(rc.calls) != 0 {
		t.Errorf("preview=%v commits=%d after snap-back", g.HasPreview("back"), len(rc.calls))
	}
}

func TestInteractionRejectedCommit(t *testing.T) {
	in, g, _, rc := newTestInteraction(t)
	rc.err = errors.New("boom")
	var notices []Notice
	in.OnNotice = func(n Notice) { notices = append(notices, n) }

	in.PointerDown(10, 10, MouseButtonLeft, 0)
	in.PointerUp(40, 40)
	if len(notices) != 1 || notices[0].Level != NoticeError {
		t.Fatalf("notices = %+v", notices)
	}
	if l, _ := g.GetLayer("back"); l.XOffset != 0 {
		t.Error("rejected drag changed the model")
	}
}

func TestInteractionKeys(t *testing.T) {
	t.Run("nudge", func(t *testing.T) {
		tests := []struct {
			key    Key
			mods   KeyModifiers
			dx, dy float64
		}{
			{KeyRight, 0, 10, 0},
			{KeyLeft, ModCtrl, -1, 0},
			{KeyDown, ModShift, 0, 50},
			{KeyUp, 0, 0, -10},
		}
		for _, tt := range tests {
			in, g, _, _ := newTestInteraction(t)
			g.Select("front")
			if !in.KeyDown(tt.key, tt.mods) {
				t.Fatalf("%v not consumed", tt.key)
			}
			l, _ := g.GetLayer("front")
			if l.XOffset != 32+tt.dx || l.YOffset != 32+tt.dy {
				t.Errorf("%v mods %d: offset = (%v, %v)", tt.key, tt.mods, l.XOffset, l.YOffset)
			}
		}
	})

	t.Run("scale", func(t *testing.T) {
		in, g, _, _ := newTestInteraction(t)
		g.Select("front")
		in.KeyDown(KeyPlus, ModShift)
		in.KeyDown(KeyMinus, 0)
		l, _ := g.GetLayer("front")
		if math.Abs(l.Scale-1.4) > 1e-9 {
			t.Errorf("scale = %v, want 1.4", l.Scale)
		}
	})

	t.Run("delete selection", func(t *testing.T) {
		in, g, _, rc := newTestInteraction(t)
		g.Select("front")
		g.ToggleSelect("back")
		if !in.KeyDown(KeyDelete, 0) {
			t.Fatal("delete not consumed")
		}
		if len(rc.calls) != 1 || len(rc.calls[0]) != 2 || g.Len() != 0 {
			t.Errorf("commits=%v layers=%d", rc.calls, g.Len())
		}
	})

	t.Run("space toggles playback", func(t *testing.T) {
		in, _, c, _ := newTestInteraction(t)
		in.KeyDown(KeySpace, 0)
		if !c.Playing() {
			t.Error("space did not start playback")
		}
		in.TextFocus = true
		if in.KeyDown(KeySpace, 0) || !c.Playing() {
			t.Error("space handled while a text field has focus")
		}
	})

	t.Run("undo", func(t *testing.T) {
		s := NewScene("u")
		g, _ := NewSceneGraph(s)
		uc := &undoCommitter{recordingCommitter: recordingCommitter{g: g}}
		in := NewInteraction(g, NewClock(10, false), NewRenderer(nil, Stage{}), uc, 0)
		if in.KeyDown(KeyZ, 0) {
			t.Error("bare Z consumed")
		}
		in.KeyDown(KeyZ, ModCtrl)
		in.KeyDown(KeyY, ModMeta)
		if uc.undos != 1 || uc.redos != 1 {
			t.Errorf("undos=%d redos=%d", uc.undos, uc.redos)
		}
	})
}
