package diorama

import "testing"

func TestFrameSortsByZ(t *testing.T) {
	s := NewScene("z")
	for _, spec := range []struct {
		name string
		z    float64
	}{{"c", 3}, {"a", 1}, {"b1", 2}, {"b2", 2}, {"d", 0}} {
		l := NewLayer(spec.name)
		l.ZDepth = f(spec.z)
		s.Layers = append(s.Layers, l)
	}
	g, err := NewSceneGraph(s)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRenderer(nil, Stage{Width: 960, Height: 540})
	cmds := r.Frame(g, 0)

	want := []string{"d", "a", "b1", "b2", "c"}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d", len(cmds), len(want))
	}
	for i, name := range want {
		if cmds[i].Layer != name {
			t.Errorf("command %d = %q, want %q", i, cmds[i].Layer, name)
		}
		if !cmds[i].Placeholder {
			t.Errorf("%q not drawn as a placeholder without assets", name)
		}
	}
}

func TestFrameZFollowsKeyframes(t *testing.T) {
	s := NewScene("z")
	boat := NewLayer("boat")
	boat.ZDepth = f(0)
	boat.Behaviors = []Behavior{locZ(5, 10)}
	dock := NewLayer("dock")
	dock.ZDepth = f(5)
	s.Layers = []*Layer{boat, dock}
	g, _ := NewSceneGraph(s)
	r := NewRenderer(nil, Stage{Width: 960, Height: 540})

	if cmds := r.Frame(g, 4.9); cmds[1].Layer != "dock" {
		t.Errorf("boat above dock before its keyframe")
	}
	if cmds := r.Frame(g, 5); cmds[1].Layer != "boat" {
		t.Errorf("boat below dock after its keyframe")
	}
}

func TestFrameSkipsHiddenAndUsesPreview(t *testing.T) {
	s := NewScene("v")
	s.Layers = []*Layer{NewLayer("a"), NewLayer("b")}
	g, _ := NewSceneGraph(s)
	g.SetVisible("b", false)
	if err := g.PreviewIntents("a", MoveLayer{Name: "a", X: 100, Y: 50}); err != nil {
		t.Fatal(err)
	}
	r := NewRenderer(nil, Stage{Width: 960, Height: 540})
	cmds := r.Frame(g, 0)
	if len(cmds) != 1 || cmds[0].Layer != "a" {
		t.Fatalf("commands = %+v", cmds)
	}
	if cmds[0].Transform.X != 100 || cmds[0].Transform.Y != 50 {
		t.Errorf("preview not drawn: %+v", cmds[0].Transform)
	}

	if name, ok := r.HitTest(110, 60); !ok || name != "a" {
		t.Errorf("hit = %q, %v", name, ok)
	}
	if _, ok := r.HitTest(10, 10); ok {
		t.Error("hit the committed position of a previewed layer")
	}
}

func TestFrameScrollFunc(t *testing.T) {
	s := NewScene("bg")
	sky := NewLayer("sky")
	sky.Behaviors = []Behavior{&Background{}}
	s.Layers = []*Layer{sky}
	g, _ := NewSceneGraph(s)
	r := NewRenderer(nil, Stage{Width: 960, Height: 540})

	r.SetScroll(func(float64) float64 { return 0 })
	still := r.Frame(g, 3)[0]
	if !still.Tiled {
		t.Error("background layer not tiled")
	}
	r.SetScroll(nil)
	moving := r.Frame(g, 3)[0]
	if moving.Transform.X == still.Transform.X {
		t.Error("linear scroll did not move the background")
	}
}
