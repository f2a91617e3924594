package diorama

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"
)

// memPort is an in-memory Port with the same revision rules as the stores.
type memPort struct {
	mu     sync.Mutex
	scenes map[string]*Scene
	saves  []*Scene
	events []string
	// gate, when set, blocks SaveScene until it is closed.
	gate    chan struct{}
	saveErr error
}

func newMemPort(scenes ...*Scene) *memPort {
	p := &memPort{scenes: make(map[string]*Scene)}
	for _, s := range scenes {
		p.scenes[s.Name] = s.Clone()
	}
	return p
}

func (p *memPort) LoadSpriteImage(context.Context, AssetRequest) (image.Image, error) {
	return nil, ErrAssetNotFound
}

func (p *memPort) LoadScene(_ context.Context, name string) (*Scene, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scenes[name]
	if !ok {
		return nil, errors.New("no such scene")
	}
	return s.Clone(), nil
}

func (p *memPort) SaveScene(_ context.Context, s *Scene) (Ack, error) {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return Ack{}, p.saveErr
	}
	if cur, ok := p.scenes[s.Name]; ok && cur.Revision > s.Revision {
		return Ack{}, &ConflictError{Snapshot: cur.Clone()}
	}
	next := s.Clone()
	next.Revision = s.Revision + 1
	p.scenes[s.Name] = next
	p.saves = append(p.saves, next)
	return Ack{Revision: next.Revision}, nil
}

func (p *memPort) ListSounds(context.Context) ([]SoundRef, error) { return nil, nil }

func (p *memPort) EmitEvent(_ context.Context, kind string, _ map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, kind)
	return nil
}

func (p *memPort) stored(name string) *Scene {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scenes[name]
}

func (p *memPort) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

type historyPort struct {
	*memPort
	undos int
}

func (p *historyPort) Undo(_ context.Context, name string) (*Scene, error) {
	p.undos++
	s := NewScene(name)
	s.Revision = 99
	return s, nil
}

func (p *historyPort) Redo(context.Context, string) (*Scene, error) { return nil, nil }

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func openTestSession(t *testing.T, p Port) *Session {
	t.Helper()
	s, err := OpenSession(testCtx(t), p, "park")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionCommitSaves(t *testing.T) {
	p := newMemPort(NewScene("park"))
	s := openTestSession(t, p)

	if err := s.Commit(AddLayer{Layer: NewLayer("tree")}); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Graph().GetLayer("tree"); !ok {
		t.Fatal("commit not applied locally")
	}
	if !s.Dirty() {
		t.Error("session not dirty after commit")
	}
	if err := s.Close(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	stored := p.stored("park")
	if stored.Revision != 1 || len(stored.Layers) != 1 {
		t.Errorf("stored revision %d with %d layers", stored.Revision, len(stored.Layers))
	}
	if s.Graph().Scene().Revision != 1 || s.Dirty() {
		t.Errorf("local revision %d dirty=%v", s.Graph().Scene().Revision, s.Dirty())
	}
	if len(p.events) != 1 || p.events[0] != "add-layer" {
		t.Errorf("events = %v", p.events)
	}
}

func TestSessionRejectedCommit(t *testing.T) {
	p := newMemPort(NewScene("park"))
	s := openTestSession(t, p)
	err := s.Commit(RemoveLayer{Name: "ghost"})
	if !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("err = %v", err)
	}
	if s.Dirty() {
		t.Error("rejected commit marked the session dirty")
	}
}

func TestSessionSavesOneAtATime(t *testing.T) {
	p := newMemPort(NewScene("park"))
	p.gate = make(chan struct{})
	s := openTestSession(t, p)

	for _, name := range []string{"a", "b", "c"} {
		if err := s.Commit(AddLayer{Layer: NewLayer(name)}); err != nil {
			t.Fatal(err)
		}
	}
	if !s.Saving() {
		t.Fatal("no save in flight")
	}
	close(p.gate)
	if err := s.Flush(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	// The first save carries "a"; everything after it coalesces.
	if n := p.saveCount(); n != 2 {
		t.Errorf("got %d saves, want 2", n)
	}
	if got := len(p.stored("park").Layers); got != 3 {
		t.Errorf("stored %d layers, want 3", got)
	}
	if s.Graph().Scene().Revision != 2 {
		t.Errorf("revision = %d, want 2", s.Graph().Scene().Revision)
	}
}

func TestSessionConflict(t *testing.T) {
	newer := NewScene("park")
	newer.Revision = 5
	newer.Layers = []*Layer{NewLayer("remote")}

	setup := func(t *testing.T) (*Session, *memPort, *[]Notice) {
		p := newMemPort(NewScene("park"))
		s := openTestSession(t, p)
		var notices []Notice
		s.OnNotice = func(n Notice) { notices = append(notices, n) }
		p.scenes["park"] = newer.Clone()

		s.Commit(AddLayer{Layer: NewLayer("local")})
		err := s.Flush(testCtx(t))
		if !errors.Is(err, ErrPersistenceConflict) {
			t.Fatalf("flush err = %v", err)
		}
		if s.Conflict() == nil || s.Conflict().Snapshot.Revision != 5 {
			t.Fatalf("conflict = %v", s.Conflict())
		}
		if len(notices) != 1 || notices[0].Level != NoticeWarning {
			t.Fatalf("notices = %+v", notices)
		}
		return s, p, &notices
	}

	t.Run("holds saves", func(t *testing.T) {
		s, p, _ := setup(t)
		s.Commit(AddLayer{Layer: NewLayer("more")})
		if s.Saving() || p.saveCount() != 0 {
			t.Error("saved while a conflict is held")
		}
		if _, ok := s.Graph().GetLayer("more"); !ok {
			t.Error("local edit lost")
		}
	})

	t.Run("refresh", func(t *testing.T) {
		s, _, _ := setup(t)
		if err := s.Refresh(testCtx(t)); err != nil {
			t.Fatal(err)
		}
		if _, ok := s.Graph().GetLayer("remote"); !ok || s.Conflict() != nil || s.Dirty() {
			t.Errorf("refresh: remote=%v conflict=%v dirty=%v", ok, s.Conflict(), s.Dirty())
		}
		if _, ok := s.Graph().GetLayer("local"); ok {
			t.Error("local layer survived refresh")
		}
	})

	t.Run("keep local", func(t *testing.T) {
		s, p, _ := setup(t)
		s.KeepLocal()
		if err := s.Flush(testCtx(t)); err != nil {
			t.Fatal(err)
		}
		stored := p.stored("park")
		if stored.Revision != 6 || stored.Layers[0].SpriteName != "local" {
			t.Errorf("stored revision %d layers %v", stored.Revision, stored.Layers[0].SpriteName)
		}
	})
}

func TestSessionSaveFailure(t *testing.T) {
	p := newMemPort(NewScene("park"))
	p.saveErr = errors.New("disk full")
	s := openTestSession(t, p)
	var notices []Notice
	s.OnNotice = func(n Notice) { notices = append(notices, n) }

	s.Commit(AddLayer{Layer: NewLayer("a")})
	if err := s.Flush(testCtx(t)); err == nil {
		t.Fatal("flush succeeded against a failing store")
	}
	if len(notices) != 1 || notices[0].Level != NoticeError {
		t.Fatalf("notices = %+v", notices)
	}

	p.mu.Lock()
	p.saveErr = nil
	p.mu.Unlock()
	s.Commit(AddLayer{Layer: NewLayer("b")})
	if err := s.Flush(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	if got := len(p.stored("park").Layers); got != 2 {
		t.Errorf("stored %d layers after retry, want 2", got)
	}
}

func TestSessionPoll(t *testing.T) {
	p := newMemPort(NewScene("park"))
	s := openTestSession(t, p)
	s.Commit(AddLayer{Layer: NewLayer("a")})
	deadline := time.Now().Add(5 * time.Second)
	for s.Dirty() && time.Now().Before(deadline) {
		s.Poll()
		time.Sleep(time.Millisecond)
	}
	if s.Dirty() {
		t.Fatal("save never acknowledged through Poll")
	}
}

func TestSessionUndo(t *testing.T) {
	t.Run("without history", func(t *testing.T) {
		s := openTestSession(t, newMemPort(NewScene("park")))
		if err := s.Undo(); err != nil {
			t.Errorf("undo = %v", err)
		}
	})
	t.Run("with history", func(t *testing.T) {
		hp := &historyPort{memPort: newMemPort(NewScene("park"))}
		s := openTestSession(t, hp)
		s.Commit(AddLayer{Layer: NewLayer("a")})
		if err := s.Undo(); err != nil {
			t.Fatal(err)
		}
		if hp.saveCount() != 1 {
			t.Error("pending edit not flushed before undo")
		}
		if s.Graph().Len() != 0 || s.Graph().Scene().Revision != 99 {
			t.Errorf("graph after undo: %d layers, revision %d", s.Graph().Len(), s.Graph().Scene().Revision)
		}
		if err := s.Redo(); err != nil {
			t.Errorf("empty redo = %v", err)
		}
	})
}

func TestIntentPayload(t *testing.T) {
	tests := []struct {
		name string
		in   Intent
		key  string
		want any
	}{
		{"add behavior", AddBehavior{Name: "a", Behavior: KindPulse}, "behavior", "pulse"},
		{"remove behavior", RemoveBehavior{Name: "a", Index: 2}, "index", 2},
		{"remove layer", RemoveLayer{Name: "a"}, "layer", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := intentPayload(tt.in)
			if got := p[tt.key]; got != tt.want {
				t.Errorf("payload[%q] = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
