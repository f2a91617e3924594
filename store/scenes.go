// Package store implements the diorama persistence port: a filesystem
// asset provider shared by every store, and scene storage on a directory,
// on quasilyte/gdata, or on SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/phanxgames/diorama"
)

// ErrSceneNotFound is returned by LoadScene for an unknown scene name.
var ErrSceneNotFound = errors.New("scene not found")

// historyLimit caps undo depth per scene.
const historyLimit = 50

// backend stores raw scene documents by name.
type backend interface {
	get(ctx context.Context, name string) ([]byte, error)
	put(ctx context.Context, name string, data []byte, revision int) error
}

// scenes adds revisions, conflict detection and a linear undo history on
// top of a backend. Saves are serialized per store.
type scenes struct {
	b    backend
	mu   sync.Mutex
	hist history
}

func (s *scenes) init(b backend) {
	s.b = b
	s.hist.init(historyLimit)
}

// validName rejects names that could escape a store's namespace.
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

func (s *scenes) load(ctx context.Context, name string) (*diorama.Scene, []byte, error) {
	if err := validName(name); err != nil {
		return nil, nil, err
	}
	data, err := s.b.get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	scene, err := diorama.ParseScene(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse scene %q: %w", name, err)
	}
	if scene.Name == "" {
		scene.Name = name
	}
	return scene, data, nil
}

// LoadScene implements diorama.Port.
func (s *scenes) LoadScene(ctx context.Context, name string) (*diorama.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, _, err := s.load(ctx, name)
	return scene, err
}

// SaveScene implements diorama.Port. A stored revision newer than the
// scene's is a conflict; otherwise the scene is written at revision+1.
func (s *scenes) SaveScene(ctx context.Context, scene *diorama.Scene) (diorama.Ack, error) {
	if scene == nil {
		return diorama.Ack{}, errors.New("nil scene")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, prev, err := s.load(ctx, scene.Name)
	switch {
	case errors.Is(err, ErrSceneNotFound):
		stored, prev = nil, nil
	case err != nil:
		return diorama.Ack{}, err
	}
	if stored != nil && stored.Revision > scene.Revision {
		return diorama.Ack{}, &diorama.ConflictError{Snapshot: stored}
	}

	next := scene.Clone()
	next.Revision = scene.Revision + 1
	data, err := diorama.SerializeScene(next)
	if err != nil {
		return diorama.Ack{}, fmt.Errorf("failed to encode scene: %w", err)
	}
	if err := s.b.put(ctx, next.Name, data, next.Revision); err != nil {
		return diorama.Ack{}, fmt.Errorf("failed to save scene %q: %w", next.Name, err)
	}
	if prev != nil {
		s.hist.record(next.Name, prev)
	}
	return diorama.Ack{Revision: next.Revision}, nil
}

// Undo implements diorama.History. It returns nil when there is nothing
// to undo.
func (s *scenes) Undo(ctx context.Context, name string) (*diorama.Scene, error) {
	return s.step(ctx, name, s.hist.back)
}

// Redo implements diorama.History.
func (s *scenes) Redo(ctx context.Context, name string) (*diorama.Scene, error) {
	return s.step(ctx, name, s.hist.forward)
}

// step swaps the stored document for one from the history. The restored
// scene gets a fresh revision so open sessions see it as newer.
func (s *scenes) step(ctx context.Context, name string, move func(string, []byte) ([]byte, bool)) (*diorama.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, curData, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	data, ok := move(name, curData)
	if !ok {
		return nil, nil
	}
	scene, err := diorama.ParseScene(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse history entry: %w", err)
	}
	scene.Name = name
	scene.Revision = cur.Revision + 1
	out, err := diorama.SerializeScene(scene)
	if err != nil {
		return nil, err
	}
	if err := s.b.put(ctx, name, out, scene.Revision); err != nil {
		return nil, fmt.Errorf("failed to restore scene %q: %w", name, err)
	}
	return scene, nil
}

// history keeps per-scene undo and redo stacks of raw documents.
type history struct {
	mu    sync.Mutex
	limit int
	undo  map[string][][]byte
	redo  map[string][][]byte
}

func (h *history) init(limit int) {
	h.limit = limit
	h.undo = make(map[string][][]byte)
	h.redo = make(map[string][][]byte)
}

// record pushes the document a save replaced. A new edit clears redo.
func (h *history) record(name string, prev []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := append(h.undo[name], prev)
	if len(st) > h.limit {
		st = st[len(st)-h.limit:]
	}
	h.undo[name] = st
	delete(h.redo, name)
}

func (h *history) back(name string, cur []byte) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return pop(h.undo, h.redo, name, cur)
}

func (h *history) forward(name string, cur []byte) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return pop(h.redo, h.undo, name, cur)
}

func pop(from, to map[string][][]byte, name string, cur []byte) ([]byte, bool) {
	st := from[name]
	if len(st) == 0 {
		return nil, false
	}
	top := st[len(st)-1]
	from[name] = st[:len(st)-1]
	to[name] = append(to[name], cur)
	return top, true
}
