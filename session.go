package diorama

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type saveResult struct {
	id  uuid.UUID
	ack Ack
	err error
}

// Session connects a scene graph to a Port. Commits apply locally at once
// and are written back in the background, one save at a time; the latest
// state always wins because a save that lands while edits are pending is
// followed by another.
//
// All methods except the background save goroutine run on the frame loop.
type Session struct {
	ctx   context.Context
	port  Port
	graph *SceneGraph

	// OnNotice receives save failures and conflicts.
	OnNotice func(Notice)

	dirty    bool
	failed   bool
	inflight uuid.UUID
	results  chan saveResult
	conflict *ConflictError

	events sync.WaitGroup
}

// NewSession returns a session writing g back through port. ctx bounds
// every port call.
func NewSession(ctx context.Context, port Port, g *SceneGraph) *Session {
	return &Session{
		ctx:     ctx,
		port:    port,
		graph:   g,
		results: make(chan saveResult, 1),
	}
}

// OpenSession loads a scene by name and wraps it.
func OpenSession(ctx context.Context, port Port, name string) (*Session, error) {
	scene, err := port.LoadScene(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene %q: %w", name, err)
	}
	g, err := NewSceneGraph(scene)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene %q: %w", name, err)
	}
	return NewSession(ctx, port, g), nil
}

// Graph returns the working graph.
func (s *Session) Graph() *SceneGraph { return s.graph }

// Port returns the backing port.
func (s *Session) Port() Port { return s.port }

// Dirty reports whether local edits have not been acknowledged.
func (s *Session) Dirty() bool { return s.dirty || s.inflight != uuid.Nil }

// Saving reports whether a save is in flight.
func (s *Session) Saving() bool { return s.inflight != uuid.Nil }

// Conflict returns the held conflict, if any. Saves are paused until
// Refresh or KeepLocal resolves it.
func (s *Session) Conflict() *ConflictError { return s.conflict }

// Commit applies intents to the graph atomically, reports them to the
// port's telemetry and schedules a save.
func (s *Session) Commit(intents ...Intent) error {
	if err := s.graph.Apply(intents...); err != nil {
		return err
	}
	s.emit(intents)
	s.dirty = true
	s.failed = false
	s.kick()
	return nil
}

func (s *Session) emit(intents []Intent) {
	if len(intents) == 0 {
		return
	}
	id := uuid.NewString()
	scene := s.graph.Scene().Name
	type event struct {
		kind    string
		payload map[string]any
	}
	events := make([]event, 0, len(intents))
	for _, in := range intents {
		if in == nil {
			continue
		}
		p := intentPayload(in)
		p["intent_id"] = id
		p["scene"] = scene
		events = append(events, event{in.Kind(), p})
	}
	s.events.Add(1)
	go func() {
		defer s.events.Done()
		for _, ev := range events {
			kind, p := ev.kind, ev.payload
			if err := s.port.EmitEvent(s.ctx, kind, p); err != nil {
				logf("event %s: %v", kind, err)
			}
		}
	}()
}

func intentPayload(in Intent) map[string]any {
	switch in := in.(type) {
	case AddLayer:
		if in.Layer != nil {
			return map[string]any{"layer": in.Layer.SpriteName}
		}
	case RemoveLayer:
		return map[string]any{"layer": in.Name}
	case PatchLayer:
		return map[string]any{"layer": in.Name}
	case SetBehaviors:
		return map[string]any{"layer": in.Name, "count": len(in.Behaviors)}
	case AddBehavior:
		return map[string]any{"layer": in.Name, "behavior": string(in.Behavior)}
	case RemoveBehavior:
		return map[string]any{"layer": in.Name, "index": in.Index}
	case MoveLayer:
		return map[string]any{"layer": in.Name, "time": in.Time, "x": in.X, "y": in.Y}
	case MoveKeyframe:
		p := map[string]any{"layer": in.Name, "index": in.Index}
		if in.Time != nil {
			p["time"] = *in.Time
		}
		if in.ZDepth != nil {
			p["z_depth"] = *in.ZDepth
		}
		return p
	case DeleteKeyframe:
		return map[string]any{"layer": in.Name, "index": in.Index}
	case NormalizeLanes:
		return map[string]any{"at": in.At}
	}
	return map[string]any{}
}

// kick starts a save of the current scene if one is due and none is
// running.
func (s *Session) kick() {
	if !s.dirty || s.failed || s.conflict != nil || s.inflight != uuid.Nil {
		return
	}
	snapshot := s.graph.Scene().Clone()
	id := uuid.New()
	s.inflight = id
	s.dirty = false
	go func() {
		ack, err := s.port.SaveScene(s.ctx, snapshot)
		s.results <- saveResult{id: id, ack: ack, err: err}
	}()
}

// Poll handles a finished save, if any. Call once per frame.
func (s *Session) Poll() {
	for {
		select {
		case r := <-s.results:
			s.handle(r)
		default:
			return
		}
	}
}

func (s *Session) handle(r saveResult) {
	if r.id != s.inflight {
		return
	}
	s.inflight = uuid.Nil
	var conflict *ConflictError
	switch {
	case r.err == nil:
		s.graph.SetRevision(r.ack.Revision)
		s.kick()
	case errors.As(r.err, &conflict):
		s.dirty = true
		s.conflict = conflict
		logf("save %q: %v", s.graph.Scene().Name, r.err)
		s.notice(noticeFor(r.err))
	default:
		// Held until the next commit so a dead store is not hammered.
		s.dirty = true
		s.failed = true
		logf("save %q: %v", s.graph.Scene().Name, r.err)
		s.notice(Notice{Level: NoticeError, Message: "failed to save scene", Err: r.err})
	}
}

func (s *Session) notice(n Notice) {
	if s.OnNotice != nil {
		s.OnNotice(n)
	}
}

// Flush blocks until nothing is pending or saving stalls on an error or a
// conflict.
func (s *Session) Flush(ctx context.Context) error {
	s.failed = false
	s.kick()
	for s.inflight != uuid.Nil {
		select {
		case r := <-s.results:
			s.handle(r)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	switch {
	case s.conflict != nil:
		return s.conflict
	case s.failed:
		return fmt.Errorf("failed to save scene %q", s.graph.Scene().Name)
	}
	return nil
}

// Refresh discards local state and reloads the stored scene. It also
// clears a held conflict.
func (s *Session) Refresh(ctx context.Context) error {
	scene, err := s.port.LoadScene(ctx, s.graph.Scene().Name)
	if err != nil {
		return fmt.Errorf("failed to reload scene: %w", err)
	}
	if err := s.graph.Replace(scene); err != nil {
		return err
	}
	s.graph.ClearPreviews()
	// A save still in flight is forgotten; its result is ignored.
	s.inflight = uuid.Nil
	s.conflict = nil
	s.dirty = false
	s.failed = false
	return nil
}

// KeepLocal resolves a conflict in favour of the local scene: it adopts the
// stored revision and saves over it.
func (s *Session) KeepLocal() {
	if s.conflict == nil {
		return
	}
	if s.conflict.Snapshot != nil {
		s.graph.SetRevision(s.conflict.Snapshot.Revision)
	}
	s.conflict = nil
	s.dirty = true
	s.failed = false
	s.kick()
}

// Undo steps the port's history back. Without history support it does
// nothing.
func (s *Session) Undo() error {
	h, ok := s.port.(History)
	if !ok {
		return nil
	}
	return s.history(h.Undo)
}

// Redo steps the port's history forward.
func (s *Session) Redo() error {
	h, ok := s.port.(History)
	if !ok {
		return nil
	}
	return s.history(h.Redo)
}

func (s *Session) history(step func(context.Context, string) (*Scene, error)) error {
	if s.Dirty() {
		if err := s.Flush(s.ctx); err != nil {
			return err
		}
	}
	scene, err := step(s.ctx, s.graph.Scene().Name)
	if err != nil {
		return err
	}
	if scene == nil {
		return nil
	}
	return s.graph.Replace(scene)
}

// Close waits for pending saves and telemetry.
func (s *Session) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.events.Wait()
	return err
}
