package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/quasilyte/gdata/v2"
)

const (
	gdataScenesObject = "scenes"
	gdataEventsObject = "events"
	gdataEventsProp   = "log"
)

// gdataEventLimit bounds the event log kept in user data.
var gdataEventLimit = 1000

// GdataStore keeps scenes in the per-user application data directory managed by
// quasilyte/gdata. Assets still come from a directory.
type GdataStore struct {
	*Assets
	scenes

	m        *gdata.Manager
	eventsMu sync.Mutex
}

// NewGdata opens the user data store for appName.
func NewGdata(appName, assetsDir string) (*GdataStore, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("failed to open user data: %w", err)
	}
	g := &GdataStore{Assets: NewAssets(assetsDir), m: m}
	g.scenes.init(gdataBackend{m: m})
	return g, nil
}

type gdataBackend struct {
	m *gdata.Manager
}

func (b gdataBackend) get(_ context.Context, name string) ([]byte, error) {
	if !b.m.ObjectPropExists(gdataScenesObject, name) {
		return nil, fmt.Errorf("%q: %w", name, ErrSceneNotFound)
	}
	return b.m.LoadObjectProp(gdataScenesObject, name)
}

func (b gdataBackend) put(_ context.Context, name string, data []byte, _ int) error {
	return b.m.SaveObjectProp(gdataScenesObject, name, data)
}

// EmitEvent implements diorama.Port. Events are kept as JSON lines in a
// single property, trimmed to the newest gdataEventLimit entries.
func (g *GdataStore) EmitEvent(_ context.Context, kind string, payload map[string]any) error {
	line, err := json.Marshal(eventRecord{Time: time.Now().UTC(), Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	g.eventsMu.Lock()
	defer g.eventsMu.Unlock()

	var log []byte
	if g.m.ObjectPropExists(gdataEventsObject, gdataEventsProp) {
		log, err = g.m.LoadObjectProp(gdataEventsObject, gdataEventsProp)
		if err != nil {
			return fmt.Errorf("failed to read event log: %w", err)
		}
	}
	log = append(log, line...)
	log = append(log, '\n')
	if n := bytes.Count(log, []byte{'\n'}); n > gdataEventLimit {
		for ; n > gdataEventLimit; n-- {
			log = log[bytes.IndexByte(log, '\n')+1:]
		}
	}
	if err := g.m.SaveObjectProp(gdataEventsObject, gdataEventsProp, log); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}

// Events returns the stored event log, oldest first.
func (g *GdataStore) Events() ([]byte, error) {
	g.eventsMu.Lock()
	defer g.eventsMu.Unlock()
	if !g.m.ObjectPropExists(gdataEventsObject, gdataEventsProp) {
		return nil, nil
	}
	return g.m.LoadObjectProp(gdataEventsObject, gdataEventsProp)
}

// Close implements Store.
func (g *GdataStore) Close() error { return nil }
