package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DirStore keeps scenes as JSON files next to the assets:
//
//	<root>/scenes/<name>.json
//	<root>/events.jsonl
type DirStore struct {
	*Assets
	scenes

	eventsMu sync.Mutex
}

// NewDir returns a store rooted at dir, creating the scenes directory.
func NewDir(dir string) (*DirStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "scenes"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	d := &DirStore{Assets: NewAssets(dir)}
	d.scenes.init(dirBackend{root: dir})
	return d, nil
}

type dirBackend struct {
	root string
}

func (b dirBackend) path(name string) string {
	return filepath.Join(b.root, "scenes", name+".json")
}

func (b dirBackend) get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%q: %w", name, ErrSceneNotFound)
	}
	return data, err
}

// put writes through a temp file so a crash never leaves half a scene.
func (b dirBackend) put(_ context.Context, name string, data []byte, _ int) error {
	path := b.path(name)
	tmp, err := os.CreateTemp(filepath.Dir(path), name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type eventRecord struct {
	Time    time.Time      `json:"time"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EmitEvent implements diorama.Port by appending a JSON line to
// events.jsonl.
func (d *DirStore) EmitEvent(_ context.Context, kind string, payload map[string]any) error {
	line, err := json.Marshal(eventRecord{Time: time.Now().UTC(), Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	f, err := os.OpenFile(filepath.Join(d.root, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to write event: %w", err)
	}
	return f.Close()
}

// Close implements Store.
func (d *DirStore) Close() error { return nil }
