package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/phanxgames/diorama"
)

// Store is what every backend in this package provides.
type Store interface {
	diorama.Port
	diorama.History
	diorama.SpriteDefaulter

	// OpenSound opens a clip for playback.
	OpenSound(ctx context.Context, name string) (io.ReadCloser, error)

	Close() error
}

var (
	_ Store = (*DirStore)(nil)
	_ Store = (*GdataStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open returns the store selected by cfg.Driver. Assets always come from
// cfg.Root; a relative DBPath is resolved against it.
func Open(cfg diorama.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "dir":
		return NewDir(cfg.Root)
	case "gdata":
		return NewGdata(cfg.AppName, cfg.Root)
	case "sqlite":
		path := cfg.DBPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Root, path)
		}
		return NewSQLite(path, cfg.Root)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
