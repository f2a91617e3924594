package store

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gopxl/beep/wav"

	"github.com/phanxgames/diorama"
)

// Assets serves sprites, sprite defaults and sound clips from a directory:
//
//	<root>/sprites/<name>.png
//	<root>/sprites/<name>.prompt.json
//	<root>/sounds/<name>.wav
type Assets struct {
	root string
}

// NewAssets returns a provider rooted at dir.
func NewAssets(dir string) *Assets {
	return &Assets{root: dir}
}

// Root returns the asset directory.
func (a *Assets) Root() string { return a.root }

func (a *Assets) spritePath(name string) string {
	if filepath.Ext(name) == "" {
		name += ".png"
	}
	return filepath.Join(a.root, "sprites", name)
}

func notFound(what, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %q: %w", what, name, diorama.ErrAssetNotFound)
	}
	return fmt.Errorf("%s %q: %w", what, name, err)
}

// LoadSpriteImage implements diorama.SpriteLoader. The cache-buster of a
// retry has no meaning on a filesystem and is ignored.
func (a *Assets) LoadSpriteImage(ctx context.Context, req diorama.AssetRequest) (image.Image, error) {
	if err := validName(req.Name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(a.spritePath(req.Name))
	if err != nil {
		return nil, notFound("sprite", req.Name, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sprite %q: %w", req.Name, err)
	}
	return img, nil
}

// SpriteDefaults implements diorama.SpriteDefaulter.
func (a *Assets) SpriteDefaults(_ context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(a.root, "sprites", name+".prompt.json"))
	if err != nil {
		return nil, notFound("sprite defaults", name, err)
	}
	return data, nil
}

// ListSounds implements diorama.Port. Durations come from the WAV headers;
// a clip that fails to decode is listed with duration 0.
func (a *Assets) ListSounds(ctx context.Context) ([]diorama.SoundRef, error) {
	dir := filepath.Join(a.root, "sounds")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sounds: %w", err)
	}
	var out []diorama.SoundRef
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		out = append(out, diorama.SoundRef{Name: name, Duration: wavDuration(filepath.Join(dir, e.Name()))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func wavDuration(path string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	s, format, err := wav.Decode(f)
	if err != nil {
		return 0
	}
	defer s.Close()
	return format.SampleRate.D(s.Len()).Seconds()
}

// OpenSound opens a clip for playback. The caller closes it.
func (a *Assets) OpenSound(_ context.Context, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	file := name
	if filepath.Ext(file) == "" {
		file += ".wav"
	}
	f, err := os.Open(filepath.Join(a.root, "sounds", file))
	if err != nil {
		return nil, notFound("sound", name, err)
	}
	return f, nil
}
