package diorama

import (
	"context"
	"image"
	"strconv"
)

// AssetRequest asks a port for a sprite image. Attempt is 0 for the first
// try; retries carry a cache-buster so intermediaries do not replay a
// failed response.
type AssetRequest struct {
	Name    string
	Attempt int
}

// CacheBuster returns a token to append to fetches on retry, or "" for the
// first attempt.
func (r AssetRequest) CacheBuster() string {
	if r.Attempt == 0 {
		return ""
	}
	return "retry=" + strconv.Itoa(r.Attempt)
}

// SoundRef names a playable clip.
type SoundRef struct {
	Name     string
	Duration float64 // seconds, 0 if unknown
}

// Ack confirms a save. Revision is the stored revision after the write.
type Ack struct {
	Revision int
}

// SpriteLoader loads sprite images by name.
type SpriteLoader interface {
	// LoadSpriteImage returns the decoded image, or an error wrapping
	// ErrAssetNotFound when the sprite does not exist.
	LoadSpriteImage(ctx context.Context, req AssetRequest) (image.Image, error)
}

// Port is the boundary between the core and whatever stores scenes and
// assets. The core never assumes a transport.
type Port interface {
	SpriteLoader

	// LoadScene returns the stored scene.
	LoadScene(ctx context.Context, name string) (*Scene, error)

	// SaveScene stores a scene. A store that holds a newer revision returns
	// a *ConflictError carrying its snapshot.
	SaveScene(ctx context.Context, scene *Scene) (Ack, error)

	// ListSounds returns the clips available to sound behaviors.
	ListSounds(ctx context.Context) ([]SoundRef, error)

	// EmitEvent records a telemetry event. It may be a no-op.
	EmitEvent(ctx context.Context, kind string, payload map[string]any) error
}

// History is implemented by ports that keep a linear scene history.
// Ctrl+Z and Ctrl+Y are no-ops when the port does not provide it.
type History interface {
	Undo(ctx context.Context, name string) (*Scene, error)
	Redo(ctx context.Context, name string) (*Scene, error)
}

// SpriteDefaulter is implemented by ports that keep author-time sprite
// defaults (the <name>.prompt.json sidecar). The returned JSON is merged
// under a new layer with MergeSpriteDefaults.
type SpriteDefaulter interface {
	SpriteDefaults(ctx context.Context, name string) ([]byte, error)
}
