package diorama

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// AssetStatus is the load state of a cached sprite.
type AssetStatus uint8

const (
	AssetMissing AssetStatus = iota // never requested
	AssetPending
	AssetReady
	AssetFailed
)

func (s AssetStatus) String() string {
	switch s {
	case AssetPending:
		return "pending"
	case AssetReady:
		return "ready"
	case AssetFailed:
		return "failed"
	default:
		return "missing"
	}
}

// placeholderSize is the box drawn for a sprite whose image is not ready.
const placeholderSize = 64.0

// maxAssetAttempts is the first load plus one cache-busting retry.
const maxAssetAttempts = 2

type assetEntry struct {
	status  AssetStatus
	img     image.Image
	texture *ebiten.Image
	err     error
	cancel  context.CancelFunc
	// gen invalidates results from a load that was cancelled and restarted.
	gen uint64
}

// AssetCache is the process-wide name -> image map. Loads run off the frame
// loop; the renderer asks for what is ready and draws a placeholder for the
// rest. Writes are idempotent.
type AssetCache struct {
	loader SpriteLoader

	mu      sync.Mutex
	entries map[string]*assetEntry
	nextGen uint64
	group   singleflight.Group
	wg      sync.WaitGroup

	// newTexture uploads a decoded image. Replaced in tests.
	newTexture func(image.Image) *ebiten.Image
}

// NewAssetCache returns a cache backed by loader.
func NewAssetCache(loader SpriteLoader) *AssetCache {
	return &AssetCache{
		loader:     loader,
		entries:    make(map[string]*assetEntry),
		newTexture: ebiten.NewImageFromImage,
	}
}

// Request starts loading name unless it is already cached or in flight.
// It never blocks.
func (c *AssetCache) Request(name string) {
	if c.loader == nil || name == "" {
		return
	}
	c.mu.Lock()
	if _, ok := c.entries[name]; ok {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.nextGen++
	e := &assetEntry{status: AssetPending, cancel: cancel, gen: c.nextGen}
	c.entries[name] = e
	gen := e.gen
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		img, err := c.load(ctx, name)
		c.store(name, gen, img, err)
	}()
}

// load fetches name, retrying once with a cache-buster. Concurrent loads of
// the same name share one fetch.
func (c *AssetCache) load(ctx context.Context, name string) (image.Image, error) {
	var lastErr error
	for attempt := 0; attempt < maxAssetAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := name + "#" + strconv.Itoa(attempt)
		v, err, _ := c.group.Do(key, func() (any, error) {
			return c.loader.LoadSpriteImage(ctx, AssetRequest{Name: name, Attempt: attempt})
		})
		if err == nil {
			if img, ok := v.(image.Image); ok && img != nil {
				return img, nil
			}
			err = fmt.Errorf("%q: loader returned no image", name)
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrAssetNotFound) {
			break
		}
		logf("asset %q: attempt %d failed: %v", name, attempt+1, err)
	}
	return nil, fmt.Errorf("%w: %q: %w", ErrAssetLoadFailed, name, lastErr)
}

func (c *AssetCache) store(name string, gen uint64, img image.Image, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok || e.gen != gen {
		return
	}
	e.cancel = nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			delete(c.entries, name)
			return
		}
		e.status = AssetFailed
		e.err = err
		logf("%v", err)
		return
	}
	e.status = AssetReady
	e.img = img
}

// Status returns the load state of name.
func (c *AssetCache) Status(name string) AssetStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok {
		return e.status
	}
	return AssetMissing
}

// Err returns the final load error for a failed sprite.
func (c *AssetCache) Err(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok {
		return e.err
	}
	return nil
}

// Image returns the decoded image if it is ready.
func (c *AssetCache) Image(name string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok || e.status != AssetReady {
		return nil, false
	}
	return e.img, true
}

// Size returns the sprite's pixel size, or the placeholder size and false
// when the image is not ready.
func (c *AssetCache) Size(name string) (w, h float64, ok bool) {
	if img, ready := c.Image(name); ready {
		b := img.Bounds()
		return float64(b.Dx()), float64(b.Dy()), true
	}
	return placeholderSize, placeholderSize, false
}

// Texture returns the GPU image for name, uploading it on first use. Must
// be called from the frame loop.
func (c *AssetCache) Texture(name string) *ebiten.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok || e.status != AssetReady {
		return nil
	}
	if e.texture == nil {
		if t, ok := e.img.(*ebiten.Image); ok {
			e.texture = t
		} else {
			e.texture = c.newTexture(e.img)
		}
	}
	return e.texture
}

// Put stores an already decoded image. Used by hosts that embed assets.
func (c *AssetCache) Put(name string, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok && e.cancel != nil {
		e.cancel()
	}
	c.nextGen++
	c.entries[name] = &assetEntry{status: AssetReady, img: img, gen: c.nextGen}
}

// Cancel aborts an in-flight load and forgets name. Called when a layer is
// removed before its image resolves.
func (c *AssetCache) Cancel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return
	}
	if e.status == AssetPending && e.cancel != nil {
		e.cancel()
		delete(c.entries, name)
	}
}

// Preload loads every name concurrently and blocks until all are settled.
// Failures are recorded per name; the returned error joins them.
func (c *AssetCache) Preload(ctx context.Context, names []string) error {
	if c.loader == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	errs := make([]error, len(names))
	for i, name := range names {
		if c.Status(name) == AssetReady {
			continue
		}
		g.Go(func() error {
			img, err := c.load(gctx, name)
			c.mu.Lock()
			c.nextGen++
			e := &assetEntry{gen: c.nextGen}
			if err != nil {
				e.status, e.err = AssetFailed, err
			} else {
				e.status, e.img = AssetReady, img
			}
			if old, ok := c.entries[name]; ok && old.cancel != nil {
				old.cancel()
			}
			c.entries[name] = e
			c.mu.Unlock()
			errs[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Wait blocks until every background load started by Request has settled.
func (c *AssetCache) Wait() {
	c.wg.Wait()
}
