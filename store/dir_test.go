package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/phanxgames/diorama"
)

func TestDirEmitEvent(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t)

	if err := d.EmitEvent(ctx, "layer_added", map[string]any{"layer": "tree"}); err != nil {
		t.Fatal(err)
	}
	if err := d.EmitEvent(ctx, "keyframe_moved", nil); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(d.Root(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec eventRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, rec.Kind)
	}
	if len(kinds) != 2 || kinds[0] != "layer_added" || kinds[1] != "keyframe_moved" {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestDirSaveLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t)
	if _, err := d.SaveScene(ctx, sceneWith("park", "tree")); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(filepath.Join(d.Root(), "scenes"))
	if len(entries) != 1 || entries[0].Name() != "park.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("scenes dir = %v, want [park.json]", names)
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// writeWAV writes a silent clip of the given length.
func writeWAV(t *testing.T, path string, d time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, beep.Silence(format.SampleRate.N(d)), format); err != nil {
		t.Fatal(err)
	}
}

func TestAssetsSprites(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "sprites", "tree.png"), 4, 3)
	a := NewAssets(root)

	img, err := a.LoadSpriteImage(ctx, diorama.AssetRequest{Name: "tree"})
	if err != nil {
		t.Fatalf("LoadSpriteImage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("bounds = %v, want 4x3", b)
	}

	_, err = a.LoadSpriteImage(ctx, diorama.AssetRequest{Name: "ghost", Attempt: 1})
	if !errors.Is(err, diorama.ErrAssetNotFound) {
		t.Errorf("missing sprite err = %v, want ErrAssetNotFound", err)
	}
}

func TestAssetsSpriteDefaults(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sprites", "tree.prompt.json"), []byte(`{"scale":2}`))
	a := NewAssets(root)

	got, err := a.SpriteDefaults(ctx, "tree")
	if err != nil || string(got) != `{"scale":2}` {
		t.Errorf("SpriteDefaults = %q, %v", got, err)
	}
	if _, err := a.SpriteDefaults(ctx, "bush"); !errors.Is(err, diorama.ErrAssetNotFound) {
		t.Errorf("missing defaults err = %v", err)
	}
}

func TestAssetsSounds(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "sounds", "chirp.wav"), 500*time.Millisecond)
	writeWAV(t, filepath.Join(root, "sounds", "birds.wav"), 2*time.Second)
	writeFile(t, filepath.Join(root, "sounds", "notes.txt"), []byte("x"))
	a := NewAssets(root)

	refs, err := a.ListSounds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 || refs[0].Name != "birds" || refs[1].Name != "chirp" {
		t.Fatalf("refs = %+v", refs)
	}
	if d := refs[0].Duration; d < 1.99 || d > 2.01 {
		t.Errorf("birds duration = %v, want 2", d)
	}

	rc, err := a.OpenSound(ctx, "chirp")
	if err != nil {
		t.Fatal(err)
	}
	n, _ := io.Copy(io.Discard, rc)
	rc.Close()
	if n == 0 {
		t.Error("empty clip")
	}

	if _, err := a.OpenSound(ctx, "missing"); !errors.Is(err, diorama.ErrAssetNotFound) {
		t.Errorf("missing sound err = %v", err)
	}
}

func TestAssetsNoSoundsDir(t *testing.T) {
	refs, err := NewAssets(t.TempDir()).ListSounds(context.Background())
	if err != nil || len(refs) != 0 {
		t.Errorf("ListSounds = %v, %v", refs, err)
	}
}
