package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/phanxgames/diorama"
)

const testRate = 8000

type memClip struct {
	*bytes.Reader
}

func (memClip) Close() error { return nil }

// memOpener serves WAV clips from memory.
type memOpener map[string][]byte

func (m memOpener) OpenSound(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := m[name]
	if !ok {
		return nil, diorama.ErrAssetNotFound
	}
	return memClip{bytes.NewReader(data)}, nil
}

// seekBuffer is an in-memory io.WriteSeeker for wav.Encode.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(off int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = int(off)
	case io.SeekCurrent:
		b.pos += int(off)
	case io.SeekEnd:
		b.pos = len(b.buf) + int(off)
	}
	return int64(b.pos), nil
}

// constantWAV encodes n samples of value v at rate.
func constantWAV(t *testing.T, rate, n int, v float64) []byte {
	t.Helper()
	src := beep.StreamerFunc(func(s [][2]float64) (int, bool) {
		for i := range s {
			s[i] = [2]float64{v, v}
		}
		return len(s), true
	})
	var out seekBuffer
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 2, Precision: 2}
	if err := wav.Encode(&out, beep.Take(n, src), format); err != nil {
		t.Fatal(err)
	}
	return out.buf
}

// headless returns a silent player with a frozen clock, so a voice that
// waited on its decode starts exactly at its cue offset.
func headless(t *testing.T, open Opener, rate int) *Player {
	t.Helper()
	SetLogOutput(io.Discard)
	t.Cleanup(func() { SetLogOutput(os.Stderr) })
	p := NewHeadless(open, rate)
	frozen := time.Unix(0, 0)
	p.now = func() time.Time { return frozen }
	return p
}

// pull waits for pending decodes, then reads n mixed samples.
func pull(p *Player, n int) [][2]float64 {
	p.Wait()
	s := make([][2]float64, n)
	p.Stream(s)
	return s
}

func cue(layer string, snd *diorama.Sound) diorama.SoundCue {
	return diorama.SoundCue{Layer: layer, Sound: snd}
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestPlayVolume(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		want   float64
	}{
		{"full", 1, 0.5},
		{"half", 0.5, 0.25},
		{"muted", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := headless(t, memOpener{"tone": constantWAV(t, testRate, 1000, 0.5)}, testRate)
			if err := p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: tt.volume})); err != nil {
				t.Fatal(err)
			}
			s := pull(p, 100)
			if !near(s[50][0], tt.want) {
				t.Errorf("sample = %v, want %v", s[50][0], tt.want)
			}
		})
	}
}

func TestPlayEndsAndSilences(t *testing.T) {
	p := headless(t, memOpener{"tone": constantWAV(t, testRate, 100, 0.5)}, testRate)
	p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1}))

	s := pull(p, 200)
	if !near(s[10][0], 0.5) || s[150][0] != 0 {
		t.Errorf("samples 10, 150 = %v, %v", s[10][0], s[150][0])
	}
	pull(p, 10)
	if n := p.Playing("a"); n != 0 {
		t.Errorf("Playing = %d after clip end", n)
	}
}

func TestPlayLoop(t *testing.T) {
	p := headless(t, memOpener{"tone": constantWAV(t, testRate, 100, 0.5)}, testRate)
	p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1, Loop: true}))

	s := pull(p, 350)
	if !near(s[340][0], 0.5) {
		t.Errorf("looped sample = %v, want 0.5", s[340][0])
	}
	if p.Playing("a") != 1 {
		t.Error("loop stopped")
	}
}

func TestFades(t *testing.T) {
	// 1000 samples at 8kHz is 0.125s; fades of 0.025s are 200 samples.
	p := headless(t, memOpener{"tone": constantWAV(t, testRate, 1000, 0.5)}, testRate)
	p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1, FadeIn: 0.025, FadeOut: 0.025}))

	s := pull(p, 1000)
	tests := []struct {
		i    int
		want float64
	}{
		{0, 0},
		{100, 0.25},
		{500, 0.5},
		{900, 0.25},
	}
	for _, tt := range tests {
		if !near(s[tt.i][0], tt.want) {
			t.Errorf("sample %d = %v, want %v", tt.i, s[tt.i][0], tt.want)
		}
	}
}

func TestOffset(t *testing.T) {
	p := headless(t, memOpener{"tone": constantWAV(t, testRate, 800, 0.5)}, testRate)

	// 0.05s into a 0.1s clip leaves 400 samples.
	p.Play(diorama.SoundCue{Layer: "a", Offset: 0.05, Sound: &diorama.Sound{SoundFile: "tone", Volume: 1}})
	s := pull(p, 500)
	if !near(s[390][0], 0.5) || s[410][0] != 0 {
		t.Errorf("samples 390, 410 = %v, %v", s[390][0], s[410][0])
	}

	// Past the end plays nothing.
	if err := p.Play(diorama.SoundCue{Layer: "b", Offset: 5, Sound: &diorama.Sound{SoundFile: "tone", Volume: 1}}); err != nil {
		t.Fatal(err)
	}
	if p.Playing("b") != 0 {
		t.Error("cue past the end started a voice")
	}
}

func TestStop(t *testing.T) {
	tone := constantWAV(t, testRate, 4000, 0.5)
	p := headless(t, memOpener{"tone": tone}, testRate)
	p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1}))
	p.Play(cue("b", &diorama.Sound{SoundFile: "tone", Volume: 1}))

	if s := pull(p, 10); !near(s[5][0], 1.0) {
		t.Fatalf("mixed sample = %v, want 1.0", s[5][0])
	}

	p.Stop("a")
	if s := pull(p, 10); !near(s[5][0], 0.5) {
		t.Errorf("after Stop(a) = %v, want 0.5", s[5][0])
	}

	p.StopAll()
	if s := pull(p, 10); s[5][0] != 0 {
		t.Errorf("after StopAll = %v, want 0", s[5][0])
	}
}

func TestResample(t *testing.T) {
	p := headless(t, memOpener{"tone": constantWAV(t, testRate, 400, 0.5)}, 2*testRate)
	p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1}))

	// 400 source samples last 800 output samples.
	s := pull(p, 1000)
	if !near(s[700][0], 0.5) || s[900][0] != 0 {
		t.Errorf("samples 700, 900 = %v, %v", s[700][0], s[900][0])
	}
}

func TestPlayErrors(t *testing.T) {
	p := headless(t, memOpener{"junk": []byte("not a wav")}, testRate)
	var logged bytes.Buffer
	SetLogOutput(&logged)

	// The first cue loads in the background; its failure is logged and
	// later cues of the same clip return it.
	tests := []struct {
		file string
		want error
	}{
		{"missing", diorama.ErrAssetNotFound},
		{"junk", nil},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			snd := &diorama.Sound{SoundFile: tt.file, Volume: 1}
			if err := p.Play(cue("a", snd)); err != nil {
				t.Fatalf("first play err = %v", err)
			}
			p.Wait()
			err := p.Play(cue("a", snd))
			if err == nil {
				t.Fatal("expected an error once the load failed")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !strings.Contains(logged.String(), tt.file) {
				t.Errorf("log %q does not name %q", logged.String(), tt.file)
			}
		})
	}
	if err := p.Play(cue("a", &diorama.Sound{Volume: 1})); err != nil {
		t.Errorf("empty sound file err = %v", err)
	}
}

// gateOpener counts opens and holds each one until gate is closed.
type gateOpener struct {
	memOpener
	gate  chan struct{}
	mu    sync.Mutex
	opens int
}

func (g *gateOpener) OpenSound(ctx context.Context, name string) (io.ReadCloser, error) {
	g.mu.Lock()
	g.opens++
	g.mu.Unlock()
	<-g.gate
	return g.memOpener.OpenSound(ctx, name)
}

func TestPlayDoesNotBlock(t *testing.T) {
	o := &gateOpener{memOpener: memOpener{"tone": constantWAV(t, testRate, 4000, 0.5)}, gate: make(chan struct{})}
	p := headless(t, o, testRate)

	done := make(chan error, 1)
	go func() { done <- p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1})) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play blocked on the decode")
	}
	if p.Playing("a") != 0 {
		t.Error("voice started before the clip decoded")
	}
	p.Play(cue("b", &diorama.Sound{SoundFile: "tone", Volume: 1}))

	close(o.gate)
	s := pull(p, 10)
	if !near(s[5][0], 1.0) {
		t.Errorf("mixed sample = %v, want 1.0", s[5][0])
	}
	p.Play(cue("c", &diorama.Sound{SoundFile: "tone", Volume: 1}))
	if p.Playing("c") != 1 {
		t.Error("cached clip did not start at once")
	}
	if o.opens != 1 {
		t.Errorf("clip opened %d times, want 1", o.opens)
	}
}

func TestStopDropsPendingVoice(t *testing.T) {
	tests := []struct {
		name string
		stop func(p *Player)
	}{
		{"stop layer", func(p *Player) { p.Stop("a") }},
		{"stop all", func(p *Player) { p.StopAll() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &gateOpener{memOpener: memOpener{"tone": constantWAV(t, testRate, 4000, 0.5)}, gate: make(chan struct{})}
			p := headless(t, o, testRate)
			p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1}))
			tt.stop(p)
			close(o.gate)
			if s := pull(p, 10); s[5][0] != 0 {
				t.Errorf("sample = %v, want silence", s[5][0])
			}
			if p.Playing("a") != 0 {
				t.Error("stopped layer started after its decode")
			}
		})
	}
}

func TestLateStartKeepsSync(t *testing.T) {
	o := &gateOpener{memOpener: memOpener{"tone": constantWAV(t, testRate, 800, 0.5)}, gate: make(chan struct{})}
	p := headless(t, o, testRate)
	start := time.Unix(0, 0)
	calls := 0
	// The decode takes 0.05s of the 0.1s clip.
	p.now = func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(50 * time.Millisecond)
	}
	p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1}))
	close(o.gate)

	s := pull(p, 500)
	if !near(s[390][0], 0.5) || s[410][0] != 0 {
		t.Errorf("samples 390, 410 = %v, %v", s[390][0], s[410][0])
	}
}

func TestPreload(t *testing.T) {
	o := &gateOpener{memOpener: memOpener{"tone": constantWAV(t, testRate, 100, 0.5)}, gate: make(chan struct{})}
	close(o.gate)
	p := headless(t, o, testRate)

	err := p.Preload(context.Background(), []string{"tone", "ghost"})
	if !errors.Is(err, diorama.ErrAssetNotFound) {
		t.Errorf("preload err = %v", err)
	}
	p.Play(cue("a", &diorama.Sound{SoundFile: "tone", Volume: 1}))
	if p.Playing("a") != 1 {
		t.Error("preloaded clip did not start at once")
	}
	if o.opens != 2 {
		t.Errorf("opens = %d, want 2", o.opens)
	}
}

func TestSchedulerDrivesPlayer(t *testing.T) {
	scene := diorama.NewScene("s")
	l := diorama.NewLayer("bird")
	at := 0.5
	l.Behaviors = []diorama.Behavior{&diorama.Sound{Meta: diorama.Meta{TimeOffset: &at}, SoundFile: "tone", Volume: 1}}
	scene.Layers = append(scene.Layers, l)
	g, err := diorama.NewSceneGraph(scene)
	if err != nil {
		t.Fatal(err)
	}

	p := headless(t, memOpener{"tone": constantWAV(t, testRate, 4000, 0.5)}, testRate)
	sched := diorama.NewSoundScheduler(g, p)
	c := diorama.NewClock(scene.Duration, false)
	c.Play()
	sched.Update(c)
	c.Tick(0.6)
	sched.Update(c)
	p.Wait()

	if p.Playing("bird") != 1 {
		t.Fatal("sound did not start")
	}
	if err := g.Apply(diorama.RemoveLayer{Name: "bird"}); err != nil {
		t.Fatal(err)
	}
	if p.Playing("bird") != 0 {
		t.Error("removing the layer did not stop its sound")
	}
}
