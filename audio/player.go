// Package audio plays sound behaviors with gopxl/beep. Clips are decoded
// from WAV, shaped by a fade envelope and volume, and mixed into a single
// stream that either feeds the speaker or is pulled by the caller.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
	"golang.org/x/sync/errgroup"

	"github.com/phanxgames/diorama"
)

var logger = log.New(os.Stderr, "[diorama] audio: ", log.LstdFlags)

// SetLogOutput redirects the package logger. Tests pass io.Discard.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

func logf(format string, args ...any) {
	logger.Printf(format, args...)
}

// resampleQuality is passed to beep.Resample when a clip's rate differs
// from the output rate.
const resampleQuality = 4

// Opener opens a named clip. store.Assets implements it.
type Opener interface {
	OpenSound(ctx context.Context, name string) (io.ReadCloser, error)
}

// Player implements diorama.SoundPlayer. It is safe for concurrent use; the
// speaker goroutine pulls from it through Stream.
//
// Clips are decoded once into memory. The first cue of a clip decodes it
// in the background and starts the voice when ready, late by the decode
// time, so Play never blocks the frame loop.
type Player struct {
	open    Opener
	rate    beep.SampleRate
	speaker bool
	now     func() time.Time

	mu     sync.Mutex
	mixer  *beep.Mixer
	voices map[string][]*voice
	clips  map[string]*clip

	// gens bumps on Stop and epoch on StopAll so a voice still waiting on
	// its decode is dropped.
	gens    map[string]uint64
	epoch   uint64
	loading sync.WaitGroup
}

// clip is a decoded sound file. ready closes once buf or err is set.
type clip struct {
	buf   *beep.Buffer
	err   error
	ready chan struct{}
}

var _ diorama.SoundPlayer = (*Player)(nil)

// NewPlayer returns a player that mixes at cfg.SampleRate and, when
// cfg.Enabled is set, starts the speaker.
func NewPlayer(open Opener, cfg diorama.AudioConfig) (*Player, error) {
	p := NewHeadless(open, cfg.SampleRate)
	if !cfg.Enabled {
		return p, nil
	}
	if err := speaker.Init(p.rate, p.rate.N(100*time.Millisecond)); err != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}
	speaker.Play(p)
	p.speaker = true
	return p, nil
}

// NewHeadless returns a player that never touches the audio device. The
// mix is read with Stream.
func NewHeadless(open Opener, sampleRate int) *Player {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Player{
		open:   open,
		rate:   beep.SampleRate(sampleRate),
		now:    time.Now,
		mixer:  &beep.Mixer{},
		voices: make(map[string][]*voice),
		clips:  make(map[string]*clip),
		gens:   make(map[string]uint64),
	}
}

// SampleRate returns the output rate.
func (p *Player) SampleRate() beep.SampleRate { return p.rate }

// Preload decodes names concurrently and blocks until all are cached.
// The returned error joins the per-clip failures.
func (p *Player) Preload(ctx context.Context, names []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	errs := make([]error, len(names))
	for i, name := range names {
		p.mu.Lock()
		c := p.clipLocked(name)
		p.mu.Unlock()
		g.Go(func() error {
			select {
			case <-c.ready:
				errs[i] = c.err
			case <-gctx.Done():
				errs[i] = gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Wait blocks until every pending decode has settled and its voice, if
// still wanted, has started.
func (p *Player) Wait() { p.loading.Wait() }

// clipLocked returns the cache entry for name, starting its decode on
// first use. p.mu must be held.
func (p *Player) clipLocked(name string) *clip {
	if c, ok := p.clips[name]; ok {
		return c
	}
	c := &clip{ready: make(chan struct{})}
	p.clips[name] = c
	p.loading.Add(1)
	go func() {
		defer p.loading.Done()
		c.buf, c.err = p.decode(name)
		close(c.ready)
	}()
	return c
}

func (p *Player) decode(name string) (*beep.Buffer, error) {
	rc, err := p.open.OpenSound(context.Background(), name)
	if err != nil {
		return nil, err
	}
	src, format, err := wav.Decode(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to decode %q: %w", name, err)
	}
	defer src.Close()
	buf := beep.NewBuffer(format)
	buf.Append(src)
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", name, err)
	}
	return buf, nil
}

// Play starts a clip for cue. A cue whose offset is past the end of a
// non-looping clip plays nothing. A clip that already failed to load
// returns its error; a first load reports failures to the log.
func (p *Player) Play(cue diorama.SoundCue) error {
	snd := cue.Sound
	if snd == nil || snd.SoundFile == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.clipLocked(snd.SoundFile)
	select {
	case <-c.ready:
		if c.err != nil {
			return c.err
		}
		p.startLocked(cue, c.buf, cue.Offset)
		return nil
	default:
	}

	gen, epoch := p.gens[cue.Layer], p.epoch
	issued := p.now()
	p.loading.Add(1)
	go func() {
		defer p.loading.Done()
		<-c.ready
		if c.err != nil {
			logf("clip %q: %v", snd.SoundFile, c.err)
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.gens[cue.Layer] != gen || p.epoch != epoch {
			return
		}
		p.startLocked(cue, c.buf, cue.Offset+p.now().Sub(issued).Seconds())
	}()
	return nil
}

// startLocked adds a voice reading buf from offset seconds. p.mu must be
// held.
func (p *Player) startLocked(cue diorama.SoundCue, buf *beep.Buffer, offset float64) {
	snd := cue.Sound
	format := buf.Format()
	length := buf.Len()
	start := format.SampleRate.N(seconds(offset))
	if snd.Loop && length > 0 {
		start %= length
	} else if start >= length {
		return
	}
	src := buf.Streamer(0, length)
	if start > 0 {
		if err := src.Seek(start); err != nil {
			logf("seek %q: %v", snd.SoundFile, err)
			return
		}
	}

	var s beep.Streamer = src
	total := length
	if snd.Loop {
		s = beep.Loop(-1, src)
		total = -1
	}
	s = newEnvelope(s, start,
		format.SampleRate.N(seconds(snd.FadeIn)),
		format.SampleRate.N(seconds(snd.FadeOut)),
		total)
	if format.SampleRate != p.rate {
		s = beep.Resample(resampleQuality, format.SampleRate, p.rate, s)
	}
	s = newVolume(s, snd.Volume)

	v := &voice{ctrl: &beep.Ctrl{Streamer: s}}
	live := p.voices[cue.Layer][:0]
	for _, old := range p.voices[cue.Layer] {
		if !old.done {
			live = append(live, old)
		}
	}
	p.voices[cue.Layer] = append(live, v)
	p.mixer.Add(v)
}

// Stop silences every clip started for layer.
func (p *Player) Stop(layer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gens[layer]++
	for _, v := range p.voices[layer] {
		v.stop()
	}
	delete(p.voices, layer)
}

// StopAll silences everything.
func (p *Player) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	for layer, vs := range p.voices {
		for _, v := range vs {
			v.stop()
		}
		delete(p.voices, layer)
	}
}

// Playing returns the number of clips still sounding for layer.
func (p *Player) Playing(layer string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.voices[layer] {
		if !v.done {
			n++
		}
	}
	return n
}

// Stream implements beep.Streamer. It always fills samples, with silence
// when nothing is playing.
func (p *Player) Stream(samples [][2]float64) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ := p.mixer.Stream(samples)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (p *Player) Err() error { return nil }

// Close stops playback and releases the speaker.
func (p *Player) Close() {
	p.StopAll()
	if p.speaker {
		speaker.Clear()
		p.speaker = false
	}
}

// voice is one playing clip.
type voice struct {
	ctrl *beep.Ctrl
	done bool
}

func (v *voice) Stream(samples [][2]float64) (int, bool) {
	if v.done {
		return 0, false
	}
	n, ok := v.ctrl.Stream(samples)
	if !ok {
		v.done = true
	}
	return n, ok
}

func (v *voice) Err() error { return v.ctrl.Err() }

func (v *voice) stop() {
	v.ctrl.Streamer = nil
	v.done = true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
