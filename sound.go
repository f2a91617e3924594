package diorama

// SoundCue asks a player to start one sound behavior.
type SoundCue struct {
	Layer string
	Index int
	Sound *Sound
	// Offset is how far into the clip playback starts, in seconds.
	Offset float64
}

// SoundPlayer plays pre-recorded clips. Implementations must not block.
type SoundPlayer interface {
	Play(cue SoundCue) error
	// Stop silences every clip started for a layer.
	Stop(layer string)
	StopAll()
}

// SoundScheduler fires sound behaviors as the clock passes their
// time_offset. Normal playback fires the window (prev, t]. A seek or a
// fresh Play stops everything and fires only cues at exactly t; a loop wrap
// stops everything and fires the tail before the wrap and [0, t] after it.
type SoundScheduler struct {
	graph  *SceneGraph
	player SoundPlayer

	started bool
	playing bool
	prevT   float64
	epoch   uint64
	wraps   uint64
}

// NewSoundScheduler binds a player to a graph. Removing a layer stops its
// sounds.
func NewSoundScheduler(g *SceneGraph, p SoundPlayer) *SoundScheduler {
	s := &SoundScheduler{graph: g, player: p}
	g.OnRemove(func(name string) { p.Stop(name) })
	return s
}

// Update runs once per frame after the clock ticks.
func (s *SoundScheduler) Update(c *Clock) {
	t := c.Time()
	defer func() {
		s.started = true
		s.playing = c.Playing()
		s.prevT = t
		s.epoch = c.Epoch()
		s.wraps = c.Wraps()
	}()

	if !c.Playing() {
		if s.playing {
			s.player.StopAll()
		}
		return
	}
	switch {
	case !s.started || !s.playing:
		s.player.StopAll()
		s.fire(t, t, true)
	case c.Wraps() != s.wraps && c.Epoch()-s.epoch == c.Wraps()-s.wraps:
		s.player.StopAll()
		s.fire(s.prevT, c.Duration(), false)
		s.fire(0, t, true)
	case c.Epoch() != s.epoch:
		s.player.StopAll()
		s.fire(t, t, true)
	case t > s.prevT:
		s.fire(s.prevT, t, false)
	}
}

// fire plays every sound starting in (from, to], or [from, to] when
// inclusive is set.
func (s *SoundScheduler) fire(from, to float64, inclusive bool) {
	for _, l := range s.graph.Layers() {
		if !s.graph.IsVisible(l.SpriteName) {
			continue
		}
		for i, b := range l.Behaviors {
			snd, ok := b.(*Sound)
			if !ok || snd.SoundFile == "" {
				continue
			}
			start, _ := snd.Start()
			lo := start > from || (inclusive && start >= from-timeEpsilon)
			if !lo || start > to+timeEpsilon {
				continue
			}
			cue := SoundCue{Layer: l.SpriteName, Index: i, Sound: CloneBehavior(snd).(*Sound), Offset: max(0, to-start)}
			if err := s.player.Play(cue); err != nil {
				logf("sound %q on %q: %v", snd.SoundFile, l.SpriteName, err)
			}
		}
	}
}

// Reset stops playback and forgets the last frame.
func (s *SoundScheduler) Reset() {
	s.player.StopAll()
	s.started = false
	s.playing = false
}
