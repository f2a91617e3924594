package audio

import (
	"math"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
)

// envelope applies a linear fade-in and fade-out to a clip. pos counts
// samples from the start of the clip, so a cue that starts partway through
// picks up the ramp where it would have been. total < 0 means the stream
// has no end and never fades out.
type envelope struct {
	streamer beep.Streamer
	pos      int
	attack   int
	release  int
	total    int
}

func newEnvelope(s beep.Streamer, start, attack, release, total int) beep.Streamer {
	if attack <= 0 && (release <= 0 || total < 0) {
		return s
	}
	return &envelope{streamer: s, pos: start, attack: attack, release: release, total: total}
}

func (e *envelope) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = e.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		vol := 1.0
		if e.attack > 0 && e.pos < e.attack {
			vol = float64(e.pos) / float64(e.attack)
		}
		if e.release > 0 && e.total >= 0 {
			if remaining := e.total - e.pos; remaining < e.release {
				vol = math.Min(vol, math.Max(float64(remaining)/float64(e.release), 0))
			}
		}
		samples[i][0] *= vol
		samples[i][1] *= vol
		e.pos++
	}
	return n, ok
}

func (e *envelope) Err() error { return e.streamer.Err() }

// newVolume scales linear volume v in [0, 1]. Log2(0) is -Inf, so zero is
// silent instead.
func newVolume(s beep.Streamer, v float64) beep.Streamer {
	if v <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	if v == 1 {
		return s
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(v)}
}
