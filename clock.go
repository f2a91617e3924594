package diorama

import "math"

// PlayState is the clock's transport state.
type PlayState uint8

const (
	Paused PlayState = iota
	Playing
)

func (s PlayState) String() string {
	if s == Playing {
		return "playing"
	}
	return "paused"
}

// Clock is the single source of scene time. It is owned by the editor and
// passed to whatever needs t; there is no package-level time.
type Clock struct {
	t         float64
	duration  float64
	state     PlayState
	loop      bool
	scrubbing bool
	// epoch counts discontinuities (seek, loop wrap) so schedulers can tell
	// a jump from normal playback.
	epoch uint64
	// wraps counts loop wraps only.
	wraps uint64
}

// NewClock returns a paused clock at t=0. A non-positive duration falls back
// to DefaultDuration.
func NewClock(duration float64, loop bool) *Clock {
	c := &Clock{loop: loop}
	c.SetDuration(duration)
	return c
}

// Time returns the current scene time in seconds.
func (c *Clock) Time() float64 { return c.t }

// Duration returns the scene length.
func (c *Clock) Duration() float64 { return c.duration }

// State returns the transport state.
func (c *Clock) State() PlayState { return c.state }

// Playing reports whether the clock is advancing on Tick.
func (c *Clock) Playing() bool { return c.state == Playing }

// Loop reports whether reaching the end wraps to 0.
func (c *Clock) Loop() bool { return c.loop }

// Scrubbing reports whether a scrub gesture is in progress.
func (c *Clock) Scrubbing() bool { return c.scrubbing }

// Epoch returns the discontinuity counter.
func (c *Clock) Epoch() uint64 { return c.epoch }

// Wraps returns how many times playback has looped.
func (c *Clock) Wraps() uint64 { return c.wraps }

// SetLoop toggles looping.
func (c *Clock) SetLoop(loop bool) { c.loop = loop }

// SetDuration changes the scene length, clamping t into the new range.
func (c *Clock) SetDuration(d float64) {
	if !isFinite(d) || d <= 0 {
		d = DefaultDuration
	}
	c.duration = d
	if c.t > d {
		c.t = d
		c.epoch++
	}
}

// Play starts playback. A non-looping clock parked at the end restarts
// from 0. Play also ends any scrub.
func (c *Clock) Play() {
	c.scrubbing = false
	if !c.loop && c.t >= c.duration {
		c.t = 0
		c.epoch++
	}
	c.state = Playing
}

// Pause stops playback.
func (c *Clock) Pause() { c.state = Paused }

// Toggle flips between playing and paused.
func (c *Clock) Toggle() {
	if c.state == Playing {
		c.Pause()
		return
	}
	c.Play()
}

// Seek jumps to t, clamped to [0, duration]. Seeking is allowed in any
// state and never changes the play state.
func (c *Clock) Seek(t float64) {
	if !isFinite(t) {
		return
	}
	t = clamp(t, 0, c.duration)
	if t == c.t {
		return
	}
	c.t = t
	c.epoch++
}

// BeginScrub starts a scrub gesture. A playing clock pauses and stays
// paused after EndScrub; only an explicit Play resumes it.
func (c *Clock) BeginScrub() {
	c.scrubbing = true
	c.state = Paused
}

// EndScrub finishes a scrub gesture.
func (c *Clock) EndScrub() { c.scrubbing = false }

// Tick advances a playing clock by dt wall seconds and reports whether
// time moved.
func (c *Clock) Tick(dt float64) bool {
	if c.state != Playing || c.scrubbing || !isFinite(dt) || dt <= 0 {
		return false
	}
	c.t += dt
	if c.t >= c.duration {
		if c.loop {
			c.t = math.Mod(c.t, c.duration)
			c.epoch++
			c.wraps++
		} else {
			c.t = c.duration
			c.state = Paused
		}
	}
	return true
}
