package diorama

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Editor defaults.
const (
	DefaultDragThreshold = 5.0
	DefaultTimeSnap      = 0.1
)

// Config is the editor configuration, loaded from YAML.
type Config struct {
	Canvas CanvasConfig `yaml:"canvas"`

	// Loop wraps playback to 0 at the end of the scene instead of stopping.
	Loop bool `yaml:"loop"`

	// Debug enables frame stats and the debug overlay.
	Debug bool `yaml:"debug"`

	// DragThreshold is the pointer travel in pixels before a press becomes
	// a drag.
	DragThreshold float64 `yaml:"drag_threshold"`

	// TimeSnap is the step keyframe drags snap to, in seconds.
	TimeSnap float64 `yaml:"time_snap"`

	Timeline TimelineConfig `yaml:"timeline"`
	Store    StoreConfig    `yaml:"store"`
	Audio    AudioConfig    `yaml:"audio"`

	// ScreenshotDir is where test-script screenshots are written.
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// CanvasConfig sizes the stage.
type CanvasConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// TimelineConfig controls timeline layout and scrolling.
type TimelineConfig struct {
	// Zoom is pixels per second.
	Zoom    float64 `yaml:"zoom"`
	MinZoom float64 `yaml:"min_zoom"`
	MaxZoom float64 `yaml:"max_zoom"`

	TrackHeight float64 `yaml:"track_height"`
	RulerHeight float64 `yaml:"ruler_height"`
	// Height is the panel height in pixels, ruler included.
	Height float64 `yaml:"height"`

	// AutoScrollMargin is the distance from the top or bottom edge within
	// which a drag scrolls the lanes.
	AutoScrollMargin float64 `yaml:"auto_scroll_margin"`
	// AutoScrollSpeed is in pixels per second.
	AutoScrollSpeed float64 `yaml:"auto_scroll_speed"`
	// FollowHysteresis is how close to the right edge the playhead may get
	// before the view follows it.
	FollowHysteresis float64 `yaml:"follow_hysteresis"`

	// Copied from the top-level config by DefaultConfig and LoadConfig.
	DragThreshold float64 `yaml:"-"`
	TimeSnap      float64 `yaml:"-"`
}

// StoreConfig selects and configures the scene store.
type StoreConfig struct {
	// Driver is one of "dir", "gdata" or "sqlite".
	Driver  string `yaml:"driver"`
	Root    string `yaml:"root"`
	AppName string `yaml:"app_name"`
	DBPath  string `yaml:"db_path"`
}

// AudioConfig controls sound behavior playback.
type AudioConfig struct {
	Enabled    bool `yaml:"enabled"`
	SampleRate int  `yaml:"sample_rate"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	c := Config{
		Canvas:        CanvasConfig{Width: 960, Height: 540},
		Loop:          true,
		DragThreshold: DefaultDragThreshold,
		TimeSnap:      DefaultTimeSnap,
		Timeline: TimelineConfig{
			Zoom:             40,
			MinZoom:          5,
			MaxZoom:          100,
			TrackHeight:      28,
			RulerHeight:      20,
			Height:           180,
			AutoScrollMargin: 40,
			AutoScrollSpeed:  240,
			FollowHysteresis: 100,
		},
		Store: StoreConfig{
			Driver:  "dir",
			Root:    "scenes",
			AppName: "diorama",
			DBPath:  "diorama.db",
		},
		Audio:         AudioConfig{Enabled: true, SampleRate: 44100},
		ScreenshotDir: "screenshots",
	}
	c.Timeline.DragThreshold = c.DragThreshold
	c.Timeline.TimeSnap = c.TimeSnap
	return c
}

// LoadConfig reads a YAML file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Timeline.DragThreshold = cfg.DragThreshold
	cfg.Timeline.TimeSnap = cfg.TimeSnap
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that values are in range.
func (c *Config) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("canvas size must be positive, got %gx%g", c.Canvas.Width, c.Canvas.Height)
	}
	if c.DragThreshold < 0 {
		return fmt.Errorf("drag_threshold must be >= 0, got %g", c.DragThreshold)
	}
	if c.TimeSnap < 0 {
		return fmt.Errorf("time_snap must be >= 0, got %g", c.TimeSnap)
	}
	tl := c.Timeline
	if tl.MinZoom <= 0 || tl.MinZoom > tl.MaxZoom {
		return fmt.Errorf("timeline zoom range invalid: min(%g) max(%g)", tl.MinZoom, tl.MaxZoom)
	}
	if tl.Zoom < tl.MinZoom || tl.Zoom > tl.MaxZoom {
		return fmt.Errorf("timeline zoom %g outside [%g, %g]", tl.Zoom, tl.MinZoom, tl.MaxZoom)
	}
	if tl.TrackHeight <= 0 || tl.RulerHeight < 0 || tl.Height <= tl.RulerHeight {
		return fmt.Errorf("timeline geometry invalid: track(%g) ruler(%g) height(%g)",
			tl.TrackHeight, tl.RulerHeight, tl.Height)
	}
	switch c.Store.Driver {
	case "dir", "gdata", "sqlite":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Audio.Enabled && c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	return nil
}
