// Package config loads pulsefield settings from YAML, applies environment
// overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guidoenr/pulsefield/internal/analyzer"
	"github.com/guidoenr/pulsefield/internal/palette"
	"github.com/guidoenr/pulsefield/internal/particles"
	"github.com/guidoenr/pulsefield/internal/render"
	"github.com/guidoenr/pulsefield/internal/spectrum"
)

// DefaultPath is looked up in the working directory when no path is given.
const DefaultPath = "pulsefield.yaml"

// Audio source kinds.
const (
	SourceMic   = "mic"
	SourceFile  = "file"
	SourceSynth = "synth"
)

// Render backends.
const (
	BackendTerminal = "terminal"
	BackendSDL      = "sdl"
)

// Config is the complete application configuration.
type Config struct {
	Debug       bool                `yaml:"debug"`
	Accent      string              `yaml:"accent"`
	Sensitivity float64             `yaml:"sensitivity"`
	ProfilePath string              `yaml:"profile"`
	Audio       AudioConfig         `yaml:"audio"`
	Thresholds  analyzer.Thresholds `yaml:"thresholds"`
	Field       FieldConfig         `yaml:"field"`
	Render      RenderConfig        `yaml:"render"`
	Web         WebConfig           `yaml:"web"`
}

// AudioConfig selects and tunes the spectrum source.
type AudioConfig struct {
	Source     string  `yaml:"source"`      // mic, file or synth
	Device     string  `yaml:"device"`      // substring of the capture device name
	File       string  `yaml:"file"`        // WAV or MP3 path for the file source
	Playback   bool    `yaml:"playback"`    // play the file through the default output
	Loop       bool    `yaml:"loop"`        // restart the file when it ends
	WindowSize int     `yaml:"window_size"` // analysis window, power of two
	Smoothing  float64 `yaml:"smoothing"`   // spectral time smoothing in [0,1)
}

// FieldConfig sizes the particle population.
type FieldConfig struct {
	Count       int     `yaml:"count"`
	Ceiling     int     `yaml:"ceiling"`
	BurstSize   int     `yaml:"burst_size"`
	RepelRadius float64 `yaml:"repel_radius"`
}

// RenderConfig controls the output surface.
type RenderConfig struct {
	Backend      string  `yaml:"backend"`
	Width        int     `yaml:"width"`  // sdl window width
	Height       int     `yaml:"height"` // sdl window height
	FPS          int     `yaml:"fps"`
	LinkDistance float64 `yaml:"link_distance"`
	CellScale    int     `yaml:"cell_scale"` // canvas pixels per terminal cell
}

// WebConfig controls the HTTP control plane.
type WebConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Addr              string        `yaml:"addr"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	window := spectrum.DefaultAnalyserConfig()
	return Config{
		Accent:      palette.DefaultAccent,
		Sensitivity: particles.DefaultSensitivity,
		Audio: AudioConfig{
			Source:     SourceMic,
			Playback:   true,
			WindowSize: window.WindowSize,
			Smoothing:  window.Smoothing,
		},
		Thresholds: analyzer.DefaultThresholds(),
		Field: FieldConfig{
			Count:       particles.DefaultCount,
			Ceiling:     particles.DefaultCeiling,
			BurstSize:   particles.DefaultBurstSize,
			RepelRadius: particles.DefaultRepelRadius,
		},
		Render: RenderConfig{
			Backend:      BackendTerminal,
			Width:        960,
			Height:       540,
			FPS:          60,
			LinkDistance: render.DefaultLinkDistance,
			CellScale:    render.DefaultCellScale,
		},
		Web: WebConfig{
			Addr:              "127.0.0.1:8090",
			BroadcastInterval: 250 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults. An empty path tries DefaultPath and
// falls back to defaults when it does not exist. Environment overrides are
// applied last, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, err := palette.ParseAccent(c.Accent); err != nil {
		errs = append(errs, fmt.Errorf("accent: %w", err))
	}
	check(!math.IsNaN(c.Sensitivity) && !math.IsInf(c.Sensitivity, 0) && c.Sensitivity >= 0,
		"sensitivity must be a finite number >= 0, got %g", c.Sensitivity)

	switch c.Audio.Source {
	case SourceMic, SourceSynth:
	case SourceFile:
		check(c.Audio.File != "", "audio.file is required for the file source")
	default:
		errs = append(errs, fmt.Errorf("audio.source %q is not one of mic, file, synth", c.Audio.Source))
	}
	w := c.Audio.WindowSize
	check(w >= 32 && w&(w-1) == 0, "audio.window_size must be a power of two >= 32, got %d", w)
	check(c.Audio.Smoothing >= 0 && c.Audio.Smoothing < 1, "audio.smoothing must be in [0,1), got %g", c.Audio.Smoothing)

	th := c.Thresholds
	check(th.BeatDebounceMs >= 0, "thresholds.beat_debounce_ms must not be negative")
	check(th.MinIntervalMs > 0 && th.MinIntervalMs < th.MaxIntervalMs,
		"thresholds interval window [%g,%g] is empty", th.MinIntervalMs, th.MaxIntervalMs)
	check(th.IntervalHistory > 0, "thresholds.interval_history must be positive")
	check(th.TransientBandStart > 0 && th.TransientBandStart < 1,
		"thresholds.transient_band_start must be in (0,1), got %g", th.TransientBandStart)
	check(th.TransientCooldownMs >= 0, "thresholds.transient_cooldown_ms must not be negative")

	check(c.Field.Ceiling > 0, "field.ceiling must be positive")
	check(c.Field.Count >= 0 && c.Field.Count <= c.Field.Ceiling,
		"field.count %d must be within [0, ceiling %d]", c.Field.Count, c.Field.Ceiling)
	check(c.Field.BurstSize > 0, "field.burst_size must be positive")
	check(c.Field.RepelRadius > 0, "field.repel_radius must be positive")

	switch c.Render.Backend {
	case BackendTerminal, BackendSDL:
	default:
		errs = append(errs, fmt.Errorf("render.backend %q is not one of terminal, sdl", c.Render.Backend))
	}
	check(c.Render.FPS > 0 && c.Render.FPS <= 240, "render.fps must be in [1,240], got %d", c.Render.FPS)
	check(c.Render.Width > 0 && c.Render.Height > 0, "render size %dx%d must be positive", c.Render.Width, c.Render.Height)
	check(c.Render.LinkDistance >= 0, "render.link_distance must not be negative")
	check(c.Render.CellScale > 0, "render.cell_scale must be positive")

	if c.Web.Enabled {
		check(strings.Contains(c.Web.Addr, ":"), "web.addr %q must be host:port", c.Web.Addr)
		check(c.Web.BroadcastInterval > 0, "web.broadcast_interval must be positive")
	}
	return errors.Join(errs...)
}

// FrameInterval is the ticker period for the configured frame rate.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Render.FPS)
}

// applyEnvOverrides reads PULSEFIELD_* variables. A malformed value is an
// error rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	if val, ok := os.LookupEnv("PULSEFIELD_DEBUG"); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("PULSEFIELD_DEBUG: %w", err)
		}
		c.Debug = b
	}
	if val, ok := os.LookupEnv("PULSEFIELD_WEB_ADDR"); ok && val != "" {
		c.Web.Addr = val
		c.Web.Enabled = true
	}
	if val, ok := os.LookupEnv("PULSEFIELD_ACCENT"); ok && val != "" {
		c.Accent = val
	}
	if val, ok := os.LookupEnv("PULSEFIELD_SENSITIVITY"); ok && val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("PULSEFIELD_SENSITIVITY: %w", err)
		}
		c.Sensitivity = f
	}
	return nil
}
