package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guidoenr/pulsefield/internal/palette"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulsefield.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Accent != palette.DefaultAccent || cfg.Sensitivity != 5 {
		t.Fatalf("accent=%q sensitivity=%g", cfg.Accent, cfg.Sensitivity)
	}
	if cfg.Field.Count != 120 || cfg.Field.Ceiling != 120 || cfg.Field.BurstSize != 10 {
		t.Fatalf("field=%+v", cfg.Field)
	}
	if cfg.Thresholds.BeatBass != 140 || cfg.Thresholds.TransientCooldownMs != 400 {
		t.Fatalf("thresholds=%+v", cfg.Thresholds)
	}
	if cfg.FrameInterval() != time.Second/60 {
		t.Fatalf("frame interval=%s", cfg.FrameInterval())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
accent: "#ff2bd6"
audio:
  source: synth
  window_size: 1024
thresholds:
  beat_bass: 150
field:
  ceiling: 200
web:
  enabled: true
  addr: ":9000"
  broadcast_interval: 1s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Accent != "#ff2bd6" || cfg.Audio.Source != SourceSynth || cfg.Audio.WindowSize != 1024 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Thresholds.BeatBass != 150 || cfg.Thresholds.BeatOverall != 120 {
		t.Fatalf("partial thresholds should keep defaults: %+v", cfg.Thresholds)
	}
	if cfg.Field.Ceiling != 200 || cfg.Field.Count != 120 {
		t.Fatalf("field=%+v", cfg.Field)
	}
	if !cfg.Web.Enabled || cfg.Web.BroadcastInterval != time.Second {
		t.Fatalf("web=%+v", cfg.Web)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil || cfg != nil {
			t.Fatalf("cfg=%v err=%v", cfg, err)
		}
	})
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeTempConfig(t, ":\n:bad"))
		if err == nil || !strings.Contains(err.Error(), "parse config file") {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("invalid accent", func(t *testing.T) {
		_, err := Load(writeTempConfig(t, "accent: not-a-colour\n"))
		if !errors.Is(err, palette.ErrInvalidColor) {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"sensitivity":    func(c *Config) { c.Sensitivity = -1 },
		"source":         func(c *Config) { c.Audio.Source = "radio" },
		"file missing":   func(c *Config) { c.Audio.Source = SourceFile },
		"window":         func(c *Config) { c.Audio.WindowSize = 1000 },
		"smoothing":      func(c *Config) { c.Audio.Smoothing = 1 },
		"interval":       func(c *Config) { c.Thresholds.MinIntervalMs = 3000 },
		"history":        func(c *Config) { c.Thresholds.IntervalHistory = 0 },
		"band":           func(c *Config) { c.Thresholds.TransientBandStart = 1 },
		"count":          func(c *Config) { c.Field.Count = 500 },
		"burst":          func(c *Config) { c.Field.BurstSize = 0 },
		"backend":        func(c *Config) { c.Render.Backend = "opengl" },
		"fps":            func(c *Config) { c.Render.FPS = 0 },
		"web addr":       func(c *Config) { c.Web.Enabled = true; c.Web.Addr = "localhost" },
		"cell scale":     func(c *Config) { c.Render.CellScale = 0 },
		"repel radius":   func(c *Config) { c.Field.RepelRadius = -1 },
		"debounce":       func(c *Config) { c.Thresholds.BeatDebounceMs = -1 },
		"cooldown":       func(c *Config) { c.Thresholds.TransientCooldownMs = -5 },
		"ceiling":        func(c *Config) { c.Field.Ceiling = 0 },
		"link distance":  func(c *Config) { c.Render.LinkDistance = -1 },
		"render size":    func(c *Config) { c.Render.Width = 0 },
		"web interval":   func(c *Config) { c.Web.Enabled = true; c.Web.BroadcastInterval = 0 },
		"invalid accent": func(c *Config) { c.Accent = "#xyz" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg.Audio.Source = SourceFile
	cfg.Audio.File = "song.mp3"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("file source with path: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Render.FPS = 0
	cfg.Field.BurstSize = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "render.fps") || !strings.Contains(msg, "field.burst_size") {
		t.Fatalf("joined error missing parts: %q", msg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PULSEFIELD_DEBUG", "true")
	t.Setenv("PULSEFIELD_WEB_ADDR", "0.0.0.0:7000")
	t.Setenv("PULSEFIELD_ACCENT", "#ffb000")
	t.Setenv("PULSEFIELD_SENSITIVITY", "8.5")

	cfg, err := Load(writeTempConfig(t, "accent: \"#ff2bd6\"\nsensitivity: 2\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Debug || cfg.Accent != "#ffb000" || cfg.Sensitivity != 8.5 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if !cfg.Web.Enabled || cfg.Web.Addr != "0.0.0.0:7000" {
		t.Fatalf("web=%+v", cfg.Web)
	}
}

func TestEnvOverrideRejectsGarbage(t *testing.T) {
	t.Setenv("PULSEFIELD_SENSITIVITY", "loud")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "PULSEFIELD_SENSITIVITY") {
		t.Fatalf("err=%v", err)
	}
}
