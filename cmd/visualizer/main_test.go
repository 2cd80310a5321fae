package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/guidoenr/pulsefield/internal/config"
)

func loadWithArgs(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	opts := &options{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return loadConfig(cmd, opts)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulsefield.yaml")
	if err := os.WriteFile(path, []byte("accent: \"#ff2bd6\"\nsensitivity: 3\nrender:\n  fps: 30\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadWithArgs(t, "--config", path, "--no-audio", "--fps", "45", "--web-addr", "127.0.0.1:9999")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Accent != "#ff2bd6" || cfg.Sensitivity != 3 {
		t.Fatalf("file values lost: accent=%q sensitivity=%g", cfg.Accent, cfg.Sensitivity)
	}
	if cfg.Render.FPS != 45 || cfg.Audio.Source != config.SourceSynth {
		t.Fatalf("flags not applied: fps=%d source=%q", cfg.Render.FPS, cfg.Audio.Source)
	}
	if !cfg.Web.Enabled || cfg.Web.Addr != "127.0.0.1:9999" {
		t.Fatalf("web=%+v", cfg.Web)
	}
}

func TestFileFlag(t *testing.T) {
	cfg, err := loadWithArgs(t, "--file", "song.mp3", "--no-playback", "--loop")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Audio.Source != config.SourceFile || cfg.Audio.File != "song.mp3" {
		t.Fatalf("audio=%+v", cfg.Audio)
	}
	if cfg.Audio.Playback || !cfg.Audio.Loop {
		t.Fatalf("audio=%+v", cfg.Audio)
	}
}

func TestUnsetFlagsKeepDefaults(t *testing.T) {
	cfg, err := loadWithArgs(t)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := config.Default()
	if cfg.Render.FPS != want.Render.FPS || cfg.Sensitivity != want.Sensitivity || cfg.Audio.Source != want.Audio.Source {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestInvalidFlagValues(t *testing.T) {
	tests := map[string][]string{
		"accent":      {"--accent", "purple"},
		"sensitivity": {"--sensitivity=-1"},
		"backend":     {"--backend", "opengl"},
		"fps":         {"--fps", "0"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadWithArgs(t, args...)
			if err == nil || !strings.Contains(err.Error(), "invalid flags") {
				t.Fatalf("err=%v", err)
			}
		})
	}
}
