package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/guidoenr/pulsefield/internal/app"
	"github.com/guidoenr/pulsefield/internal/audio"
	"github.com/guidoenr/pulsefield/internal/config"
	"github.com/guidoenr/pulsefield/internal/palette"
	"github.com/guidoenr/pulsefield/internal/render"
	"github.com/guidoenr/pulsefield/internal/spectrum"
	"github.com/guidoenr/pulsefield/internal/web"
)

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.New(os.Stdout, "[pulsefield] ", log.LstdFlags)
	if !cfg.Debug {
		logger.SetOutput(os.Stderr)
		logger.SetFlags(0)
	}

	presenter, err := newPresenter(cfg)
	if err != nil {
		return err
	}

	accent, err := palette.ParseAccent(cfg.Accent)
	if err != nil {
		_ = presenter.Close()
		return err
	}

	a, err := app.New(app.Config{
		Thresholds:    cfg.Thresholds,
		Accent:        accent,
		Sensitivity:   cfg.Sensitivity,
		Count:         cfg.Field.Count,
		Ceiling:       cfg.Field.Ceiling,
		BurstSize:     cfg.Field.BurstSize,
		RepelRadius:   cfg.Field.RepelRadius,
		LinkDistance:  cfg.Render.LinkDistance,
		FrameInterval: cfg.FrameInterval(),
		ProfilePath:   cfg.ProfilePath,
		Keyboard:      cfg.Render.Backend == config.BackendTerminal,
		Debug:         cfg.Debug,
		Log:           logger,
	}, presenter)
	if err != nil {
		_ = presenter.Close()
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()
	// app.Config treats 0 as unset; a configured 0 is still honoured
	if err := a.SetSensitivity(cfg.Sensitivity); err != nil {
		return err
	}

	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	a.Attach(src)

	if cfg.Web.Enabled {
		server := web.NewServer(a, logger, cfg.Web.BroadcastInterval)
		go func() {
			if err := server.Start(ctx, cfg.Web.Addr); err != nil {
				logger.Printf("[web] %v", err)
			}
		}()
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}

func newPresenter(cfg *config.Config) (render.Presenter, error) {
	switch cfg.Render.Backend {
	case config.BackendSDL:
		if !render.SupportsSDL() {
			return nil, errors.New("sdl backend not compiled in; rebuild with -tags sdl")
		}
		return render.NewWindow("pulsefield", cfg.Render.Width, cfg.Render.Height)
	default:
		return render.NewTerminal(os.Stdout, int(os.Stdout.Fd()), cfg.Render.CellScale), nil
	}
}

func newSource(cfg *config.Config) (spectrum.Source, error) {
	analyser := spectrum.DefaultAnalyserConfig()
	analyser.WindowSize = cfg.Audio.WindowSize
	analyser.Smoothing = cfg.Audio.Smoothing

	switch cfg.Audio.Source {
	case config.SourceFile:
		src, err := audio.OpenFile(audio.FileConfig{
			Path:     cfg.Audio.File,
			Playback: cfg.Audio.Playback,
			Loop:     cfg.Audio.Loop,
			Analyser: analyser,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceSynth:
		src, err := audio.NewSynth(audio.SynthConfig{Analyser: analyser})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		src, err := audio.NewCapture(audio.Config{
			DeviceName: cfg.Audio.Device,
			Analyser:   analyser,
		})
		if err != nil {
			return nil, fmt.Errorf("start capture (try --no-audio or --file): %w", err)
		}
		return src, nil
	}
}
