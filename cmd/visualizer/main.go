package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guidoenr/pulsefield/internal/audio"
	"github.com/guidoenr/pulsefield/internal/config"
)

// options holds raw flag values; only flags the user actually set override
// the loaded configuration.
type options struct {
	configPath  string
	debug       bool
	device      string
	file        string
	noAudio     bool
	loop        bool
	noPlayback  bool
	backend     string
	fps         int
	width       int
	height      int
	accent      string
	sensitivity float64
	web         bool
	webAddr     string
	profile     string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(&options{}).ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsefield: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pulsefield",
		Short:         "Audio-reactive particle field for the terminal or a window",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default ./"+config.DefaultPath+" when present)")
	flags.BoolVar(&opts.debug, "debug", false, "Enable verbose logging")
	flags.StringVarP(&opts.device, "device", "d", "", "PortAudio input device name (substring match)")
	flags.StringVarP(&opts.file, "file", "f", "", "Play and visualise a WAV or MP3 file instead of the microphone")
	flags.BoolVar(&opts.noAudio, "no-audio", false, "Run with the synthetic source")
	flags.BoolVar(&opts.loop, "loop", false, "Restart the file when it ends")
	flags.BoolVar(&opts.noPlayback, "no-playback", false, "Analyse the file without playing it")
	flags.StringVarP(&opts.backend, "backend", "b", "", "Output backend (terminal|sdl)")
	flags.IntVar(&opts.fps, "fps", 0, "Target frames per second")
	flags.IntVar(&opts.width, "width", 0, "Window width for the sdl backend")
	flags.IntVar(&opts.height, "height", 0, "Window height for the sdl backend")
	flags.StringVarP(&opts.accent, "accent", "a", "", "Accent colour as #rrggbb")
	flags.Float64VarP(&opts.sensitivity, "sensitivity", "s", 0, "Energy to speed multiplier (>= 0)")
	flags.BoolVar(&opts.web, "web", false, "Serve the web control panel")
	flags.StringVar(&opts.webAddr, "web-addr", "", "Listen address for the web control panel")
	flags.StringVar(&opts.profile, "profile", "", "Append per-frame stage timings to this CSV file")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.ListDevices()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			return audio.WriteDevices(cmd.OutOrStdout(), devices)
		},
	}
	rootCmd.AddCommand(devicesCmd)

	return rootCmd
}

// loadConfig reads the config file, then applies every flag the user set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("debug") {
		cfg.Debug = opts.debug
	}
	if changed("device") {
		cfg.Audio.Source = config.SourceMic
		cfg.Audio.Device = opts.device
	}
	if changed("file") {
		cfg.Audio.Source = config.SourceFile
		cfg.Audio.File = opts.file
	}
	if changed("no-audio") && opts.noAudio {
		cfg.Audio.Source = config.SourceSynth
	}
	if changed("loop") {
		cfg.Audio.Loop = opts.loop
	}
	if changed("no-playback") {
		cfg.Audio.Playback = !opts.noPlayback
	}
	if changed("backend") {
		cfg.Render.Backend = opts.backend
	}
	if changed("fps") {
		cfg.Render.FPS = opts.fps
	}
	if changed("width") {
		cfg.Render.Width = opts.width
	}
	if changed("height") {
		cfg.Render.Height = opts.height
	}
	if changed("accent") {
		cfg.Accent = opts.accent
	}
	if changed("sensitivity") {
		cfg.Sensitivity = opts.sensitivity
	}
	if changed("web") {
		cfg.Web.Enabled = opts.web
	}
	if changed("web-addr") {
		cfg.Web.Enabled = true
		cfg.Web.Addr = opts.webAddr
	}
	if changed("profile") {
		cfg.ProfilePath = opts.profile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
