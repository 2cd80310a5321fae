package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guidoenr/pulsefield/internal/analyzer"
	"github.com/guidoenr/pulsefield/internal/palette"
	"github.com/guidoenr/pulsefield/internal/particles"
	"github.com/guidoenr/pulsefield/internal/render"
	"github.com/guidoenr/pulsefield/internal/spectrum"
)

// ErrNoSource is returned by Run when no spectrum source is attached.
var ErrNoSource = errors.New("no spectrum source attached")

// ErrAlreadyRunning is returned by Run while another Run is active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// errStop ends the frame loop without an error.
var errStop = errors.New("stop")

const defaultQueueSize = 64

// Config configures the scheduler.
type Config struct {
	Thresholds    analyzer.Thresholds
	Accent        palette.Accent
	Sensitivity   float64
	Count         int
	Ceiling       int
	BurstSize     int
	RepelRadius   float64
	LinkDistance  float64
	FrameInterval time.Duration
	QueueSize     int
	ProfilePath   string
	// Keyboard enables the raw-terminal key listener.
	Keyboard bool
	// Debug logs every skipped frame.
	Debug bool
	Log   *log.Logger
	Rand  *rand.Rand
	Clock func() time.Time
}

// App is the frame scheduler. It owns the particle field, the detectors and
// the canvas; everything else talks to it through the input queue, the
// tunables and Attach.
type App struct {
	cfg       Config
	log       *log.Logger
	rng       *rand.Rand
	clock     func() time.Time
	epoch     time.Time
	presenter render.Presenter

	canvas     *render.Canvas
	renderer   *render.Renderer
	field      *particles.Field
	extractor  *analyzer.Extractor
	beats      *analyzer.BeatTracker
	transients *analyzer.TransientDetector
	lastBins   []uint8
	binCount   int
	lastFrame  time.Time
	fps        float64
	profiler   *profiler

	running atomic.Bool
	stepMu  sync.Mutex

	srcMu    sync.Mutex
	source   spectrum.Source
	resetDue bool

	inputs   chan inputEvent
	quit     chan struct{}
	quitOnce sync.Once

	tunMu            sync.Mutex
	accent           palette.Accent
	sensitivity      float64
	accentDirty      bool
	sensitivityDirty bool

	statsMu sync.RWMutex
	stats   Stats
}

// New builds the scheduler around a presenter and seeds the field to the
// presenter's size.
func New(cfg Config, presenter render.Presenter) (*App, error) {
	if presenter == nil {
		return nil, errors.New("presenter is required")
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second / 60
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Sensitivity <= 0 {
		cfg.Sensitivity = particles.DefaultSensitivity
	}
	if cfg.Count < 0 {
		cfg.Count = 0
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = particles.DefaultBurstSize
	}
	if cfg.Thresholds == (analyzer.Thresholds{}) {
		cfg.Thresholds = analyzer.DefaultThresholds()
	}
	if cfg.Accent == (palette.Accent{}) {
		cfg.Accent = palette.MustAccent(palette.DefaultAccent)
	}
	if cfg.Log == nil {
		cfg.Log = log.New(io.Discard, "", 0)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	w, h := presenter.Size()
	canvas := render.NewCanvas(w, h)
	field := particles.New(particles.Config{
		Ceiling:     cfg.Ceiling,
		RepelRadius: cfg.RepelRadius,
		Sensitivity: cfg.Sensitivity,
		AccentHue:   cfg.Accent.Hue(),
		Rand:        cfg.Rand,
	})
	cw, ch := canvas.Size()
	field.Initialize(cfg.Count, float64(cw), float64(ch))

	prof, err := newProfiler(cfg.ProfilePath)
	if err != nil {
		cfg.Log.Printf("profiler disabled: %v", err)
	}

	a := &App{
		cfg:         cfg,
		log:         cfg.Log,
		rng:         cfg.Rand,
		clock:       cfg.Clock,
		presenter:   presenter,
		canvas:      canvas,
		renderer:    render.New(canvas, cfg.LinkDistance),
		field:       field,
		profiler:    prof,
		inputs:      make(chan inputEvent, cfg.QueueSize),
		quit:        make(chan struct{}),
		accent:      cfg.Accent,
		sensitivity: cfg.Sensitivity,
	}
	a.epoch = a.clock()
	a.resetDetectors()
	return a, nil
}

// Attach makes src the active source, closing the previous one. Detector
// state is reset at the next frame; particles are kept. Attaching the
// current source again does nothing.
func (a *App) Attach(src spectrum.Source) {
	a.srcMu.Lock()
	if src == a.source {
		a.srcMu.Unlock()
		return
	}
	old := a.source
	a.source = src
	a.resetDue = true
	a.srcMu.Unlock()

	if src != nil {
		a.log.Printf("source attached: %s", src.Name())
	}
	if old != nil {
		if err := old.Close(); err != nil {
			a.log.Printf("close %s: %v", old.Name(), err)
		}
	}
}

// Detach closes and removes the active source.
func (a *App) Detach() {
	a.Attach(nil)
}

// SourceName returns the active source's name, or "" when detached.
func (a *App) SourceName() string {
	a.srcMu.Lock()
	defer a.srcMu.Unlock()
	if a.source == nil {
		return ""
	}
	return a.source.Name()
}

// SetAccent retints every particle and future bursts from the next frame on,
// even when the new colour shares the old hue.
func (a *App) SetAccent(accent palette.Accent) {
	a.tunMu.Lock()
	a.accent = accent
	a.accentDirty = true
	a.tunMu.Unlock()
}

// SetSensitivity changes the energy-to-speed multiplier from the next frame on.
// Any finite non-negative value is accepted.
func (a *App) SetSensitivity(s float64) error {
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return fmt.Errorf("sensitivity must be a finite number >= 0, got %g", s)
	}
	a.tunMu.Lock()
	a.sensitivity = s
	a.sensitivityDirty = true
	a.tunMu.Unlock()
	return nil
}

// Tunables returns the current accent and sensitivity.
func (a *App) Tunables() (palette.Accent, float64) {
	a.tunMu.Lock()
	defer a.tunMu.Unlock()
	return a.accent, a.sensitivity
}

// Run drives frames on a ticker until ctx is done, the user quits, the
// presenter closes or a finite source drains. Only one Run may be active;
// a concurrent call returns ErrAlreadyRunning without touching any state.
func (a *App) Run(ctx context.Context) error {
	if a.SourceName() == "" {
		return ErrNoSource
	}
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)
	ticker := time.NewTicker(a.cfg.FrameInterval)
	defer ticker.Stop()

	if a.cfg.Keyboard {
		inputCtx, cancelInput := context.WithCancel(ctx)
		defer cancelInput()
		a.startInputListener(inputCtx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.quit:
			return nil
		case <-ticker.C:
			if err := a.Step(); err != nil {
				if errors.Is(err, errStop) {
					return nil
				}
				return err
			}
		}
	}
}

// Close releases the source, the presenter and the profiler.
func (a *App) Close() error {
	a.Detach()
	return errors.Join(a.presenter.Close(), a.profiler.Close())
}

// Step runs exactly one frame: queued input, tunables, snapshot, analysis,
// physics, drawing and presentation. Frames never overlap.
func (a *App) Step() error {
	a.stepMu.Lock()
	defer a.stepMu.Unlock()

	now := a.clock()
	nowMs := float64(now.Sub(a.epoch)) / float64(time.Millisecond)
	a.trackFPS(now)
	a.profiler.beginFrame()

	for _, ev := range a.presenter.Poll() {
		a.enqueuePresenterEvent(ev)
	}
	if a.drainInputs() {
		return errStop
	}
	a.applyTunables()
	a.profiler.markSection("input")

	snap, err := a.snapshot()
	switch {
	case errors.Is(err, spectrum.ErrDrained):
		a.log.Printf("source %s finished", a.SourceName())
		a.Detach()
		return errStop
	case errors.Is(err, ErrNoSource):
		return err
	case err != nil:
		a.skip(fmt.Errorf("snapshot: %w", err))
		return nil
	}
	if err := a.checkGeometry(snap); err != nil {
		a.skip(err)
		return nil
	}

	feat := a.extractor.Extract(snap)
	tempo := a.beats.Update(feat.IsBeat, nowMs)
	feat.BeatAccepted = a.beats.Accepted()
	feat.IsTransient = a.transients.Update(snap, nowMs)
	keyHue := analyzer.KeyHue(feat.DominantHz)
	a.lastBins = feat.Bins
	a.profiler.markSection("analysis")

	a.field.Advance(feat, keyHue, tempo, nowMs)
	a.profiler.markSection("physics")

	a.renderer.Render(a.field.Particles(), feat, keyHue, feat.IsTransient)
	a.profiler.markSection("render")

	accent, sensitivity := a.Tunables()
	status := render.StatusLine(render.Status{
		Source:    a.SourceName(),
		Particles: a.field.Len(),
		Tempo:     tempo,
		FPS:       a.fps,
		Accent:    accent.Hex(),
	}, feat)
	if err := a.presenter.Present(a.canvas.Image(), status); err != nil {
		if errors.Is(err, render.ErrRendererQuit) {
			return errStop
		}
		return fmt.Errorf("present: %w", err)
	}
	a.profiler.markSection("present")
	a.profiler.endFrame()

	a.publish(feat, tempo, keyHue, accent, sensitivity)
	return nil
}

// snapshot reads the active source, resetting detectors first when the
// source changed since the last frame.
func (a *App) snapshot() (spectrum.Snapshot, error) {
	a.srcMu.Lock()
	defer a.srcMu.Unlock()
	if a.resetDue {
		a.resetDetectors()
		a.resetDue = false
	}
	if a.source == nil {
		return spectrum.Snapshot{}, ErrNoSource
	}
	return a.source.Snapshot()
}

func (a *App) skip(err error) {
	a.countSkipped()
	if a.cfg.Debug {
		a.log.Printf("skipping frame: %v", err)
	}
}

// checkGeometry validates snap and pins the bin count of the attached
// source on its first good frame; later frames must match it.
func (a *App) checkGeometry(snap spectrum.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	n := len(snap.Bins)
	if a.binCount == 0 {
		a.binCount = n
		return nil
	}
	if n != a.binCount {
		return fmt.Errorf("%w: %d bins, session uses %d", spectrum.ErrMalformedSnapshot, n, a.binCount)
	}
	return nil
}

func (a *App) resetDetectors() {
	a.extractor = analyzer.NewExtractor(a.cfg.Thresholds)
	a.beats = analyzer.NewBeatTracker(a.cfg.Thresholds)
	a.transients = analyzer.NewTransientDetector(a.cfg.Thresholds)
	a.lastBins = nil
	a.binCount = 0
}

func (a *App) applyTunables() {
	a.tunMu.Lock()
	accent, sensitivity := a.accent, a.sensitivity
	retint, retune := a.accentDirty, a.sensitivityDirty
	a.accentDirty, a.sensitivityDirty = false, false
	a.tunMu.Unlock()

	if retint {
		a.field.Retint(accent.Hue())
	}
	if retune {
		a.field.SetSensitivity(sensitivity)
	}
}

func (a *App) trackFPS(now time.Time) {
	if !a.lastFrame.IsZero() {
		if dt := now.Sub(a.lastFrame).Seconds(); dt > 0 {
			if a.fps == 0 {
				a.fps = 1 / dt
			} else {
				a.fps = a.fps*0.9 + 0.1/dt
			}
		}
	}
	a.lastFrame = now
}
