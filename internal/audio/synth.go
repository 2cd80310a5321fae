package audio

import (
	"math"
	"math/rand"
	"time"

	"github.com/guidoenr/pulsefield/internal/spectrum"
)

// DefaultSynthTempo is the beat rate of the synthetic source.
const DefaultSynthTempo = 120.0

var synthNotes = []float64{220, 246.94, 261.63, 293.66, 329.63, 392, 440}

// SynthConfig controls the synthetic source.
type SynthConfig struct {
	Tempo    float64
	Analyser spectrum.AnalyserConfig
	Clock    func() time.Time
	Rand     *rand.Rand
}

// Synth renders a kick, hi-hat, crash and drifting pad in real time so the
// whole pipeline can run without an audio device.
type Synth struct {
	tempo    float64
	analyser *spectrum.Analyser
	clock    func() time.Time
	rng      *rand.Rand
	start    time.Time
	buf      []float32
}

var _ spectrum.Source = (*Synth)(nil)

// NewSynth creates a synthetic source starting at the clock's current time.
func NewSynth(cfg SynthConfig) (*Synth, error) {
	if cfg.Tempo <= 0 {
		cfg.Tempo = DefaultSynthTempo
	}
	if cfg.Analyser.WindowSize == 0 {
		cfg.Analyser = spectrum.DefaultAnalyserConfig()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	analyser, err := spectrum.NewAnalyser(cfg.Analyser)
	if err != nil {
		return nil, err
	}
	return &Synth{
		tempo:    cfg.Tempo,
		analyser: analyser,
		clock:    cfg.Clock,
		rng:      cfg.Rand,
		start:    cfg.Clock(),
		buf:      make([]float32, cfg.Analyser.WindowSize),
	}, nil
}

// Name identifies the source in logs and telemetry.
func (s *Synth) Name() string { return "synthetic" }

// Snapshot renders the window of audio that ends at the current clock time.
func (s *Synth) Snapshot() (spectrum.Snapshot, error) {
	now := s.clock().Sub(s.start).Seconds()
	rate := s.analyser.SampleRate()
	n := len(s.buf)
	for k := range s.buf {
		s.buf[k] = s.sample(now - float64(n-1-k)/rate)
	}
	return s.analyser.Analyse(s.buf), nil
}

// Close is a no-op.
func (s *Synth) Close() error { return nil }

func (s *Synth) sample(t float64) float32 {
	if t < 0 {
		return 0
	}
	beat := 60 / s.tempo

	phase := math.Mod(t, beat)
	pitch := 50 + 90*math.Exp(-phase*30)
	kick := math.Exp(-phase*14) * math.Sin(2*math.Pi*pitch*phase) * 0.7

	hatPhase := math.Mod(t+beat/2, beat)
	hat := math.Exp(-hatPhase*80) * (s.rng.Float64()*2 - 1) * 0.25

	crashPhase := math.Mod(t, beat*8)
	crash := math.Exp(-crashPhase*6) * (s.rng.Float64()*2 - 1) * 0.9

	bar := math.Floor(t / (beat * 4))
	idx := int((fractalNoise(bar*0.37, 1.3) + 1) / 2 * float64(len(synthNotes)))
	idx = max(0, min(idx, len(synthNotes)-1))
	pad := math.Sin(2*math.Pi*synthNotes[idx]*t) * 0.12

	v := kick + hat + crash + pad
	return float32(math.Max(-1, math.Min(1, v)))
}
