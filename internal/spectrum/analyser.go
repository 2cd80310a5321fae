package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/window"
)

// AnalyserConfig controls how PCM windows become byte spectra.
type AnalyserConfig struct {
	WindowSize int
	SampleRate float64
	Smoothing  float64
	MinDB      float64
	MaxDB      float64
}

// Analyser converts float PCM into byte frequency and waveform data, scaled
// the way browser analyser nodes do it: Blackman window, magnitude smoothing
// over time, and a linear map of [MinDB, MaxDB] onto 0..255.
type Analyser struct {
	cfg      AnalyserConfig
	frame    []float64
	smoothed []float64
}

// DefaultAnalyserConfig mirrors a 2048-point analyser at 44.1 kHz.
func DefaultAnalyserConfig() AnalyserConfig {
	return AnalyserConfig{
		WindowSize: 2048,
		SampleRate: 44_100,
		Smoothing:  0.8,
		MinDB:      -100,
		MaxDB:      -30,
	}
}

// NewAnalyser validates cfg and allocates the workspace.
func NewAnalyser(cfg AnalyserConfig) (*Analyser, error) {
	if !isPowerOfTwo(cfg.WindowSize) || cfg.WindowSize < 32 {
		return nil, fmt.Errorf("window size must be a power of two >= 32, got %d", cfg.WindowSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0,1), got %f", cfg.Smoothing)
	}
	if cfg.MaxDB <= cfg.MinDB {
		return nil, fmt.Errorf("max dB (%.1f) must exceed min dB (%.1f)", cfg.MaxDB, cfg.MinDB)
	}
	return &Analyser{
		cfg:      cfg,
		frame:    make([]float64, cfg.WindowSize),
		smoothed: make([]float64, cfg.WindowSize/2),
	}, nil
}

// WindowSize returns the analysis window length.
func (a *Analyser) WindowSize() int { return a.cfg.WindowSize }

// SampleRate returns the rate the analyser assumes for its input.
func (a *Analyser) SampleRate() float64 { return a.cfg.SampleRate }

// Reset forgets the smoothing history.
func (a *Analyser) Reset() {
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
}

// Analyse reads the most recent WindowSize samples (zero-padding at the front
// when fewer are available) and returns a fresh snapshot.
func (a *Analyser) Analyse(samples []float32) Snapshot {
	size := a.cfg.WindowSize
	if len(samples) > size {
		samples = samples[len(samples)-size:]
	}
	pad := size - len(samples)

	wave := make([]uint8, size)
	for i := range a.frame {
		v := 0.0
		if i >= pad {
			v = float64(samples[i-pad])
		}
		a.frame[i] = v
		wave[i] = toByte(128 * (1 + v))
	}

	window.Blackman(a.frame)
	coeffs := fft.FFTReal(a.frame)

	bins := make([]uint8, size/2)
	tau := a.cfg.Smoothing
	span := a.cfg.MaxDB - a.cfg.MinDB
	for k := range bins {
		mag := cmplx.Abs(coeffs[k]) / float64(size)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		bins[k] = toByte(255 * (db - a.cfg.MinDB) / span)
	}

	return Snapshot{
		Bins:       bins,
		Waveform:   wave,
		SampleRate: a.cfg.SampleRate,
		WindowSize: size,
	}
}

func toByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
