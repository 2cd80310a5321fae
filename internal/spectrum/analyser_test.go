package spectrum

import (
	"errors"
	"math"
	"testing"
)

func TestNewAnalyserRejectsBadWindow(t *testing.T) {
	cfg := DefaultAnalyserConfig()
	cfg.WindowSize = 1000
	if _, err := NewAnalyser(cfg); err == nil {
		t.Fatalf("expected error for non power-of-two window")
	}
	cfg = DefaultAnalyserConfig()
	cfg.MaxDB = cfg.MinDB
	if _, err := NewAnalyser(cfg); err == nil {
		t.Fatalf("expected error for empty dB range")
	}
}

func TestAnalyseSilence(t *testing.T) {
	a, err := NewAnalyser(DefaultAnalyserConfig())
	if err != nil {
		t.Fatalf("new analyser: %v", err)
	}
	snap := a.Analyse(make([]float32, 2048))
	if err := snap.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	for i, v := range snap.Bins {
		if v != 0 {
			t.Fatalf("bin %d = %d, want 0", i, v)
		}
	}
	for i, v := range snap.Waveform {
		if v != 128 {
			t.Fatalf("waveform[%d] = %d, want 128", i, v)
		}
	}
}

func TestAnalyseSinePeaksAtExpectedBin(t *testing.T) {
	cfg := DefaultAnalyserConfig()
	cfg.Smoothing = 0
	a, err := NewAnalyser(cfg)
	if err != nil {
		t.Fatalf("new analyser: %v", err)
	}
	const bin = 100
	freq := float64(bin) * cfg.SampleRate / float64(cfg.WindowSize)
	samples := make([]float32, cfg.WindowSize)
	for i := range samples {
		samples[i] = float32(0.05 * math.Sin(2*math.Pi*freq*float64(i)/cfg.SampleRate))
	}
	snap := a.Analyse(samples)

	best := 0
	for i, v := range snap.Bins {
		if v > snap.Bins[best] {
			best = i
		}
	}
	if best != bin {
		t.Fatalf("peak bin=%d want=%d (value %d)", best, bin, snap.Bins[best])
	}
}

func TestAnalyseZeroPadsShortInput(t *testing.T) {
	a, err := NewAnalyser(DefaultAnalyserConfig())
	if err != nil {
		t.Fatalf("new analyser: %v", err)
	}
	snap := a.Analyse([]float32{1, 1})
	if len(snap.Waveform) != 2048 {
		t.Fatalf("waveform length=%d want=2048", len(snap.Waveform))
	}
	if snap.Waveform[0] != 128 || snap.Waveform[2047] != 255 {
		t.Fatalf("unexpected padding: first=%d last=%d", snap.Waveform[0], snap.Waveform[2047])
	}
}

func TestValidate(t *testing.T) {
	good := Silent(2048, 44_100)
	if err := good.Validate(); err != nil {
		t.Fatalf("silent snapshot invalid: %v", err)
	}

	cases := map[string]Snapshot{
		"short bins":     {Bins: make([]uint8, 10), SampleRate: 44_100, WindowSize: 2048},
		"zero window":    {Bins: nil, SampleRate: 44_100, WindowSize: 0},
		"zero rate":      {Bins: make([]uint8, 1024), WindowSize: 2048},
		"short waveform": {Bins: make([]uint8, 1024), Waveform: make([]uint8, 3), SampleRate: 44_100, WindowSize: 2048},
	}
	for name, snap := range cases {
		t.Run(name, func(t *testing.T) {
			if err := snap.Validate(); !errors.Is(err, ErrMalformedSnapshot) {
				t.Fatalf("err=%v want ErrMalformedSnapshot", err)
			}
		})
	}
}

func TestBinFrequency(t *testing.T) {
	s := Silent(2048, 44_100)
	got := s.BinFrequency(100)
	if math.Abs(got-2153.3203125) > 1e-9 {
		t.Fatalf("BinFrequency(100)=%f", got)
	}
}
