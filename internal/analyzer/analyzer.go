package analyzer

import (
	"math"

	"github.com/guidoenr/pulsefield/internal/spectrum"
)

// Thresholds holds the empirically tuned detector constants. They are
// heuristics, not physically derived values, so every one of them is
// configurable.
type Thresholds struct {
	BeatBass            float64 `yaml:"beat_bass"`
	BeatOverall         float64 `yaml:"beat_overall"`
	BeatDebounceMs      float64 `yaml:"beat_debounce_ms"`
	MinIntervalMs       float64 `yaml:"min_interval_ms"`
	MaxIntervalMs       float64 `yaml:"max_interval_ms"`
	IntervalHistory     int     `yaml:"interval_history"`
	TransientBandStart  float64 `yaml:"transient_band_start"`
	TransientMax        float64 `yaml:"transient_max"`
	TransientAvg        float64 `yaml:"transient_avg"`
	TransientCooldownMs float64 `yaml:"transient_cooldown_ms"`
}

// DefaultThresholds returns the observed defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BeatBass:            140,
		BeatOverall:         120,
		BeatDebounceMs:      200,
		MinIntervalMs:       250,
		MaxIntervalMs:       2000,
		IntervalHistory:     8,
		TransientBandStart:  0.85,
		TransientMax:        220,
		TransientAvg:        80,
		TransientCooldownMs: 400,
	}
}

// Extractor derives a Features value from one spectrum snapshot.
type Extractor struct {
	th Thresholds
}

// NewExtractor creates an Extractor using th for the beat decision.
func NewExtractor(th Thresholds) *Extractor {
	return &Extractor{th: th}
}

// Extract computes band energies, the dominant frequency and the raw beat
// flag. It never mutates shared state.
func (e *Extractor) Extract(s spectrum.Snapshot) Features {
	bins := s.Bins
	n := len(bins)
	if n == 0 {
		return Features{}
	}

	bassEnd, midEnd := Partition(n)
	bass := meanBytes(bins[:bassEnd])
	mid := meanBytes(bins[bassEnd:midEnd])
	treble := meanBytes(bins[midEnd:])
	overall := meanBytes(bins)

	peak := dominantBin(bins)

	return Features{
		Bass:        bass,
		Mid:         mid,
		Treble:      treble,
		Overall:     overall,
		DominantBin: peak,
		DominantHz:  s.BinFrequency(peak),
		IsBeat:      bass > e.th.BeatBass || overall > e.th.BeatOverall,
		Bins:        bins,
	}
}

// Partition splits n bins into bass [0,bassEnd), mid [bassEnd,midEnd) and
// treble [midEnd,n): the first 15%, the next 35% and the remaining 50%,
// rounded up. Integer arithmetic keeps the boundaries exact.
func Partition(n int) (bassEnd, midEnd int) {
	if n <= 0 {
		return 0, 0
	}
	bassEnd = (15*n + 99) / 100
	midEnd = (n + 1) / 2
	if midEnd < bassEnd {
		midEnd = bassEnd
	}
	return bassEnd, midEnd
}

// KeyHue maps the dominant frequency onto a hue, anchored at middle C.
// The remainder keeps the sign of the dividend, so results can fall below 200.
func KeyHue(dominantHz float64) float64 {
	return 200 + math.Mod(dominantHz-261, 360)
}

// dominantBin returns the index of the loudest bin; ties go to the lowest index.
func dominantBin(bins []uint8) int {
	idx := 0
	for i := 1; i < len(bins); i++ {
		if bins[i] > bins[idx] {
			idx = i
		}
	}
	return idx
}

func meanBytes(values []uint8) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += int(v)
	}
	return float64(sum) / float64(len(values))
}
