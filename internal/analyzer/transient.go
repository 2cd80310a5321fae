package analyzer

import "github.com/guidoenr/pulsefield/internal/spectrum"

// TransientDetector flags sudden spikes in the top of the spectrum
// ("drum crashes"), at most once per cooldown.
type TransientDetector struct {
	th    Thresholds
	fired bool
	last  float64
}

// NewTransientDetector creates a detector that has never fired.
func NewTransientDetector(th Thresholds) *TransientDetector {
	return &TransientDetector{th: th}
}

// Update inspects s at nowMs and reports whether a transient fired.
func (d *TransientDetector) Update(s spectrum.Snapshot, nowMs float64) bool {
	start := HighBandStart(len(s.Bins), d.th.TransientBandStart)
	high := s.Bins[start:]
	if len(high) == 0 {
		return false
	}

	maxHigh := uint8(0)
	for _, v := range high {
		if v > maxHigh {
			maxHigh = v
		}
	}
	avgHigh := meanBytes(high)

	if float64(maxHigh) <= d.th.TransientMax || avgHigh <= d.th.TransientAvg {
		return false
	}
	if d.fired && nowMs >= d.last && nowMs-d.last < d.th.TransientCooldownMs {
		return false
	}
	d.fired = true
	d.last = nowMs
	return true
}

// LastFired returns the timestamp of the last transient.
func (d *TransientDetector) LastFired() (float64, bool) { return d.last, d.fired }

// HighBandStart returns the first bin index of the transient band.
func HighBandStart(n int, fraction float64) int {
	if n <= 0 {
		return 0
	}
	start := int(float64(n) * fraction)
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	return start
}
