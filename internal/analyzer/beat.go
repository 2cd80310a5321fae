package analyzer

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultTempo is reported until enough beat intervals have been seen.
const DefaultTempo = 120

// BeatTracker turns the per-frame loudness flag into a tempo estimate.
// It is armed until the first beat is accepted and tracking afterwards.
type BeatTracker struct {
	th        Thresholds
	tracking  bool
	lastBeat  float64
	intervals []float64
	tempo     int
	accepted  bool
}

// NewBeatTracker creates a tracker holding the default tempo.
func NewBeatTracker(th Thresholds) *BeatTracker {
	if th.IntervalHistory <= 0 {
		th.IntervalHistory = DefaultThresholds().IntervalHistory
	}
	return &BeatTracker{
		th:        th,
		intervals: make([]float64, 0, th.IntervalHistory),
		tempo:     DefaultTempo,
	}
}

// Update feeds one frame and returns the current tempo in BPM.
func (b *BeatTracker) Update(isBeat bool, nowMs float64) int {
	b.accepted = false
	if !isBeat {
		return b.tempo
	}

	if b.tracking {
		elapsed := nowMs - b.lastBeat
		switch {
		case elapsed < 0:
			// clock went backwards; start over from this beat
			b.tracking = false
		case elapsed < b.th.BeatDebounceMs:
			return b.tempo
		default:
			b.pushInterval(elapsed)
		}
	}

	b.accepted = true
	b.tracking = true
	b.lastBeat = nowMs
	return b.tempo
}

func (b *BeatTracker) pushInterval(interval float64) {
	if interval < b.th.MinIntervalMs || interval > b.th.MaxIntervalMs {
		return
	}
	if len(b.intervals) == b.th.IntervalHistory {
		copy(b.intervals, b.intervals[1:])
		b.intervals = b.intervals[:len(b.intervals)-1]
	}
	b.intervals = append(b.intervals, interval)
	if len(b.intervals) > 2 {
		b.tempo = int(math.Round(60_000 / stat.Mean(b.intervals, nil)))
	}
}

// Tempo returns the smoothed tempo in BPM.
func (b *BeatTracker) Tempo() int { return b.tempo }

// Accepted reports whether the last Update accepted a beat.
func (b *BeatTracker) Accepted() bool { return b.accepted }

// LastBeat returns the timestamp of the last accepted beat.
func (b *BeatTracker) LastBeat() (float64, bool) { return b.lastBeat, b.tracking }

// Intervals returns a copy of the interval history, oldest first.
func (b *BeatTracker) Intervals() []float64 {
	out := make([]float64, len(b.intervals))
	copy(out, b.intervals)
	return out
}
