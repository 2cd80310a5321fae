package analyzer

import (
	"math/rand"
	"testing"

	"github.com/guidoenr/pulsefield/internal/spectrum"
)

func TestBeatTrackerSteadyTempo(t *testing.T) {
	b := NewBeatTracker(DefaultThresholds())
	for i, now := range []float64{0, 500, 1000, 1500} {
		tempo := b.Update(true, now)
		if !b.Accepted() {
			t.Fatalf("beat %d at %.0fms not accepted", i, now)
		}
		if i < 3 && tempo != DefaultTempo {
			t.Fatalf("tempo=%d before enough intervals, want %d", tempo, DefaultTempo)
		}
	}
	got := b.Intervals()
	if len(got) != 3 || got[0] != 500 || got[1] != 500 || got[2] != 500 {
		t.Fatalf("intervals=%v want [500 500 500]", got)
	}
	if b.Tempo() != 120 {
		t.Fatalf("tempo=%d want=120", b.Tempo())
	}
}

func TestBeatTrackerComputesTempoFromMean(t *testing.T) {
	b := NewBeatTracker(DefaultThresholds())
	for _, now := range []float64{0, 400, 800, 1200, 1600} {
		b.Update(true, now)
	}
	if b.Tempo() != 150 {
		t.Fatalf("tempo=%d want=150", b.Tempo())
	}
}

func TestBeatTrackerDebounce(t *testing.T) {
	b := NewBeatTracker(DefaultThresholds())
	b.Update(true, 0)
	if !b.Accepted() {
		t.Fatalf("first beat should be accepted")
	}
	b.Update(true, 100)
	if b.Accepted() {
		t.Fatalf("beat 100ms later should be debounced")
	}
	if last, ok := b.LastBeat(); !ok || last != 0 {
		t.Fatalf("last beat=%v,%v want 0,true", last, ok)
	}
	if len(b.Intervals()) != 0 {
		t.Fatalf("debounced beat must not record an interval")
	}
}

func TestBeatTrackerRejectsOutOfRangeInterval(t *testing.T) {
	b := NewBeatTracker(DefaultThresholds())
	for _, now := range []float64{0, 500, 1000, 1500} {
		b.Update(true, now)
	}
	before := b.Intervals()

	b.Update(true, 4500)
	if !b.Accepted() {
		t.Fatalf("beat after a long gap should still be accepted")
	}
	if last, _ := b.LastBeat(); last != 4500 {
		t.Fatalf("last beat=%.0f want=4500", last)
	}
	if got := b.Intervals(); len(got) != len(before) {
		t.Fatalf("3000ms interval entered history: %v", got)
	}
	if b.Tempo() != 120 {
		t.Fatalf("tempo changed to %d", b.Tempo())
	}
}

func TestBeatTrackerIgnoresQuietFrames(t *testing.T) {
	b := NewBeatTracker(DefaultThresholds())
	b.Update(false, 0)
	if b.Accepted() {
		t.Fatalf("quiet frame accepted")
	}
	if _, ok := b.LastBeat(); ok {
		t.Fatalf("tracker should still be armed")
	}
}

func TestBeatTrackerHistoryIsBounded(t *testing.T) {
	th := DefaultThresholds()
	b := NewBeatTracker(th)
	now := 0.0
	for i := 0; i < 40; i++ {
		b.Update(true, now)
		if n := len(b.Intervals()); n > th.IntervalHistory {
			t.Fatalf("history grew to %d", n)
		}
		now += 300 + float64(i%5)*10
	}
	got := b.Intervals()
	if len(got) != th.IntervalHistory {
		t.Fatalf("history len=%d want=%d", len(got), th.IntervalHistory)
	}
	// the oldest entries must have been evicted first
	if got[len(got)-1] != 300+float64(38%5)*10 {
		t.Fatalf("newest interval=%.0f", got[len(got)-1])
	}
}

func TestBeatTrackerSurvivesClockReset(t *testing.T) {
	b := NewBeatTracker(DefaultThresholds())
	b.Update(true, 10_000)
	b.Update(true, 50)
	if !b.Accepted() {
		t.Fatalf("beat after clock reset should be accepted")
	}
	if len(b.Intervals()) != 0 {
		t.Fatalf("negative interval recorded")
	}
}

func transientSnapshot(high uint8, avg uint8) spectrum.Snapshot {
	bins := make([]uint8, 1024)
	start := HighBandStart(len(bins), 0.85)
	for i := start; i < len(bins); i++ {
		bins[i] = avg
	}
	bins[len(bins)-1] = high
	return snapshotWith(bins)
}

func TestTransientRateLimit(t *testing.T) {
	spike := transientSnapshot(240, 120)

	d := NewTransientDetector(DefaultThresholds())
	fired := 0
	for _, now := range []float64{1000, 1300} {
		if d.Update(spike, now) {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("spikes 300ms apart fired %d times, want 1", fired)
	}

	d = NewTransientDetector(DefaultThresholds())
	fired = 0
	for _, now := range []float64{1000, 1500} {
		if d.Update(spike, now) {
			fired++
		}
	}
	if fired != 2 {
		t.Fatalf("spikes 500ms apart fired %d times, want 2", fired)
	}
}

func TestTransientThresholds(t *testing.T) {
	cases := []struct {
		name string
		snap spectrum.Snapshot
		want bool
	}{
		{"quiet", transientSnapshot(0, 0), false},
		{"peak too low", transientSnapshot(220, 120), false},
		{"band too quiet", transientSnapshot(250, 60), false},
		{"crash", transientSnapshot(250, 100), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewTransientDetector(DefaultThresholds())
			if got := d.Update(tc.snap, 0); got != tc.want {
				t.Fatalf("Update=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestTransientIgnoresLowBins(t *testing.T) {
	bins := make([]uint8, 1024)
	for i := 0; i < 800; i++ {
		bins[i] = 255
	}
	d := NewTransientDetector(DefaultThresholds())
	if d.Update(snapshotWith(bins), 0) {
		t.Fatalf("low-band energy must not trigger a transient")
	}
}

func TestTransientNeverFasterThanCooldown(t *testing.T) {
	th := DefaultThresholds()
	d := NewTransientDetector(th)
	spike := transientSnapshot(255, 200)
	rng := rand.New(rand.NewSource(7))
	now := 0.0
	last := -1.0
	for i := 0; i < 500; i++ {
		now += rng.Float64() * 120
		if d.Update(spike, now) {
			if last >= 0 && now-last < th.TransientCooldownMs {
				t.Fatalf("fired %.1fms after previous", now-last)
			}
			last = now
		}
	}
}
