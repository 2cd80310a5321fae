package audio

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"github.com/guidoenr/pulsefield/internal/spectrum"
)

type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func smallAnalyser() spectrum.AnalyserConfig {
	cfg := spectrum.DefaultAnalyserConfig()
	cfg.WindowSize = 256
	return cfg
}

func sineMono(n, rate int, hz, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*hz*float64(i)/float64(rate)))
	}
	return out
}

func TestRingKeepsLatestSamples(t *testing.T) {
	r := newRing(4, 1)
	r.write([]float32{1, 2, 3})
	if got := r.latest(nil); !equalFloats(got, []float32{0, 1, 2, 3}) {
		t.Fatalf("partial=%v", got)
	}
	r.write([]float32{4, 5})
	if got := r.latest(nil); !equalFloats(got, []float32{2, 3, 4, 5}) {
		t.Fatalf("wrapped=%v", got)
	}
	r.write([]float32{6, 7, 8, 9, 10, 11})
	if got := r.latest(nil); !equalFloats(got, []float32{8, 9, 10, 11}) {
		t.Fatalf("overflow=%v", got)
	}
}

func TestRingDownmixesStereo(t *testing.T) {
	r := newRing(2, 2)
	r.write([]float32{1, 0, 0.5, 0.5})
	if got := r.latest(nil); !equalFloats(got, []float32{0.5, 0.5}) {
		t.Fatalf("mono=%v", got)
	}
}

func TestPickBestDevicePrefersDefaultThenMonitor(t *testing.T) {
	devices := []*portaudio.DeviceInfo{
		{Index: 0, Name: "HDMI Out", MaxInputChannels: 0},
		{Index: 1, Name: "USB Mic", MaxInputChannels: 1},
		{Index: 2, Name: "Monitor of Built-in Audio", MaxInputChannels: 2},
	}
	if got := pickBestDevice(devices, -1); got.Index != 2 {
		t.Fatalf("picked %q, want the monitor", got.Name)
	}
	if got := pickBestDevice(devices, 1); got.Index != 1 {
		t.Fatalf("picked %q, want the default input", got.Name)
	}
	if got := pickBestDevice(devices[:1], -1); got != nil {
		t.Fatalf("output-only device picked: %q", got.Name)
	}
}

func TestWriteDevicesSkipsOutputs(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDevices(&buf, []Device{
		{Name: "Speakers", MaxOutput: 2, HostAPI: "ALSA"},
		{Name: "Mic", MaxInput: 1, HostAPI: "ALSA", DefaultSampleHz: 48000, IsDefaultInput: true},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if bytes.Contains(buf.Bytes(), []byte("Speakers")) {
		t.Fatalf("output-only device listed: %q", out)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("* Mic")) {
		t.Fatalf("default mark missing: %q", out)
	}
}

func TestDecodeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path, 8000, 2, 800)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	pcm, err := Decode(f, ".WAV")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pcm.SampleRate != 8000 {
		t.Fatalf("rate=%d", pcm.SampleRate)
	}
	if len(pcm.Mono) != 800 || len(pcm.Stereo) != 800*4 {
		t.Fatalf("mono=%d stereo=%d", len(pcm.Mono), len(pcm.Stereo))
	}
	// left carries +0.5, right -0.25
	if got := pcm.Mono[10]; math.Abs(float64(got)-0.125) > 1e-3 {
		t.Fatalf("mono sample=%f want 0.125", got)
	}
	if pcm.Duration() != 100*time.Millisecond {
		t.Fatalf("duration=%s", pcm.Duration())
	}
}

func TestDecodeRejectsUnknownFormats(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("fLaC")), ".flac"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("flac err=%v", err)
	}
	if _, err := Decode(bytes.NewReader([]byte("not a riff header at all")), ".wav"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("bad wav err=%v", err)
	}
	if _, err := Decode(bytes.NewReader(nil), ".mp3"); err == nil {
		t.Fatalf("empty mp3 decoded")
	}
}

func TestFileSourceFollowsClock(t *testing.T) {
	clock := newFakeClock()
	pcm := PCM{Mono: sineMono(8000, 8000, 1000, 0.05), SampleRate: 8000}
	src, err := NewFileSource("tone.wav", pcm, FileConfig{Analyser: smallAnalyser(), Clock: clock.Now})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if src.Name() != "file:tone.wav" {
		t.Fatalf("name=%q", src.Name())
	}

	clock.Advance(500 * time.Millisecond)
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if snap.SampleRate != 8000 {
		t.Fatalf("snapshot rate=%.0f", snap.SampleRate)
	}
	// 1 kHz at 8 kHz with a 256 window lands on bin 32
	peak := 0
	for i, v := range snap.Bins {
		if v > snap.Bins[peak] {
			peak = i
		}
	}
	if peak != 32 {
		t.Fatalf("peak bin=%d want=32", peak)
	}

	clock.Advance(600 * time.Millisecond)
	if _, err := src.Snapshot(); !errors.Is(err, spectrum.ErrDrained) {
		t.Fatalf("finished file err=%v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestFileSourceLoops(t *testing.T) {
	clock := newFakeClock()
	pcm := PCM{Mono: sineMono(800, 8000, 1000, 0.5), SampleRate: 8000}
	src, err := NewFileSource("loop.wav", pcm, FileConfig{Analyser: smallAnalyser(), Clock: clock.Now, Loop: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	clock.Advance(time.Second)
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatalf("looped snapshot: %v", err)
	}
	for _, v := range snap.Bins {
		if v != 0 {
			t.Fatalf("restarted playhead should analyse silence, got bin %d", v)
		}
	}
	clock.Advance(50 * time.Millisecond)
	if _, err := src.Snapshot(); err != nil {
		t.Fatalf("after restart: %v", err)
	}
}

func TestNewFileSourceRejectsEmpty(t *testing.T) {
	if _, err := NewFileSource("x", PCM{SampleRate: 8000}, FileConfig{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err=%v", err)
	}
}

func TestSynthProducesValidSnapshots(t *testing.T) {
	clock := newFakeClock()
	synth, err := NewSynth(SynthConfig{Clock: clock.Now, Rand: rand.New(rand.NewSource(1))})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if synth.Name() != "synthetic" {
		t.Fatalf("name=%q", synth.Name())
	}

	loud := false
	for i := 0; i < 20; i++ {
		clock.Advance(50 * time.Millisecond)
		snap, err := synth.Snapshot()
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if err := snap.Validate(); err != nil {
			t.Fatalf("validate: %v", err)
		}
		for _, v := range snap.Bins[:10] {
			if v > 200 {
				loud = true
			}
		}
	}
	if !loud {
		t.Fatalf("kick never reached the low bins")
	}
	if err := synth.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestFractalNoiseRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := fractalNoise(float64(i)*0.173, float64(i)*0.071)
		if v < -1 || v > 1 {
			t.Fatalf("noise(%d)=%f out of range", i, v)
		}
	}
}

func writeTestWAV(t *testing.T, path string, rate, channels, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           make([]int, frames*channels),
		SourceBitDepth: 16,
	}
	for i := 0; i < frames; i++ {
		buf.Data[i*channels] = 16384
		if channels > 1 {
			buf.Data[i*channels+1] = -8192
		}
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func equalFloats(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
