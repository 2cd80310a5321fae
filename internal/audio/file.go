package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/hajimehoshi/oto/v2"

	"github.com/guidoenr/pulsefield/internal/spectrum"
)

// ErrUnsupportedFormat is returned for files that are neither WAV nor MP3.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// PCM is decoded audio: a mono float copy for analysis and interleaved
// 16-bit little-endian stereo for playback.
type PCM struct {
	Mono       []float32
	Stereo     []byte
	SampleRate int
}

// Duration returns the length of the decoded audio.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(p.Mono)) / float64(p.SampleRate) * float64(time.Second))
}

// FileConfig controls a FileSource.
type FileConfig struct {
	Path     string
	Playback bool
	Loop     bool
	Analyser spectrum.AnalyserConfig
	Clock    func() time.Time
}

// FileSource replays decoded audio against a clock, optionally playing it
// through the default output, and analyses the window at the playhead.
type FileSource struct {
	name     string
	pcm      PCM
	rate     float64
	loop     bool
	analyser *spectrum.Analyser
	clock    func() time.Time
	start    time.Time
	playback bool
	player   oto.Player
}

var _ spectrum.Source = (*FileSource)(nil)

// OpenFile decodes cfg.Path and starts replaying it.
func OpenFile(cfg FileConfig) (*FileSource, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	pcm, err := Decode(f, filepath.Ext(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(cfg.Path), err)
	}
	return NewFileSource(filepath.Base(cfg.Path), pcm, cfg)
}

// NewFileSource replays already decoded audio.
func NewFileSource(name string, pcm PCM, cfg FileConfig) (*FileSource, error) {
	if len(pcm.Mono) == 0 || pcm.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: no samples", ErrUnsupportedFormat)
	}
	if cfg.Analyser.WindowSize == 0 {
		cfg.Analyser = spectrum.DefaultAnalyserConfig()
	}
	cfg.Analyser.SampleRate = float64(pcm.SampleRate)
	analyser, err := spectrum.NewAnalyser(cfg.Analyser)
	if err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := &FileSource{
		name:     name,
		pcm:      pcm,
		rate:     float64(pcm.SampleRate),
		loop:     cfg.Loop,
		analyser: analyser,
		clock:    cfg.Clock,
		playback: cfg.Playback,
	}
	if err := s.restart(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the source in logs and telemetry.
func (s *FileSource) Name() string { return "file:" + s.name }

// Snapshot analyses the window ending at the playhead. It returns
// spectrum.ErrDrained once a non-looping file has finished.
func (s *FileSource) Snapshot() (spectrum.Snapshot, error) {
	idx := s.playhead()
	if idx >= len(s.pcm.Mono) {
		if !s.loop {
			return spectrum.Snapshot{}, spectrum.ErrDrained
		}
		if err := s.restart(); err != nil {
			return spectrum.Snapshot{}, err
		}
		idx = 0
	}
	lo := max(0, idx-s.analyser.WindowSize())
	return s.analyser.Analyse(s.pcm.Mono[lo:idx]), nil
}

// Close stops playback.
func (s *FileSource) Close() error {
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

func (s *FileSource) playhead() int {
	elapsed := s.clock().Sub(s.start).Seconds()
	if elapsed < 0 {
		return 0
	}
	return int(elapsed * s.rate)
}

func (s *FileSource) restart() error {
	if s.playback {
		if err := s.Close(); err != nil {
			return err
		}
		ctx, err := playbackContext(s.pcm.SampleRate)
		if err != nil {
			return err
		}
		s.player = ctx.NewPlayer(bytes.NewReader(s.pcm.Stereo))
		s.player.Play()
	}
	s.analyser.Reset()
	s.start = s.clock()
	return nil
}

var (
	otoMu   sync.Mutex
	otoCtx  *oto.Context
	otoRate int
)

// playbackContext returns the process-wide output context. oto allows only
// one, so every file must share its sample rate.
func playbackContext(rate int) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx != nil {
		if otoRate != rate {
			return nil, fmt.Errorf("playback already running at %d Hz, file is %d Hz", otoRate, rate)
		}
		return otoCtx, nil
	}
	ctx, ready, err := oto.NewContext(rate, 2, oto.FormatSignedInt16LE)
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready
	otoCtx, otoRate = ctx, rate
	return ctx, nil
}

// Decode reads WAV or MP3 audio, chosen by file extension.
func Decode(r io.ReadSeeker, ext string) (PCM, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav", "wave":
		return decodeWAV(r)
	case "mp3":
		return decodeMP3(r)
	default:
		return PCM{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func decodeWAV(r io.ReadSeeker) (PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return PCM{}, fmt.Errorf("%w: invalid wav header", ErrUnsupportedFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("read wav: %w", err)
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return PCM{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, channels)
	}
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	if depth < 8 || depth > 32 {
		return PCM{}, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, depth)
	}

	scale := float64(int64(1) << (depth - 1))
	toFloat := func(v int) float64 {
		if depth == 8 {
			// 8-bit wav is unsigned
			return float64(v-128) / 128
		}
		return float64(v) / scale
	}

	frames := len(buf.Data) / channels
	pcm := PCM{
		Mono:       make([]float32, frames),
		Stereo:     make([]byte, frames*4),
		SampleRate: buf.Format.SampleRate,
	}
	for i := 0; i < frames; i++ {
		base := i * channels
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += toFloat(buf.Data[base+ch])
		}
		pcm.Mono[i] = float32(sum / float64(channels))

		left := toFloat(buf.Data[base])
		right := left
		if channels > 1 {
			right = toFloat(buf.Data[base+1])
		}
		binary.LittleEndian.PutUint16(pcm.Stereo[i*4:], uint16(toInt16(left)))
		binary.LittleEndian.PutUint16(pcm.Stereo[i*4+2:], uint16(toInt16(right)))
	}
	return pcm, nil
}

func decodeMP3(r io.Reader) (PCM, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return PCM{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("read mp3: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo
	frames := len(raw) / 4
	pcm := PCM{
		Mono:       make([]float32, frames),
		Stereo:     raw[:frames*4],
		SampleRate: d.SampleRate(),
	}
	for i := 0; i < frames; i++ {
		left := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		right := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		pcm.Mono[i] = float32((float64(left) + float64(right)) / 2 / 32768)
	}
	return pcm, nil
}

func toInt16(v float64) int16 {
	return int16(math.Max(-32768, math.Min(32767, math.Round(v*32767))))
}
