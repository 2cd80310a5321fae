package audio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/guidoenr/pulsefield/internal/spectrum"
)

// Capture wraps a PortAudio input stream and turns its latest samples into
// spectrum snapshots.
type Capture struct {
	stream   *portaudio.Stream
	device   *portaudio.DeviceInfo
	ring     *ring
	analyser *spectrum.Analyser
	scratch  []float32
}

var _ spectrum.Source = (*Capture)(nil)

// Config controls how a Capture instance is created. Analyser.SampleRate is
// replaced by the device's default rate.
type Config struct {
	DeviceName string
	Channels   int
	Analyser   spectrum.AnalyserConfig
}

// NewCapture opens and starts a PortAudio input stream. The capture holds a
// PortAudio session until Close.
func NewCapture(cfg Config) (c *Capture, err error) {
	if err = Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	defer func() {
		if c == nil {
			Terminate()
		}
	}()

	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Analyser.WindowSize == 0 {
		cfg.Analyser = spectrum.DefaultAnalyserConfig()
	}

	device, err := findDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < cfg.Channels {
		cfg.Channels = device.MaxInputChannels
	}

	cfg.Analyser.SampleRate = device.DefaultSampleRate
	analyser, err := spectrum.NewAnalyser(cfg.Analyser)
	if err != nil {
		return nil, err
	}

	capture := &Capture{
		device:   device,
		ring:     newRing(cfg.Analyser.WindowSize, cfg.Channels),
		analyser: analyser,
	}

	framesPerBuffer := cfg.Analyser.WindowSize / 4
	if framesPerBuffer < 64 {
		framesPerBuffer = portaudio.FramesPerBufferUnspecified
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		Output:          portaudio.StreamDeviceParameters{},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, capture.ring.write)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	capture.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return capture, nil
}

// Name identifies the source in logs and telemetry.
func (c *Capture) Name() string {
	return "mic:" + c.device.Name
}

// Snapshot analyses the most recent window of captured audio.
func (c *Capture) Snapshot() (spectrum.Snapshot, error) {
	c.scratch = c.ring.latest(c.scratch)
	return c.analyser.Analyse(c.scratch), nil
}

// Close stops and closes the underlying PortAudio stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	stream := c.stream
	c.stream = nil
	defer Terminate()
	if err := stream.Stop(); err != nil && !errorsIsInvalidStreamState(err) {
		_ = stream.Close()
		return err
	}
	return stream.Close()
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 {
	return c.analyser.SampleRate()
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		return findDeviceByName(name)
	}

	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil && dev.MaxInputChannels > 0 {
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	if candidate := pickBestDevice(devices, defaultInputIndex()); candidate != nil {
		return candidate, nil
	}
	return nil, fmt.Errorf("no suitable audio input device found")
}

func findDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	name = strings.ToLower(name)
	for _, device := range devices {
		if device.MaxInputChannels == 0 {
			continue
		}
		if strings.Contains(strings.ToLower(device.Name), name) {
			return device, nil
		}
	}
	return nil, fmt.Errorf("audio device %q not found", name)
}

func defaultInputIndex() int {
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def.Index
	}
	return -1
}

// pickBestDevice prefers the default input, then loopback-style monitors
// that carry whatever the machine is playing.
func pickBestDevice(devices []*portaudio.DeviceInfo, defaultIndex int) *portaudio.DeviceInfo {
	type scored struct {
		dev   *portaudio.DeviceInfo
		score int
	}

	keywords := []string{"monitor", "loopback", "stereo mix", "what u hear", "mix"}
	var results []scored
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		score := d.MaxInputChannels
		if d.Index == defaultIndex {
			score += 50
		}
		lower := strings.ToLower(d.Name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score += 20
				break
			}
		}
		if strings.Contains(lower, "default") {
			score += 10
		}
		results = append(results, scored{dev: d, score: score})
	}
	if len(results) == 0 {
		return nil
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return strings.ToLower(results[i].dev.Name) < strings.ToLower(results[j].dev.Name)
		}
		return results[i].score > results[j].score
	})
	return results[0].dev
}

// errorsIsInvalidStreamState reports whether err comes from stopping an
// already stopped stream.
func errorsIsInvalidStreamState(err error) bool {
	return err != nil && strings.Contains(err.Error(), "PaErrorCode -9986")
}
