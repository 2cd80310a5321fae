package spectrum

import (
	"errors"
	"fmt"
	"io"
)

// ErrMalformedSnapshot is returned when a snapshot breaks the fixed-length contract.
var ErrMalformedSnapshot = errors.New("malformed spectrum snapshot")

// ErrDrained is returned by a Source that has no more audio to offer.
var ErrDrained = io.EOF

// Snapshot is one frame's frequency-domain readout plus the matching waveform.
// Bins holds WindowSize/2 byte energies and must not be modified once captured.
type Snapshot struct {
	Bins       []uint8
	Waveform   []uint8
	SampleRate float64
	WindowSize int
}

// Source supplies one snapshot per frame. Snapshot must not block.
type Source interface {
	Name() string
	Snapshot() (Snapshot, error)
	Close() error
}

// Validate checks the snapshot against its own window size.
func (s Snapshot) Validate() error {
	if s.WindowSize <= 0 || s.SampleRate <= 0 {
		return fmt.Errorf("%w: window=%d rate=%.0f", ErrMalformedSnapshot, s.WindowSize, s.SampleRate)
	}
	if len(s.Bins) != s.WindowSize/2 {
		return fmt.Errorf("%w: %d bins for window %d", ErrMalformedSnapshot, len(s.Bins), s.WindowSize)
	}
	if len(s.Waveform) != 0 && len(s.Waveform) != s.WindowSize {
		return fmt.Errorf("%w: %d waveform samples for window %d", ErrMalformedSnapshot, len(s.Waveform), s.WindowSize)
	}
	return nil
}

// BinFrequency converts a bin index to Hz.
func (s Snapshot) BinFrequency(index int) float64 {
	if s.WindowSize <= 0 {
		return 0
	}
	return float64(index) * s.SampleRate / float64(s.WindowSize)
}

// Silent returns an all-zero snapshot of the given geometry.
func Silent(windowSize int, sampleRate float64) Snapshot {
	wave := make([]uint8, windowSize)
	for i := range wave {
		wave[i] = 128
	}
	return Snapshot{
		Bins:       make([]uint8, windowSize/2),
		Waveform:   wave,
		SampleRate: sampleRate,
		WindowSize: windowSize,
	}
}
