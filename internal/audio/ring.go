package audio

import "sync"

// ring keeps the most recent mono samples written by a device callback.
type ring struct {
	mu       sync.RWMutex
	buffer   []float32
	index    int
	channels int
	mono     []float32
}

func newRing(size, channels int) *ring {
	if channels <= 0 {
		channels = 1
	}
	return &ring{buffer: make([]float32, size), channels: channels}
}

// write downmixes interleaved frames and appends them.
func (r *ring) write(in []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels > 1 {
		frames := len(in) / r.channels
		if cap(r.mono) < frames {
			r.mono = make([]float32, frames)
		}
		mono := r.mono[:frames]
		for i := range mono {
			sum := float32(0)
			base := i * r.channels
			for ch := 0; ch < r.channels; ch++ {
				sum += in[base+ch]
			}
			mono[i] = sum / float32(r.channels)
		}
		in = mono
	}

	if len(in) == 0 {
		return
	}

	if len(in) >= len(r.buffer) {
		copy(r.buffer, in[len(in)-len(r.buffer):])
		r.index = 0
		return
	}

	if r.index+len(in) <= len(r.buffer) {
		copy(r.buffer[r.index:], in)
		r.index += len(in)
		if r.index == len(r.buffer) {
			r.index = 0
		}
		return
	}

	remaining := len(r.buffer) - r.index
	copy(r.buffer[r.index:], in[:remaining])
	copy(r.buffer, in[remaining:])
	r.index = len(in) - remaining
}

// latest copies the buffer out oldest first into dst, growing it if needed.
func (r *ring) latest(dst []float32) []float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cap(dst) < len(r.buffer) {
		dst = make([]float32, len(r.buffer))
	}
	dst = dst[:len(r.buffer)]
	n := copy(dst, r.buffer[r.index:])
	copy(dst[n:], r.buffer[:r.index])
	return dst
}
