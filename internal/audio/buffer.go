package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Buffer is decoded PCM audio held in memory, one slice per channel.
// A Buffer is never modified after construction; effects produce new ones.
type Buffer struct {
	rate int
	data [][]float64
}

// NewBuffer takes ownership of data (data[channel][frame]). The caller must
// not modify the slices afterwards.
func NewBuffer(rate int, data [][]float64) (*Buffer, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", rate)
	}
	if len(data) == 0 {
		return nil, errors.New("buffer needs at least one channel")
	}
	n := len(data[0])
	for ch, d := range data {
		if len(d) != n {
			return nil, fmt.Errorf("channel %d has %d frames, want %d", ch, len(d), n)
		}
	}
	return &Buffer{rate: rate, data: data}, nil
}

// FromInterleaved builds a Buffer from interleaved int16 samples.
func FromInterleaved(rate, channels int, samples []int16) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive: %d", channels)
	}
	frames := len(samples) / channels
	data := make([][]float64, channels)
	for ch := range data {
		data[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			data[ch][i] = float64(samples[i*channels+ch]) / 32768
		}
	}
	return NewBuffer(rate, data)
}

// SampleRate returns the rate in Hz.
func (b *Buffer) SampleRate() int { return b.rate }

// Channels returns the number of audio channels.
func (b *Buffer) Channels() int { return len(b.data) }

// Frames returns the number of sample frames.
func (b *Buffer) Frames() int { return len(b.data[0]) }

// Duration returns the playing time of the buffer at its own rate.
func (b *Buffer) Duration() time.Duration {
	return FramesToDuration(b.Frames(), b.rate)
}

// Channel returns a copy of one channel's samples.
func (b *Buffer) Channel(ch int) []float64 {
	out := make([]float64, len(b.data[ch]))
	copy(out, b.data[ch])
	return out
}

// At returns the sample at frame i of channel ch, or 0 outside the buffer.
// A mono buffer answers for every channel.
func (b *Buffer) At(ch, i int) float64 {
	if ch >= len(b.data) {
		ch = len(b.data) - 1
	}
	d := b.data[ch]
	if i < 0 || i >= len(d) {
		return 0
	}
	return d[i]
}

// Equal reports whether both buffers have the same rate and identical samples.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == o {
		return true
	}
	if b == nil || o == nil || b.rate != o.rate || len(b.data) != len(o.data) {
		return false
	}
	for ch := range b.data {
		x, y := b.data[ch], o.data[ch]
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if math.Float64bits(x[i]) != math.Float64bits(y[i]) {
				return false
			}
		}
	}
	return true
}

// FramesToDuration converts a frame count at rate to a duration.
func FramesToDuration(frames, rate int) time.Duration {
	return time.Duration(float64(frames) / float64(rate) * float64(time.Second))
}

// DurationToFrames converts d to a (fractional) frame offset at rate.
func DurationToFrames(d time.Duration, rate int) float64 {
	return d.Seconds() * float64(rate)
}
