package audio

import "math"

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Fade is a smoothstep gain ramp from 0 to 1 over a fixed number of output
// frames. The zero value is a finished fade (gain 1).
type Fade struct {
	length int
	pos    int
}

// NewFade returns a fade-in lasting frames output frames.
func NewFade(frames int) Fade {
	if frames < 0 {
		frames = 0
	}
	return Fade{length: frames}
}

// Next returns the gain for the current frame and advances the ramp.
func (f *Fade) Next() float64 {
	if f.pos >= f.length {
		return 1
	}
	g := Smoothstep(float64(f.pos) / float64(f.length))
	f.pos++
	return g
}

// Done reports whether the ramp has reached unity gain.
func (f *Fade) Done() bool { return f.pos >= f.length }

// ClipInt16 converts a float sample in [-1,1] to int16 with saturation.
func ClipInt16(v float64) int16 {
	s := math.Round(v * 32768)
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}
