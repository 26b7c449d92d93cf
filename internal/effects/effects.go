// Package effects turns an original audio buffer into pitch-shifted and
// time-stretched variants. Every transform is a pure function of its inputs:
// the same buffer and parameters always yield sample-identical output, which
// is what makes caching processed buffers sound.
package effects

import (
	"fmt"
	"math"

	"github.com/Maig0l/karaoke/internal/audio"
)

// Parameter ranges accepted by the processors.
const (
	MinSemitones = -12
	MaxSemitones = 12
	MinStretch   = 0.25
	MaxStretch   = 2.0
)

// Processor produces new buffers from a source buffer. Implementations must
// be deterministic and must never modify the source.
type Processor interface {
	// PitchShift moves the pitch by semitones keeping the duration.
	PitchShift(buf *audio.Buffer, semitones int) (*audio.Buffer, error)
	// TimeStretch changes the tempo keeping the pitch. Ratios above 1 speed
	// up (shorter output), below 1 slow down.
	TimeStretch(buf *audio.Buffer, ratio float64) (*audio.Buffer, error)
}

// ValidateSemitones checks a pitch amount against the supported range.
func ValidateSemitones(semitones int) error {
	if semitones < MinSemitones || semitones > MaxSemitones {
		return fmt.Errorf("pitch must be in [%d, %d] semitones: %d", MinSemitones, MaxSemitones, semitones)
	}
	return nil
}

// ValidateStretch checks a stretch ratio against the supported range.
func ValidateStretch(ratio float64) error {
	if math.IsNaN(ratio) || ratio < MinStretch || ratio > MaxStretch {
		return fmt.Errorf("stretch must be in [%g, %g]: %g", MinStretch, MaxStretch, ratio)
	}
	return nil
}
