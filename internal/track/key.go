package track

import (
	"fmt"
	"math"
)

// stretchPrecision is the resolution of stretch ratios inside a Key.
const stretchPrecision = 1000

// Key identifies one processed variant of a track: an absolute pitch shift
// and stretch ratio, both applied to the original audio.
type Key struct {
	Pitch   int
	Stretch float64
}

// Identity is the key of the unprocessed original.
var Identity = Key{Pitch: 0, Stretch: 1}

// NewKey normalizes a (pitch, stretch) pair so that equal musical intent
// compares equal: the stretch is rounded to three decimals.
func NewKey(pitch int, stretch float64) Key {
	return Key{
		Pitch:   pitch,
		Stretch: math.Round(stretch*stretchPrecision) / stretchPrecision,
	}
}

// IsIdentity reports whether k leaves the audio unchanged.
func (k Key) IsIdentity() bool { return k == Identity }

func (k Key) String() string {
	return fmt.Sprintf("pitch%+d_stretch%.3f", k.Pitch, k.Stretch)
}
