package player

import (
	"github.com/gopxl/beep/v2"

	"github.com/Maig0l/karaoke/internal/audio"
)

// Mixer exposes a Synchronizer as an endless beep.Streamer at
// audio.SampleRate. Stopped or paused channels contribute silence.
type Mixer struct {
	sync *Synchronizer
}

var _ beep.Streamer = (*Mixer)(nil)

// NewMixer creates a mixer over s.
func NewMixer(s *Synchronizer) *Mixer {
	return &Mixer{sync: s}
}

// Format is the output format of the mixer.
func (m *Mixer) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(audio.SampleRate),
		NumChannels: audio.Channels,
		Precision:   audio.BitDepth / 8,
	}
}

// Stream fills samples with the next mixed frames. It never runs dry.
func (m *Mixer) Stream(samples [][2]float64) (int, bool) {
	m.sync.Mix(samples)
	return len(samples), true
}

// Err always returns nil.
func (m *Mixer) Err() error { return nil }
