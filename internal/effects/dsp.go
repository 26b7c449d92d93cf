package effects

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/effects/pitch"
	"golang.org/x/sync/errgroup"

	"github.com/Maig0l/karaoke/internal/audio"
)

// PitchEngine selects the pitch-shifting algorithm.
type PitchEngine string

const (
	// EngineWSOLA is the time-domain shifter; robust on mixed material.
	EngineWSOLA PitchEngine = "wsola"
	// EngineSpectral is the phase-vocoder shifter.
	EngineSpectral PitchEngine = "spectral"
)

// DSP is the default Processor. Channels of a buffer are processed in
// parallel, each with its own fresh processor instance.
type DSP struct {
	engine PitchEngine
}

// NewDSP creates a processor using the given pitch engine.
func NewDSP(engine PitchEngine) (*DSP, error) {
	switch engine {
	case EngineWSOLA, EngineSpectral:
	case "":
		engine = EngineWSOLA
	default:
		return nil, fmt.Errorf("unknown pitch engine %q (want %q or %q)", engine, EngineWSOLA, EngineSpectral)
	}
	return &DSP{engine: engine}, nil
}

// Engine returns the configured pitch engine.
func (d *DSP) Engine() PitchEngine { return d.engine }

// PitchShift implements Processor.
func (d *DSP) PitchShift(buf *audio.Buffer, semitones int) (*audio.Buffer, error) {
	if err := ValidateSemitones(semitones); err != nil {
		return nil, err
	}
	if semitones == 0 {
		return buf, nil
	}
	return mapChannels(buf, func(in []float64) ([]float64, error) {
		shifter, err := d.newShifter(float64(buf.SampleRate()))
		if err != nil {
			return nil, err
		}
		if err := shifter.SetPitchSemitones(float64(semitones)); err != nil {
			return nil, err
		}
		if p, ok := shifter.(interface {
			ProcessWithError([]float64) ([]float64, error)
		}); ok {
			return p.ProcessWithError(in)
		}
		return shifter.Process(in), nil
	})
}

// TimeStretch implements Processor.
func (d *DSP) TimeStretch(buf *audio.Buffer, ratio float64) (*audio.Buffer, error) {
	if err := ValidateStretch(ratio); err != nil {
		return nil, err
	}
	if ratio == 1 {
		return buf, nil
	}
	return mapChannels(buf, func(in []float64) ([]float64, error) {
		w, err := newWSOLA(buf.SampleRate())
		if err != nil {
			return nil, err
		}
		return w.stretch(in, ratio), nil
	})
}

func (d *DSP) newShifter(rate float64) (pitch.PitchProcessor, error) {
	if d.engine == EngineSpectral {
		return pitch.NewSpectralPitchShifter(rate)
	}
	return pitch.NewPitchShifter(rate)
}

// mapChannels runs fn over every channel concurrently and assembles the
// results into a new buffer at the same rate.
func mapChannels(buf *audio.Buffer, fn func([]float64) ([]float64, error)) (*audio.Buffer, error) {
	out := make([][]float64, buf.Channels())

	var g errgroup.Group
	for ch := range out {
		g.Go(func() error {
			res, err := fn(buf.Channel(ch))
			if err != nil {
				return fmt.Errorf("channel %d: %w", ch, err)
			}
			out[ch] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := len(out[0])
	if n == 0 {
		return nil, fmt.Errorf("transform produced no output")
	}
	for ch := range out {
		out[ch] = fitLength(out[ch], n)
	}
	return audio.NewBuffer(buf.SampleRate(), out)
}

func fitLength(in []float64, n int) []float64 {
	if len(in) == n {
		return in
	}
	out := make([]float64, n)
	copy(out, in)
	return out
}
