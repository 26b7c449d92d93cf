package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"
)

// WSOLA timing, in milliseconds (music-oriented: sequence/overlap/search).
const (
	stretchSequenceMs = 82.0
	stretchOverlapMs  = 10.0
	stretchSearchMs   = 28.0

	stretchTiny = 1e-12
)

// wsola is a waveform-similarity overlap-add time stretcher. Output segments
// are copied from the input at a hop scaled by the ratio; each splice point
// is chosen by normalized cross-correlation against the natural continuation
// of the previous segment and joined with a Hann crossfade.
type wsola struct {
	sequenceLen int
	overlapLen  int
	searchLen   int

	fadeIn  []float64
	fadeOut []float64
}

func newWSOLA(rate int) (*wsola, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("stretch sample rate must be positive: %d", rate)
	}
	w := &wsola{
		sequenceLen: max(int(math.Round(stretchSequenceMs*0.001*float64(rate))), 32),
		overlapLen:  max(int(math.Round(stretchOverlapMs*0.001*float64(rate))), 8),
		searchLen:   max(int(math.Round(stretchSearchMs*0.001*float64(rate))), 1),
	}
	if w.overlapLen >= w.sequenceLen {
		return nil, fmt.Errorf("stretch overlap too large for sequence: overlap=%d sequence=%d",
			w.overlapLen, w.sequenceLen)
	}

	hann, err := window.Hann(2 * w.overlapLen)
	if err != nil {
		return nil, err
	}
	w.fadeIn = make([]float64, w.overlapLen)
	w.fadeOut = make([]float64, w.overlapLen)
	for i := range w.overlapLen {
		w.fadeIn[i] = hann[i]
		w.fadeOut[i] = 1 - hann[i]
	}
	return w, nil
}

// stretch returns input played ratio times faster: len(out) = round(len(in)/ratio).
func (w *wsola) stretch(input []float64, ratio float64) []float64 {
	targetLen := max(int(math.Round(float64(len(input))/ratio)), 1)

	stepOut := w.sequenceLen - w.overlapLen
	nominalInStep := float64(stepOut) * ratio

	out := make([]float64, targetLen+w.sequenceLen+stepOut)
	for i := 0; i < w.sequenceLen; i++ {
		out[i] = sampleZero(input, i)
	}
	outLen := w.sequenceLen
	prevStart := 0
	nextNominal := nominalInStep
	ref := make([]float64, w.overlapLen)

	for outLen < targetLen {
		refStart := prevStart + stepOut
		for i := range ref {
			ref[i] = sampleZero(input, refStart+i)
		}
		cand := w.bestOverlap(ref, input, int(math.Round(nextNominal)))

		outStart := outLen - w.overlapLen
		for i := 0; i < w.overlapLen; i++ {
			out[outStart+i] = out[outStart+i]*w.fadeOut[i] + sampleZero(input, cand+i)*w.fadeIn[i]
		}
		for i := w.overlapLen; i < w.sequenceLen; i++ {
			out[outStart+i] = sampleZero(input, cand+i)
		}

		outLen = outStart + w.sequenceLen
		prevStart = cand
		nextNominal += nominalInStep
	}
	return out[:targetLen]
}

func (w *wsola) bestOverlap(ref, input []float64, predicted int) int {
	refEnergy := stretchTiny
	for _, v := range ref {
		refEnergy += v * v
	}
	score := func(cand int) float64 {
		dot := 0.0
		candEnergy := stretchTiny
		for i, rv := range ref {
			cv := sampleZero(input, cand+i)
			dot += rv * cv
			candEnergy += cv * cv
		}
		return dot / math.Sqrt(refEnergy*candEnergy)
	}

	// Ties keep the nominal position so silence does not drift.
	best := predicted
	bestScore := score(predicted)
	for cand := max(predicted-w.searchLen, 0); cand <= predicted+w.searchLen; cand++ {
		if s := score(cand); s > bestScore {
			bestScore = s
			best = cand
		}
	}
	return best
}

func sampleZero(x []float64, idx int) float64 {
	if idx < 0 || idx >= len(x) {
		return 0
	}
	return x[idx]
}
