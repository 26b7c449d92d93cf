package audio

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
)

// Pipeline pulls mixed audio from a source and outputs PCM frames at
// real-time rate. It is the output clock when no audio device drives the mixer.
type Pipeline struct {
	source  beep.Streamer
	frameCh chan []int16
	sent    atomic.Int64
}

// NewPipeline creates a pipeline reading from source.
func NewPipeline(source beep.Streamer) *Pipeline {
	return &Pipeline{
		source:  source,
		frameCh: make(chan []int16, 100),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// Elapsed returns how much audio the pipeline has emitted.
func (p *Pipeline) Elapsed() time.Duration {
	return time.Duration(p.sent.Load()) * FrameDuration
}

// Run starts the pipeline. Blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	block := make([][2]float64, FrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, _ := p.source.Stream(block)
		for i := n; i < len(block); i++ {
			block[i] = [2]float64{}
		}
		if !p.sendFrame(ctx, ToInt16(block)) {
			return
		}
	}
}

func (p *Pipeline) sendFrame(ctx context.Context, frame []int16) bool {
	select {
	case p.frameCh <- frame:
		p.sent.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

// ToInt16 interleaves stereo float frames into int16 samples.
func ToInt16(frames [][2]float64) []int16 {
	out := make([]int16, len(frames)*Channels)
	for i, f := range frames {
		out[i*2] = ClipInt16(f[0])
		out[i*2+1] = ClipInt16(f[1])
	}
	return out
}
