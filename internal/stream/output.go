package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/Maig0l/karaoke/internal/audio"
)

// Tap is a streamer wrapper that copies everything played through it into
// 20ms interleaved PCM frames for the network listeners. It sits between
// the mixer and the speaker, so listeners hear exactly what the device plays.
type Tap struct {
	s       beep.Streamer
	mu      sync.Mutex
	pending []int16
	frames  chan []int16
	closed  bool
	dropped int
}

// NewTap wraps s.
func NewTap(s beep.Streamer) *Tap {
	return &Tap{
		s:       s,
		pending: make([]int16, 0, audio.FrameSamples),
		frames:  make(chan []int16, 100),
	}
}

// Stream passes audio through while capturing it.
func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return n, ok
	}
	for i := range n {
		t.pending = append(t.pending, audio.ClipInt16(samples[i][0]), audio.ClipInt16(samples[i][1]))
		if len(t.pending) == audio.FrameSamples {
			select {
			case t.frames <- t.pending:
			default:
				t.dropped++
			}
			t.pending = make([]int16, 0, audio.FrameSamples)
		}
	}
	return n, ok
}

// Err returns the underlying streamer's error.
func (t *Tap) Err() error {
	return t.s.Err()
}

// Frames returns the captured frames. The channel is closed by Close.
func (t *Tap) Frames() <-chan []int16 {
	return t.frames
}

// Dropped returns the number of frames lost because nobody was reading.
func (t *Tap) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close stops capturing and closes the frame channel.
func (t *Tap) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.frames)
	}
}

// PlaySpeaker plays source on the default audio device until ctx is done.
// The device clock drives the mixer; the returned channel carries a copy of
// the played audio for the broadcaster.
func PlaySpeaker(ctx context.Context, source beep.Streamer, buffer time.Duration) (<-chan []int16, error) {
	sr := beep.SampleRate(audio.SampleRate)
	if err := speaker.Init(sr, sr.N(buffer)); err != nil {
		return nil, fmt.Errorf("speaker init: %w", err)
	}
	tap := NewTap(source)
	speaker.Play(tap)
	log.Printf("Speaker output started (%v buffer)", buffer)

	go func() {
		<-ctx.Done()
		speaker.Clear()
		speaker.Close()
		tap.Close()
		log.Printf("Speaker output stopped (dropped %d frames)", tap.Dropped())
	}()
	return tap.Frames(), nil
}

// PlayPaced pulls source at real-time rate with no audio device attached,
// for headless hosts that only serve network listeners.
func PlayPaced(ctx context.Context, source beep.Streamer) <-chan []int16 {
	p := audio.NewPipeline(source)
	go p.Run(ctx)
	log.Printf("Paced output started (%v frames)", audio.FrameDuration)
	return p.Frames()
}
