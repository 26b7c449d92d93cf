// Package player keeps a set of playback channels locked to one transport
// state and one time base, and mixes them into a single stereo stream.
package player

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Maig0l/karaoke/internal/audio"
)

// DefaultMaxChannels is the channel limit used when none is configured.
const DefaultMaxChannels = 2

// Playback rate limits.
const (
	MinRate = 0.25
	MaxRate = 2.0
)

// Synchronizer owns N channels. Channel 0 is the master: its transport state
// drives every follower in the same call, and position and duration queries
// are answered from it.
//
// All methods are safe for concurrent use. Transport commands are applied to
// the master first and then to each follower, under a single lock, so the
// mixer never observes a follower ahead of its master.
type Synchronizer struct {
	mu          sync.Mutex
	maxChannels int
	fadeFrames  int
	channels    []*Channel
	syncActive  bool
	rate        float64
	muted       bool
	onEnd       func()
}

// NewSynchronizer creates a synchronizer accepting up to maxChannels
// channels. Channels fade in over fade whenever they start playing.
func NewSynchronizer(maxChannels int, fade time.Duration) *Synchronizer {
	if maxChannels <= 0 {
		maxChannels = DefaultMaxChannels
	}
	return &Synchronizer{
		maxChannels: maxChannels,
		fadeFrames:  int(audio.DurationToFrames(fade, audio.SampleRate)),
		syncActive:  true,
		rate:        1,
	}
}

// MaxChannels returns the configured channel limit.
func (s *Synchronizer) MaxChannels() int { return s.maxChannels }

// OnEnd registers fn to be called when the master runs out of audio and all
// channels have been stopped. fn runs without the lock held.
func (s *Synchronizer) OnEnd(fn func()) {
	s.mu.Lock()
	s.onEnd = fn
	s.mu.Unlock()
}

// Attach replaces the channel set with one channel per buffer. A nil buffer
// yields a channel without media. The playback rate and mute flag carry over.
func (s *Synchronizer) Attach(bufs []*audio.Buffer) error {
	if len(bufs) == 0 || len(bufs) > s.maxChannels {
		return &ChannelCountError{Count: len(bufs), Max: s.maxChannels}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make([]*Channel, len(bufs))
	for i, b := range bufs {
		s.channels[i] = newChannel(b, s.rate, s.muted, s.fadeFrames)
	}
	s.syncActive = true
	return nil
}

// Len returns the number of attached channels.
func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// fanOut applies op to the master and then to every follower. Channels that
// report no media are collected as NoMediaErrors; the rest still transition.
func (s *Synchronizer) fanOut(op func(*Channel) error) error {
	var errs []error
	for i, c := range s.channels {
		if err := op(c); err != nil {
			errs = append(errs, &NoMediaError{Channel: i})
		}
	}
	return errors.Join(errs...)
}

// Play starts every channel.
func (s *Synchronizer) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playLocked()
}

// Pause pauses every playing channel.
func (s *Synchronizer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fanOut((*Channel).pause)
}

// Stop stops every channel and rewinds it to the start.
func (s *Synchronizer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fanOut((*Channel).stop)
}

// TogglePlay pauses when the master is playing and plays otherwise.
func (s *Synchronizer) TogglePlay() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() == Playing {
		return s.fanOut((*Channel).pause)
	}
	return s.playLocked()
}

// SeekBegin suspends position reporting while the user drags a position
// control.
func (s *Synchronizer) SeekBegin() {
	s.mu.Lock()
	s.syncActive = false
	s.mu.Unlock()
}

// SeekEnd moves every channel to position and resumes position reporting.
func (s *Synchronizer) SeekEnd(position time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		c.setPosition(position)
	}
	s.syncActive = true
}

// PositionSyncActive reports whether position updates should be published.
func (s *Synchronizer) PositionSyncActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncActive
}

// SetVolume sets the linear gain (0..1) of one channel.
func (s *Synchronizer) SetVolume(index int, linear float64) error {
	if math.IsNaN(linear) {
		return errors.New("volume is NaN")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channelLocked(index)
	if err != nil {
		return err
	}
	c.volume = math.Max(0, math.Min(linear, 1))
	return nil
}

// SetMuted mutes or unmutes the master and mirrors the flag to every follower.
func (s *Synchronizer) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
	for _, c := range s.channels {
		c.muted = muted
	}
}

// Muted reports the master's mute flag.
func (s *Synchronizer) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Rate returns the current playback rate.
func (s *Synchronizer) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetPlaybackRate applies rate to every channel. The channels are stopped,
// the rate is applied, each channel is put back at its own fractional
// position, and playback resumes if it was running before. A paused set
// stays paused at the restored position.
//
// A rate outside [MinRate, MaxRate] is rejected with a RateChangeError and
// nothing changes. Channels without media are reported as NoMediaErrors
// while the others resume.
func (s *Synchronizer) SetPlaybackRate(rate float64) error {
	if math.IsNaN(rate) || rate < MinRate || rate > MaxRate {
		return &RateChangeError{Rate: rate, Err: fmt.Errorf("%w: must be in [%g, %g]", ErrRateRange, MinRate, MaxRate)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prior, fracs := s.haltLocked()
	s.rate = rate
	for _, c := range s.channels {
		c.rate = rate
	}
	return s.resumeLocked(prior, fracs)
}

// OnTransformApplied installs a newly processed buffer into channel index.
// The playing position of every channel is kept as a fraction of its own
// duration, since a stretch changes the total length: all channels are
// stopped, the buffer is swapped, every channel is moved back to its
// fraction, and playback resumes if it was running.
func (s *Synchronizer) OnTransformApplied(index int, buf *audio.Buffer) error {
	if buf == nil {
		return errors.New("transform produced no buffer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.channelLocked(index)
	if err != nil {
		return err
	}
	prior, fracs := s.haltLocked()
	c.buf = buf
	return s.resumeLocked(prior, fracs)
}

// haltLocked stops all channels in place and returns the transport state and
// the fractional position of each channel.
func (s *Synchronizer) haltLocked() (State, []float64) {
	prior := s.stateLocked()
	fracs := make([]float64, len(s.channels))
	for i, c := range s.channels {
		fracs[i] = c.fraction()
		c.halt()
	}
	return prior, fracs
}

func (s *Synchronizer) resumeLocked(prior State, fracs []float64) error {
	for i, c := range s.channels {
		c.setFraction(fracs[i])
	}
	switch prior {
	case Playing:
		return s.fanOut((*Channel).play)
	case Paused:
		for _, c := range s.channels {
			if c.buf != nil {
				c.state = Paused
			}
		}
	}
	return nil
}

// playLocked starts every channel. When the reference channel sits at its
// end the whole set is rewound first; a shorter follower that has run out
// stays where it is and plays silence.
func (s *Synchronizer) playLocked() error {
	if ref := s.referenceLocked(); ref != nil && ref.atEnd() {
		for _, c := range s.channels {
			c.pos = 0
		}
	}
	return s.fanOut((*Channel).play)
}

// referenceLocked returns the channel that defines the time base: the master,
// or the first channel with media when the master has none.
func (s *Synchronizer) referenceLocked() *Channel {
	for _, c := range s.channels {
		if c.buf != nil {
			return c
		}
	}
	return nil
}

func (s *Synchronizer) stateLocked() State {
	if ref := s.referenceLocked(); ref != nil {
		return ref.state
	}
	return Stopped
}

func (s *Synchronizer) channelLocked(index int) (*Channel, error) {
	if index < 0 || index >= len(s.channels) {
		return nil, fmt.Errorf("channel %d of %d: %w", index, len(s.channels), ErrChannelIndex)
	}
	return s.channels[index], nil
}

// State returns the master's transport state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// ChannelState returns the transport state of one channel.
func (s *Synchronizer) ChannelState(index int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channelLocked(index)
	if err != nil {
		return Stopped, err
	}
	return c.state, nil
}

// Position returns the master's playing position.
func (s *Synchronizer) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref := s.referenceLocked(); ref != nil {
		return ref.position()
	}
	return 0
}

// Duration returns the length of the master's buffer.
func (s *Synchronizer) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref := s.referenceLocked(); ref != nil {
		return ref.duration()
	}
	return 0
}

// Channels returns a snapshot of every channel.
func (s *Synchronizer) Channels() []ChannelStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelStatus, len(s.channels))
	for i, c := range s.channels {
		out[i] = c.status()
	}
	return out
}

// Mix renders the next len(out) output frames at audio.SampleRate, summing
// every playing channel. When the master runs out of audio every channel is
// stopped and rewound.
func (s *Synchronizer) Mix(out [][2]float64) {
	for i := range out {
		out[i] = [2]float64{}
	}

	s.mu.Lock()
	ref := s.referenceLocked()
	ended := false
	for _, c := range s.channels {
		if c.mix(out) && c == ref {
			ended = true
		}
	}
	var onEnd func()
	if ended {
		for _, c := range s.channels {
			c.stop()
		}
		onEnd = s.onEnd
	}
	s.mu.Unlock()

	if onEnd != nil {
		onEnd()
	}
}
