package player

import (
	"errors"
	"math"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/interp"

	"github.com/Maig0l/karaoke/internal/audio"
)

// State is the transport state of a channel.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

var errNoMedia = errors.New("no media")

// Channel is one playback instance: a buffer plus transport state, a read
// cursor and mixing parameters. Channels are driven by a Synchronizer and
// are not safe for concurrent use on their own.
type Channel struct {
	buf    *audio.Buffer
	state  State
	pos    float64 // frames into buf
	volume float64
	muted  bool
	rate   float64
	fade   audio.Fade
	fadeN  int // fade-in length in output frames
}

func newChannel(buf *audio.Buffer, rate float64, muted bool, fadeN int) *Channel {
	return &Channel{buf: buf, volume: 1, rate: rate, muted: muted, fadeN: fadeN}
}

func (c *Channel) play() error {
	if c.buf == nil {
		return errNoMedia
	}
	if c.state != Playing {
		c.fade = audio.NewFade(c.fadeN)
	}
	c.state = Playing
	return nil
}

func (c *Channel) pause() error {
	if c.buf == nil {
		return errNoMedia
	}
	if c.state == Playing {
		c.state = Paused
	}
	return nil
}

func (c *Channel) stop() error {
	c.state = Stopped
	c.pos = 0
	if c.buf == nil {
		return errNoMedia
	}
	return nil
}

// atEnd reports whether the cursor has passed the last frame.
func (c *Channel) atEnd() bool {
	return c.buf != nil && c.pos >= c.frames()
}

// halt stops the channel keeping its cursor.
func (c *Channel) halt() { c.state = Stopped }

func (c *Channel) frames() float64 {
	if c.buf == nil {
		return 0
	}
	return float64(c.buf.Frames())
}

// fraction returns the cursor as a fraction of the buffer length.
func (c *Channel) fraction() float64 {
	n := c.frames()
	if n == 0 {
		return 0
	}
	return math.Min(c.pos/n, 1)
}

func (c *Channel) setFraction(f float64) {
	c.pos = f * c.frames()
}

func (c *Channel) position() time.Duration {
	if c.buf == nil {
		return 0
	}
	return time.Duration(c.pos / float64(c.buf.SampleRate()) * float64(time.Second))
}

func (c *Channel) setPosition(d time.Duration) {
	if c.buf == nil {
		return
	}
	c.pos = math.Max(0, math.Min(audio.DurationToFrames(d, c.buf.SampleRate()), c.frames()))
}

func (c *Channel) duration() time.Duration {
	if c.buf == nil {
		return 0
	}
	return c.buf.Duration()
}

func (c *Channel) gain() float64 {
	if c.muted {
		return 0
	}
	return c.volume
}

// mix adds the channel's contribution to out and advances the cursor. It
// reports whether the cursor has passed the end of the buffer.
func (c *Channel) mix(out [][2]float64) bool {
	if c.buf == nil || c.state != Playing {
		return false
	}
	n := c.frames()
	step := c.rate * float64(c.buf.SampleRate()) / audio.SampleRate
	g := c.gain()
	for i := range out {
		if c.pos >= n {
			return true
		}
		f := c.fade.Next() * g
		if f != 0 {
			out[i][0] += f * c.sample(0)
			out[i][1] += f * c.sample(1)
		}
		c.pos += step
	}
	return c.pos >= n
}

func (c *Channel) sample(ch int) float64 {
	i := int(c.pos)
	t := c.pos - float64(i)
	x0 := c.buf.At(ch, i)
	if t == 0 {
		return x0
	}
	return interp.Hermite4(t, c.buf.At(ch, i-1), x0, c.buf.At(ch, i+1), c.buf.At(ch, i+2))
}

// ChannelStatus is a snapshot of one channel.
type ChannelStatus struct {
	State    State
	Loaded   bool
	Position time.Duration
	Duration time.Duration
	Volume   float64
	Muted    bool
	Rate     float64
}

func (c *Channel) status() ChannelStatus {
	return ChannelStatus{
		State:    c.state,
		Loaded:   c.buf != nil,
		Position: c.position(),
		Duration: c.duration(),
		Volume:   c.volume,
		Muted:    c.muted,
		Rate:     c.rate,
	}
}
