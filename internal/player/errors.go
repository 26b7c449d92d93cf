package player

import (
	"errors"
	"fmt"
)

// ErrChannelIndex is wrapped by operations given a channel index outside the
// attached set.
var ErrChannelIndex = errors.New("channel index out of range")

// ErrRateRange is wrapped by a RateChangeError for a rate outside
// [MinRate, MaxRate]. Such a request leaves the transport untouched.
var ErrRateRange = errors.New("playback rate out of range")

// ChannelCountError rejects an attach with zero channels or more than the
// configured maximum.
type ChannelCountError struct {
	Count int
	Max   int
}

func (e *ChannelCountError) Error() string {
	return fmt.Sprintf("cannot attach %d tracks: need between 1 and %d", e.Count, e.Max)
}

// NoMediaError reports a transport command addressed to a channel that has no
// buffer. The other channels still carried out the command.
type NoMediaError struct {
	Channel int
}

func (e *NoMediaError) Error() string {
	return fmt.Sprintf("channel %d: no media loaded", e.Channel)
}

// RateChangeError reports a playback rate change that could not be completed.
// Channels that could not be resumed are left stopped.
type RateChangeError struct {
	Rate float64
	Err  error
}

func (e *RateChangeError) Error() string {
	return fmt.Sprintf("set playback rate %g: %v", e.Rate, e.Err)
}

func (e *RateChangeError) Unwrap() error { return e.Err }
