package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Maig0l/karaoke/internal/audio"
)

// Status is a point-in-time view of the engine.
type Status struct {
	State      string          `json:"state"`
	PositionMs int64           `json:"position_ms"`
	DurationMs int64           `json:"duration_ms"`
	Timestamp  string          `json:"timestamp"`
	Seeking    bool            `json:"seeking"`
	Pitch      int             `json:"pitch"`
	Stretch    float64         `json:"stretch"`
	Rate       float64         `json:"rate"`
	Muted      bool            `json:"muted"`
	Channels   []ChannelStatus `json:"channels"`
}

// ChannelStatus describes one attached channel.
type ChannelStatus struct {
	Index      int     `json:"index"`
	Path       string  `json:"path,omitempty"`
	Loaded     bool    `json:"loaded"`
	State      string  `json:"state"`
	PositionMs int64   `json:"position_ms"`
	DurationMs int64   `json:"duration_ms"`
	Volume     float64 `json:"volume"`
	Gain       float64 `json:"gain"`
	Muted      bool    `json:"muted"`
	Effect     string  `json:"effect"`
	Cached     int     `json:"cached"`
}

// Status returns a snapshot of the engine and its channels.
func (e *Engine) Status() Status {
	e.mu.Lock()
	tracks := e.tracks
	volumes := append([]float64(nil), e.volumes...)
	pitch, stretch := e.pitch, e.stretch
	e.mu.Unlock()

	s := e.synchronizer
	pos, dur := s.Position(), s.Duration()
	st := Status{
		State:      s.State().String(),
		PositionMs: pos.Milliseconds(),
		DurationMs: dur.Milliseconds(),
		Timestamp:  audio.FormatTimestamp(pos, dur),
		Seeking:    !s.PositionSyncActive(),
		Pitch:      pitch,
		Stretch:    stretch,
		Rate:       s.Rate(),
		Muted:      s.Muted(),
		Channels:   []ChannelStatus{},
	}
	for i, cs := range s.Channels() {
		c := ChannelStatus{
			Index:      i,
			Loaded:     cs.Loaded,
			State:      cs.State.String(),
			PositionMs: cs.Position.Milliseconds(),
			DurationMs: cs.Duration.Milliseconds(),
			Gain:       cs.Volume,
			Muted:      cs.Muted,
		}
		if i < len(volumes) {
			c.Volume = volumes[i]
		}
		if i < len(tracks) {
			c.Path = tracks[i].Path()
			c.Effect = tracks[i].Key().String()
			c.Cached = tracks[i].CacheLen()
		}
		st.Channels = append(st.Channels, c)
	}
	return st
}

// Title names what is playing: the attached files without extension joined
// by " + ", followed by the pitch and stretch when they are not neutral.
// It is empty when nothing is attached.
func (e *Engine) Title() string {
	e.mu.Lock()
	tracks := e.tracks
	pitch, stretch := e.pitch, e.stretch
	e.mu.Unlock()

	var names []string
	for _, t := range tracks {
		if p := t.Path(); p != "" {
			names = append(names, strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)))
		}
	}
	if len(names) == 0 {
		return ""
	}
	title := strings.Join(names, " + ")
	if pitch != 0 {
		title += fmt.Sprintf(" [pitch %+d]", pitch)
	}
	if stretch != 1 {
		title += fmt.Sprintf(" [stretch %g]", stretch)
	}
	return title
}
