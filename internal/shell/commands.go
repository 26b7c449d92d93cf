package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Handle executes one command line. It returns false when the console should
// exit.
func (c *Console) Handle(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "exit", "quit", "q":
		return false
	case "help", "?":
		c.printHelp()
	case "open":
		if len(args) == 0 {
			err = errors.New("usage: open <path>...")
			break
		}
		if err = c.eng.Attach(args); err == nil {
			c.printStatus()
		}
	case "play":
		err = c.eng.Play()
	case "pause":
		err = c.eng.Pause()
	case "toggle":
		err = c.eng.TogglePlay()
	case "stop":
		err = c.eng.Stop()
	case "seek":
		var d time.Duration
		if d, err = oneArg(args, ParsePosition); err == nil {
			c.eng.SeekBegin()
			err = c.eng.SeekEnd(d)
		}
	case "vol", "volume":
		if len(args) != 2 {
			err = errors.New("usage: vol <channel> <0..100>")
			break
		}
		var ch int
		var v float64
		if ch, err = strconv.Atoi(args[0]); err != nil {
			err = fmt.Errorf("channel: %w", err)
			break
		}
		if v, err = strconv.ParseFloat(args[1], 64); err != nil {
			err = fmt.Errorf("volume: %w", err)
			break
		}
		err = c.eng.SetChannelVolume(ch, v)
	case "mute":
		c.eng.SetMuted(true)
	case "unmute":
		c.eng.SetMuted(false)
	case "pitch":
		var n int
		if n, err = oneArg(args, strconv.Atoi); err == nil {
			err = c.eng.SetPitch(n)
		}
	case "stretch":
		var r float64
		if r, err = oneArg(args, parseFloat); err == nil {
			err = c.eng.SetStretch(r)
		}
	case "rate":
		var r float64
		if r, err = oneArg(args, parseFloat); err == nil {
			err = c.eng.SetPlaybackRate(r)
		}
	case "status":
		c.printStatus()
	default:
		err = fmt.Errorf("unknown command %q (try help)", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return true
}

func oneArg[T any](args []string, parse func(string) (T, error)) (T, error) {
	var zero T
	if len(args) != 1 {
		return zero, fmt.Errorf("expected one argument, got %d", len(args))
	}
	return parse(args[0])
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// ParsePosition parses a position given as milliseconds ("5000") or as
// minutes and seconds ("1:05", "01:05.5").
func ParsePosition(s string) (time.Duration, error) {
	if m, sec, ok := strings.Cut(s, ":"); ok {
		mins, err := strconv.Atoi(m)
		if err != nil || mins < 0 {
			return 0, fmt.Errorf("bad minutes in %q", s)
		}
		secs, err := strconv.ParseFloat(sec, 64)
		if err != nil || secs < 0 || secs >= 60 {
			return 0, fmt.Errorf("bad seconds in %q", s)
		}
		return time.Duration(mins)*time.Minute + time.Duration(secs*float64(time.Second)), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("bad position %q", s)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (c *Console) printStatus() {
	st := c.eng.Status()
	fmt.Fprintf(c.out, "%-8s %s  pitch %+d  stretch %.2f  rate %.2f", st.State, st.Timestamp, st.Pitch, st.Stretch, st.Rate)
	if st.Muted {
		fmt.Fprintf(c.out, "  muted")
	}
	fmt.Fprintln(c.out)
	for _, ch := range st.Channels {
		path := ch.Path
		if !ch.Loaded {
			path = "(no media)"
		}
		fmt.Fprintf(c.out, "  [%d] %-8s vol %3.0f  %-22s %d cached  %s\n",
			ch.Index, ch.State, ch.Volume, ch.Effect, ch.Cached, path)
	}
}
