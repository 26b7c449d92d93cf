package shell

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Maig0l/karaoke/internal/engine"
)

type stubEngine struct {
	calls []string
	err   error

	paths  []string
	seek   time.Duration
	ch     int
	vol    float64
	muted  bool
	pitch  int
	ratio  float64
	rate   float64
	status engine.Status
}

func (s *stubEngine) record(name string) error {
	s.calls = append(s.calls, name)
	return s.err
}

func (s *stubEngine) Play() error           { return s.record("play") }
func (s *stubEngine) Pause() error          { return s.record("pause") }
func (s *stubEngine) Stop() error           { return s.record("stop") }
func (s *stubEngine) TogglePlay() error     { return s.record("toggle") }
func (s *stubEngine) SeekBegin()            { s.record("seek_begin") }
func (s *stubEngine) Status() engine.Status { return s.status }
func (s *stubEngine) Events() *engine.Hub   { return engine.NewHub() }

func (s *stubEngine) Attach(p []string) error {
	s.paths = p
	return s.record("attach")
}

func (s *stubEngine) SetMuted(m bool) {
	s.muted = m
	s.record("mute")
}

func (s *stubEngine) SeekEnd(d time.Duration) error {
	s.seek = d
	return s.record("seek_end")
}

func (s *stubEngine) SetChannelVolume(i int, v float64) error {
	s.ch, s.vol = i, v
	return s.record("vol")
}

func (s *stubEngine) SetPitch(n int) error {
	s.pitch = n
	return s.record("pitch")
}

func (s *stubEngine) SetStretch(r float64) error {
	s.ratio = r
	return s.record("stretch")
}

func (s *stubEngine) SetPlaybackRate(r float64) error {
	s.rate = r
	return s.record("rate")
}

func newConsole(eng Engine) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return &Console{eng: eng, out: &out}, &out
}

func TestHandleCommands(t *testing.T) {
	eng := &stubEngine{}
	c, out := newConsole(eng)

	lines := []string{
		"open inst.flac vocals.flac",
		"play", "PAUSE", "toggle", "stop",
		"seek 1:05",
		"vol 1 35",
		"mute",
		"pitch -2",
		"stretch 1.5",
		"rate 0.8",
		"   ",
	}
	for _, l := range lines {
		if !c.Handle(l) {
			t.Fatalf("Handle(%q) asked to exit", l)
		}
	}
	want := []string{"attach", "play", "pause", "toggle", "stop", "seek_begin", "seek_end", "vol", "mute", "pitch", "stretch", "rate"}
	if strings.Join(eng.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v\nwant %v", eng.calls, want)
	}
	if len(eng.paths) != 2 || eng.paths[0] != "inst.flac" {
		t.Errorf("paths = %v", eng.paths)
	}
	if eng.seek != 65*time.Second {
		t.Errorf("seek = %v, want 1m5s", eng.seek)
	}
	if eng.ch != 1 || eng.vol != 35 || !eng.muted || eng.pitch != -2 || eng.ratio != 1.5 || eng.rate != 0.8 {
		t.Errorf("engine = %+v", eng)
	}
	if strings.Contains(out.String(), "error:") {
		t.Errorf("unexpected error output:\n%s", out)
	}
}

func TestHandleExit(t *testing.T) {
	c, _ := newConsole(&stubEngine{})
	for _, l := range []string{"exit", "quit", "q"} {
		if c.Handle(l) {
			t.Errorf("Handle(%q) = true, want false", l)
		}
	}
}

func TestHandleErrors(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"open", "usage: open"},
		{"vol 1", "usage: vol"},
		{"vol x 10", "channel:"},
		{"vol 1 loud", "volume:"},
		{"pitch", "expected one argument"},
		{"pitch up", "invalid syntax"},
		{"seek 1:75", "bad seconds"},
		{"seek -5", "bad position"},
		{"dance", `unknown command "dance"`},
	}
	for _, tt := range tests {
		eng := &stubEngine{}
		c, out := newConsole(eng)
		c.Handle(tt.line)
		if !strings.Contains(out.String(), "error: ") || !strings.Contains(out.String(), tt.want) {
			t.Errorf("%q: output %q, want %q", tt.line, out, tt.want)
		}
		if len(eng.calls) != 0 {
			t.Errorf("%q: engine called %v", tt.line, eng.calls)
		}
	}
}

func TestHandleReportsEngineErrors(t *testing.T) {
	eng := &stubEngine{err: errors.New("channel 1: no media loaded")}
	c, out := newConsole(eng)
	c.Handle("play")
	if !strings.Contains(out.String(), "error: channel 1: no media loaded") {
		t.Errorf("output = %q", out)
	}
}

func TestStatusOutput(t *testing.T) {
	eng := &stubEngine{status: engine.Status{
		State:     "playing",
		Timestamp: "00:42 / 03:10",
		Pitch:     2,
		Stretch:   1,
		Rate:      1,
		Muted:     true,
		Channels: []engine.ChannelStatus{
			{Index: 0, Path: "inst.flac", Loaded: true, State: "playing", Volume: 100, Effect: "pitch+2_stretch1.000", Cached: 2},
			{Index: 1, State: "stopped"},
		},
	}}
	c, out := newConsole(eng)
	c.Handle("status")
	got := out.String()
	for _, want := range []string{"00:42 / 03:10", "pitch +2", "muted", "inst.flac", "(no media)", "2 cached"} {
		if !strings.Contains(got, want) {
			t.Errorf("status output lacks %q:\n%s", want, got)
		}
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5000", 5 * time.Second, false},
		{"0", 0, false},
		{"1:05", 65 * time.Second, false},
		{"01:05.5", 65500 * time.Millisecond, false},
		{"10:00", 10 * time.Minute, false},
		{"1:60", 0, true},
		{"a:10", 0, true},
		{"-1", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePosition(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePosition(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePosition(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAudioFilesCompletion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"inst.flac", "vocals.WAV", "notes.txt"} {
		if err := os.WriteFile(dir+"/"+name, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	os.Mkdir(dir+"/sub.flac", 0o755)
	t.Chdir(dir)

	got := audioFiles("")
	if len(got) != 2 || got[0] != "inst.flac" || got[1] != "vocals.WAV" {
		t.Errorf("audioFiles = %v", got)
	}
	if Completer() == nil {
		t.Error("Completer returned nil")
	}
}
