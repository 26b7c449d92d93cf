package web

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Maig0l/karaoke/internal/audio"
	"github.com/Maig0l/karaoke/internal/engine"
	"github.com/Maig0l/karaoke/internal/player"
)

// stubController records commands and returns a preset error.
type stubController struct {
	calls []string
	err   error
	hub   *engine.Hub

	paths   []string
	seek    time.Duration
	volume  float64
	channel int
	muted   bool
	pitch   int
	stretch float64
	rate    float64
}

func newStub() *stubController { return &stubController{hub: engine.NewHub()} }

func (s *stubController) record(name string) error {
	s.calls = append(s.calls, name)
	return s.err
}

func (s *stubController) Attach(paths []string) error {
	s.paths = paths
	return s.record("attach")
}

func (s *stubController) Play() error       { return s.record("play") }
func (s *stubController) Pause() error      { return s.record("pause") }
func (s *stubController) Stop() error       { return s.record("stop") }
func (s *stubController) TogglePlay() error { return s.record("toggle") }
func (s *stubController) SeekBegin()        { s.record("seek_begin") }

func (s *stubController) SeekEnd(d time.Duration) error {
	s.seek = d
	return s.record("seek_end")
}

func (s *stubController) SetChannelVolume(i int, v float64) error {
	s.channel, s.volume = i, v
	return s.record("volume")
}

func (s *stubController) SetMuted(m bool) {
	s.muted = m
	s.record("mute")
}

func (s *stubController) SetPitch(n int) error {
	s.pitch = n
	return s.record("pitch")
}

func (s *stubController) SetStretch(r float64) error {
	s.stretch = r
	return s.record("stretch")
}

func (s *stubController) SetPlaybackRate(r float64) error {
	s.rate = r
	return s.record("rate")
}

func (s *stubController) Events() *engine.Hub { return s.hub }

func (s *stubController) Status() engine.Status {
	return engine.Status{State: "playing", PositionMs: 1500, DurationMs: 60000, Timestamp: "00:01 / 01:00"}
}

func serve(t *testing.T, ctl Controller) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewAPI(ctl, func() map[string]int { return map[string]int{"http": 2} }).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestCommandsReachController(t *testing.T) {
	ctl := newStub()
	mux := serve(t, ctl)

	tests := []struct {
		path, body, call string
	}{
		{"/api/attach", `{"paths":["inst.flac","vocals.flac"]}`, "attach"},
		{"/api/play", "", "play"},
		{"/api/pause", "", "pause"},
		{"/api/toggle", "", "toggle"},
		{"/api/stop", "", "stop"},
		{"/api/seek/begin", "", "seek_begin"},
		{"/api/seek/end", `{"position_ms":5000}`, "seek_end"},
		{"/api/volume", `{"channel":1,"value":40}`, "volume"},
		{"/api/mute", `{"muted":true}`, "mute"},
		{"/api/pitch", `{"semitones":-3}`, "pitch"},
		{"/api/stretch", `{"ratio":1.25}`, "stretch"},
		{"/api/rate", `{"rate":0.75}`, "rate"},
	}
	for _, tt := range tests {
		rec := do(mux, http.MethodPost, tt.path, tt.body)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d: %s", tt.path, rec.Code, rec.Body)
			continue
		}
		if got := ctl.calls[len(ctl.calls)-1]; got != tt.call {
			t.Errorf("%s: called %q, want %q", tt.path, got, tt.call)
		}
		if !strings.Contains(rec.Body.String(), `"ok":true`) {
			t.Errorf("%s: body %s", tt.path, rec.Body)
		}
	}

	if len(ctl.paths) != 2 || ctl.paths[1] != "vocals.flac" {
		t.Errorf("paths = %v", ctl.paths)
	}
	if ctl.seek != 5*time.Second {
		t.Errorf("seek = %v, want 5s", ctl.seek)
	}
	if ctl.channel != 1 || ctl.volume != 40 {
		t.Errorf("volume = %d/%g", ctl.channel, ctl.volume)
	}
	if !ctl.muted || ctl.pitch != -3 || ctl.stretch != 1.25 || ctl.rate != 0.75 {
		t.Errorf("stub = %+v", ctl)
	}
}

func TestBadRequests(t *testing.T) {
	ctl := newStub()
	mux := serve(t, ctl)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/api/play", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/status", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/pitch", "{", http.StatusBadRequest},
		{http.MethodPost, "/api/pitch", `{}`, http.StatusBadRequest},
		{http.MethodPost, "/api/seek/end", `{}`, http.StatusBadRequest},
		{http.MethodPost, "/api/volume", `{"channel":1}`, http.StatusBadRequest},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(mux, tt.method, tt.path, tt.body); rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
	if len(ctl.calls) != 0 {
		t.Errorf("controller called for bad requests: %v", ctl.calls)
	}
}

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", errors.Join(engine.ErrInvalid), http.StatusBadRequest},
		{"rate range", &player.RateChangeError{Rate: 9, Err: player.ErrRateRange}, http.StatusBadRequest},
		{"channel count", &player.ChannelCountError{Count: 3, Max: 2}, http.StatusConflict},
		{"no media", errors.Join(&player.NoMediaError{Channel: 1}), http.StatusConflict},
		{"decode", &audio.DecodeError{Path: "x.ogg", Err: errors.New("bad")}, http.StatusConflict},
		{"channel index", player.ErrChannelIndex, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		ctl := newStub()
		ctl.err = tt.err
		rec := do(serve(t, ctl), http.MethodPost, "/api/play", "")
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
		if !strings.Contains(rec.Body.String(), tt.err.Error()) {
			t.Errorf("%s: body %q lacks error message", tt.name, rec.Body)
		}
	}
}

func TestStatus(t *testing.T) {
	rec := do(serve(t, newStub()), http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`"state":"playing"`, `"position_ms":1500`, `"timestamp":"00:01 / 01:00"`, `"listeners":{"http":2}`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s lacks %s", body, want)
		}
	}
}

func TestIndex(t *testing.T) {
	rec := do(serve(t, newStub()), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "EventSource") {
		t.Errorf("index: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestEventsStream(t *testing.T) {
	ctl := newStub()
	srv := httptest.NewServer(serve(t, ctl))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); strings.HasPrefix(l, "data: ") {
				return l
			}
		}
		t.Fatal("stream ended")
		return ""
	}

	if got := next(); !strings.Contains(got, `"state":"playing"`) {
		t.Errorf("first event = %s", got)
	}
	if got := next(); !strings.Contains(got, `"ms":60000`) {
		t.Errorf("second event = %s", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctl.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ctl.hub.Publish(engine.Event{Type: engine.TransformFailed, Channel: 1, Reason: "boom"})
	if got := next(); !strings.Contains(got, `"type":"transform_failed"`) || !strings.Contains(got, `"channel":1`) {
		t.Errorf("published event = %s", got)
	}
}
