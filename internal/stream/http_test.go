package stream

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestHTTPHandlerDefaults(t *testing.T) {
	h := NewHTTPHandler(NewBroadcaster(), "", "")
	if h.bitrate != "192k" || h.ffmpeg != "ffmpeg" {
		t.Errorf("defaults = %q %q", h.bitrate, h.ffmpeg)
	}
}

func TestHTTPHandlerWithoutEncoder(t *testing.T) {
	b := NewBroadcaster()
	b.SetNowPlaying(func() string { return "song + song-vocals [pitch -2]" })
	h := NewHTTPHandler(b, "128k", filepath.Join(t.TempDir(), "no-ffmpeg"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("ICY-Description"); got != "song + song-vocals [pitch -2]" {
		t.Errorf("ICY-Description = %q", got)
	}
	if got := rec.Header().Get("ICY-BR"); got != "128" {
		t.Errorf("ICY-BR = %q, want 128", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %d bytes, want none", rec.Body.Len())
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", b.ListenerCount())
	}
}

func TestWebRTCHandlerRejects(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), 0)
	if h.bitrate != 128000 {
		t.Errorf("bitrate = %d, want 128000", h.bitrate)
	}

	tests := []struct {
		method string
		body   string
		want   int
	}{
		{http.MethodOptions, "", http.StatusOK},
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "{not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/offer", bytes.NewBufferString(tt.body)))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.method, rec.Code, tt.want)
		}
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d, want 0", h.PeerCount())
	}
	h.Close()
}
