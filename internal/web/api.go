// Package web serves the HTTP control API and the browser remote.
package web

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Maig0l/karaoke/internal/audio"
	"github.com/Maig0l/karaoke/internal/engine"
	"github.com/Maig0l/karaoke/internal/player"
	"github.com/Maig0l/karaoke/internal/track"
)

// IndexHTML is the browser remote served at "/".
//
//go:embed index.html
var IndexHTML []byte

// Controller is the engine command surface used by the API.
type Controller interface {
	Attach(paths []string) error
	Play() error
	Pause() error
	Stop() error
	TogglePlay() error
	SeekBegin()
	SeekEnd(position time.Duration) error
	SetChannelVolume(index int, perceptual float64) error
	SetMuted(muted bool)
	SetPitch(semitones int) error
	SetStretch(ratio float64) error
	SetPlaybackRate(rate float64) error
	Status() engine.Status
	Events() *engine.Hub
}

// API routes HTTP requests to a Controller.
type API struct {
	ctl       Controller
	listeners func() map[string]int
}

// NewAPI creates the API. listeners reports connected stream listeners per
// kind and may be nil.
func NewAPI(ctl Controller, listeners func() map[string]int) *API {
	return &API{ctl: ctl, listeners: listeners}
}

// Register adds the index page and every /api route to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(IndexHTML)
	})

	mux.HandleFunc("/api/status", a.status)
	mux.HandleFunc("/api/events", a.events)

	mux.HandleFunc("/api/attach", post(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Paths []string `json:"paths"`
		}
		if !decode(w, r, &req) {
			return
		}
		a.reply(w, a.ctl.Attach(req.Paths))
	}))
	mux.HandleFunc("/api/play", post(func(w http.ResponseWriter, r *http.Request) { a.reply(w, a.ctl.Play()) }))
	mux.HandleFunc("/api/pause", post(func(w http.ResponseWriter, r *http.Request) { a.reply(w, a.ctl.Pause()) }))
	mux.HandleFunc("/api/toggle", post(func(w http.ResponseWriter, r *http.Request) { a.reply(w, a.ctl.TogglePlay()) }))
	mux.HandleFunc("/api/stop", post(func(w http.ResponseWriter, r *http.Request) { a.reply(w, a.ctl.Stop()) }))

	mux.HandleFunc("/api/seek/begin", post(func(w http.ResponseWriter, r *http.Request) {
		a.ctl.SeekBegin()
		a.reply(w, nil)
	}))
	mux.HandleFunc("/api/seek/end", post(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PositionMs *int64 `json:"position_ms"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.PositionMs == nil {
			http.Error(w, "position_ms required", http.StatusBadRequest)
			return
		}
		a.reply(w, a.ctl.SeekEnd(time.Duration(*req.PositionMs)*time.Millisecond))
	}))

	mux.HandleFunc("/api/volume", post(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Channel int      `json:"channel"`
			Value   *float64 `json:"value"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Value == nil {
			http.Error(w, "value required", http.StatusBadRequest)
			return
		}
		a.reply(w, a.ctl.SetChannelVolume(req.Channel, *req.Value))
	}))
	mux.HandleFunc("/api/mute", post(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Muted bool `json:"muted"`
		}
		if !decode(w, r, &req) {
			return
		}
		a.ctl.SetMuted(req.Muted)
		a.reply(w, nil)
	}))

	mux.HandleFunc("/api/pitch", post(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Semitones *int `json:"semitones"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Semitones == nil {
			http.Error(w, "semitones required", http.StatusBadRequest)
			return
		}
		a.reply(w, a.ctl.SetPitch(*req.Semitones))
	}))
	mux.HandleFunc("/api/stretch", post(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ratio *float64 `json:"ratio"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Ratio == nil {
			http.Error(w, "ratio required", http.StatusBadRequest)
			return
		}
		a.reply(w, a.ctl.SetStretch(*req.Ratio))
	}))
	mux.HandleFunc("/api/rate", post(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Rate *float64 `json:"rate"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Rate == nil {
			http.Error(w, "rate required", http.StatusBadRequest)
			return
		}
		a.reply(w, a.ctl.SetPlaybackRate(*req.Rate))
	}))
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}
	resp := struct {
		engine.Status
		Listeners map[string]int `json:"listeners"`
	}{Status: a.ctl.Status(), Listeners: map[string]int{}}
	if a.listeners != nil {
		resp.Listeners = a.listeners()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(resp)
}

// events streams engine events as Server-Sent Events.
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	hub := a.ctl.Events()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)
	log.Printf("Event listener connected (total: %d)", hub.Len())

	st := a.ctl.Status()
	writeEvent(w, engine.Event{Type: engine.StateChanged, State: st.State})
	writeEvent(w, engine.Event{Type: engine.DurationChanged, Millis: st.DurationMs})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

// reply writes the outcome of a command: ok with the new status, or the error
// mapped to a status code.
func (a *API) reply(w http.ResponseWriter, err error) {
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}
	st := a.ctl.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ok":        true,
		"state":     st.State,
		"timestamp": st.Timestamp,
	})
}

func statusCode(err error) int {
	var (
		cce *player.ChannelCountError
		nme *player.NoMediaError
		rce *player.RateChangeError
		de  *audio.DecodeError
		epe *track.EffectProcessingError
	)
	switch {
	case errors.Is(err, engine.ErrInvalid), errors.Is(err, player.ErrRateRange):
		return http.StatusBadRequest
	case errors.As(err, &cce), errors.As(err, &nme), errors.As(err, &rce),
		errors.As(err, &de), errors.As(err, &epe), errors.Is(err, player.ErrChannelIndex):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
