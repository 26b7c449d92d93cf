// Package engine is the command surface used by user interfaces. It loads
// tracks, routes transport commands to the synchronizer, runs effect
// recomputes on a worker pool and publishes events about all of it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Maig0l/karaoke/internal/audio"
	"github.com/Maig0l/karaoke/internal/effects"
	"github.com/Maig0l/karaoke/internal/player"
	"github.com/Maig0l/karaoke/internal/track"
)

// ErrInvalid marks a command argument outside its accepted range.
var ErrInvalid = errors.New("invalid argument")

// Options configures an Engine.
type Options struct {
	MaxChannels      int
	Workers          int
	PositionInterval time.Duration
	Fade             time.Duration
}

// Engine coordinates tracks, the synchronizer and the event hub.
type Engine struct {
	proc         effects.Processor
	opts         Options
	synchronizer *player.Synchronizer
	mixer        *player.Mixer
	pool         *Pool
	hub          *Hub

	mu      sync.Mutex // guards the fields below; serializes attach
	tracks  []*track.Track
	volumes []float64 // perceptual 0..100
	pitch   int
	stretch float64

	durMu   sync.Mutex
	lastDur time.Duration
}

// New creates an engine with no tracks attached.
func New(proc effects.Processor, opts Options) *Engine {
	if opts.MaxChannels <= 0 {
		opts.MaxChannels = player.DefaultMaxChannels
	}
	if opts.PositionInterval <= 0 {
		opts.PositionInterval = 250 * time.Millisecond
	}
	e := &Engine{
		proc:         proc,
		opts:         opts,
		synchronizer: player.NewSynchronizer(opts.MaxChannels, opts.Fade),
		pool:         NewPool(opts.Workers),
		hub:          NewHub(),
		stretch:      1,
	}
	e.mixer = player.NewMixer(e.synchronizer)
	e.synchronizer.OnEnd(func() {
		e.hub.Publish(Event{Type: StateChanged, State: player.Stopped.String()})
		e.hub.Publish(Event{Type: PositionChanged, Millis: 0})
	})
	return e
}

// Mixer returns the mixed output stream.
func (e *Engine) Mixer() *player.Mixer { return e.mixer }

// Events returns the hub on which the engine publishes.
func (e *Engine) Events() *Hub { return e.hub }

// Close waits for running recomputes and stops the worker pool.
func (e *Engine) Close() {
	e.pool.Close()
}

// Wait blocks until every queued recompute has finished.
func (e *Engine) Wait() {
	e.pool.Wait()
}

// Attach decodes paths in parallel and replaces the current track set with
// them, one channel per path in order. An empty path yields a channel with
// no media. If any file fails to decode the previous set stays active.
func (e *Engine) Attach(paths []string) error {
	if len(paths) == 0 || len(paths) > e.opts.MaxChannels {
		return &player.ChannelCountError{Count: len(paths), Max: e.opts.MaxChannels}
	}

	tracks := make([]*track.Track, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			if path == "" {
				tracks[i] = track.New(e.proc)
				return nil
			}
			t, err := track.Open(path, e.proc)
			if err != nil {
				return err
			}
			tracks[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("Attach failed: %v", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bufs := make([]*audio.Buffer, len(tracks))
	for i, t := range tracks {
		bufs[i] = t.Buffer()
	}
	for _, t := range e.tracks {
		t.OnApplied(nil)
	}
	if err := e.synchronizer.Attach(bufs); err != nil {
		return err
	}
	for i, t := range tracks {
		t.OnApplied(func(b *audio.Buffer) {
			if err := e.synchronizer.OnTransformApplied(i, b); err != nil {
				log.Printf("Channel %d: swap: %v", i, err)
			}
		})
	}
	e.tracks = tracks
	e.volumes = make([]float64, len(tracks))
	for i := range e.volumes {
		e.volumes[i] = 100
	}
	e.pitch, e.stretch = 0, 1

	for i, p := range paths {
		if p != "" {
			log.Printf("Channel %d: %s (%s)", i, p, audio.FormatTimestamp(0, bufs[i].Duration()))
		}
	}
	e.hub.Publish(Event{Type: StateChanged, State: player.Stopped.String()})
	e.publishDuration()
	return nil
}

// Play starts all channels.
func (e *Engine) Play() error { return e.transport("play", e.synchronizer.Play) }

// Pause pauses all channels.
func (e *Engine) Pause() error { return e.transport("pause", e.synchronizer.Pause) }

// Stop stops and rewinds all channels.
func (e *Engine) Stop() error { return e.transport("stop", e.synchronizer.Stop) }

// TogglePlay pauses when playing and plays otherwise.
func (e *Engine) TogglePlay() error { return e.transport("toggle", e.synchronizer.TogglePlay) }

func (e *Engine) transport(name string, fn func() error) error {
	err := fn()
	if err != nil {
		log.Printf("%s: %v", name, err)
	}
	e.hub.Publish(Event{Type: StateChanged, State: e.synchronizer.State().String()})
	return err
}

// SeekBegin suspends position events while the user drags a position control.
func (e *Engine) SeekBegin() {
	e.synchronizer.SeekBegin()
}

// SeekEnd moves all channels to position and resumes position events.
func (e *Engine) SeekEnd(position time.Duration) error {
	if position < 0 {
		return fmt.Errorf("%w: negative position %v", ErrInvalid, position)
	}
	e.synchronizer.SeekEnd(position)
	e.hub.Publish(Event{Type: PositionChanged, Millis: e.synchronizer.Position().Milliseconds()})
	return nil
}

// SetChannelVolume sets a channel's volume from a perceptual value in 0..100,
// converted to linear gain with audio.PerceptualToLinear.
func (e *Engine) SetChannelVolume(index int, perceptual float64) error {
	if math.IsNaN(perceptual) || perceptual < 0 || perceptual > 100 {
		return fmt.Errorf("%w: volume must be in [0, 100]: %g", ErrInvalid, perceptual)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.synchronizer.SetVolume(index, audio.PerceptualToLinear(perceptual)); err != nil {
		return err
	}
	e.volumes[index] = perceptual
	return nil
}

// SetMuted mutes or unmutes the whole set.
func (e *Engine) SetMuted(muted bool) {
	e.synchronizer.SetMuted(muted)
}

// SetPlaybackRate changes the speed of every channel.
func (e *Engine) SetPlaybackRate(rate float64) error {
	err := e.synchronizer.SetPlaybackRate(rate)
	var rce *player.RateChangeError
	if errors.As(err, &rce) {
		log.Printf("Rate change: %v", err)
		return err
	}
	if err != nil {
		log.Printf("Rate change to %g: %v", rate, err)
	}
	e.hub.Publish(Event{Type: StateChanged, State: e.synchronizer.State().String()})
	return err
}

// SetPitch shifts every track by semitones, keeping the current stretch.
// Recomputes run in the background; completion is reported through
// TransformApplied and TransformFailed events.
func (e *Engine) SetPitch(semitones int) error {
	if err := effects.ValidateSemitones(semitones); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	e.mu.Lock()
	e.pitch = semitones
	jobs, err := e.requestLocked(func(t *track.Track) (track.Request, error) {
		return t.RequestPitch(semitones)
	})
	e.mu.Unlock()
	return errors.Join(err, e.submit(jobs))
}

// SetStretch time-stretches every track by ratio, keeping the current pitch.
func (e *Engine) SetStretch(ratio float64) error {
	if err := effects.ValidateStretch(ratio); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	e.mu.Lock()
	e.stretch = ratio
	jobs, err := e.requestLocked(func(t *track.Track) (track.Request, error) {
		return t.RequestStretch(ratio)
	})
	e.mu.Unlock()
	return errors.Join(err, e.submit(jobs))
}

type recompute struct {
	index int
	track *track.Track
	req   track.Request
}

// requestLocked stamps one request per loaded track while e.mu is held, so
// the order of requests on every track is the order of the commands.
func (e *Engine) requestLocked(request func(*track.Track) (track.Request, error)) ([]recompute, error) {
	var (
		jobs []recompute
		errs []error
	)
	for i, t := range e.tracks {
		if !t.Loaded() {
			continue
		}
		req, err := request(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, recompute{index: i, track: t, req: req})
	}
	return jobs, errors.Join(errs...)
}

// submit queues the computations on the pool.
func (e *Engine) submit(jobs []recompute) error {
	var errs []error
	for _, j := range jobs {
		err := e.pool.Submit(func() {
			_, err := j.track.Complete(j.req)
			e.finish(j.index, j.track, err)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// finish reports the outcome of one recompute.
func (e *Engine) finish(index int, t *track.Track, err error) {
	if !e.attached(t) {
		return
	}
	switch {
	case errors.Is(err, track.ErrSuperseded):
		log.Printf("Channel %d: recompute superseded", index)
	case err != nil:
		log.Printf("Channel %d: %v", index, err)
		e.hub.Publish(Event{Type: TransformFailed, Channel: index, Reason: err.Error()})
	default:
		log.Printf("Channel %d: applied %s", index, t.Key())
		e.hub.Publish(Event{Type: TransformApplied, Channel: index})
		e.publishDuration()
	}
}

func (e *Engine) attached(t *track.Track) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cur := range e.tracks {
		if cur == t {
			return true
		}
	}
	return false
}

// publishDuration emits DurationChanged when the master duration moved.
func (e *Engine) publishDuration() {
	d := e.synchronizer.Duration()
	e.durMu.Lock()
	changed := d != e.lastDur
	e.lastDur = d
	e.durMu.Unlock()
	if changed {
		e.hub.Publish(Event{Type: DurationChanged, Millis: d.Milliseconds()})
	}
}

// Run publishes PositionChanged events while playing, until ctx is cancelled.
// Nothing is published while a seek gesture is in progress.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.PositionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	if e.synchronizer.State() != player.Playing || !e.synchronizer.PositionSyncActive() {
		return
	}
	e.hub.Publish(Event{Type: PositionChanged, Millis: e.synchronizer.Position().Milliseconds()})
}
