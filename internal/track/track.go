// Package track holds the audio content of one stem: the decoded original,
// the processed variant currently selected for playback, and a cache of every
// variant computed so far.
package track

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Maig0l/karaoke/internal/audio"
	"github.com/Maig0l/karaoke/internal/effects"
)

// ErrSuperseded is returned for a transform whose result was discarded
// because a newer request was issued for the same track meanwhile.
var ErrSuperseded = errors.New("superseded by a newer request")

// ErrNotLoaded is returned for transforms on a track without audio.
var ErrNotLoaded = errors.New("track has no audio loaded")

// EffectProcessingError reports a failed transform. The track keeps playing
// its previous buffer.
type EffectProcessingError struct {
	Key Key
	Err error
}

func (e *EffectProcessingError) Error() string {
	return fmt.Sprintf("effect %s: %v", e.Key, e.Err)
}

func (e *EffectProcessingError) Unwrap() error { return e.Err }

// Track owns an original buffer, the currently selected processed buffer
// and the cache of processed variants.
//
// Transforms always start from the original, keyed by the absolute
// (pitch, stretch) pair, so a cached variant never depends on the order in
// which parameters were changed.
type Track struct {
	proc   effects.Processor
	flight singleflight.Group

	mu        sync.Mutex
	path      string
	gen       uint64 // bumped on every load
	original  *audio.Buffer
	buf       *audio.Buffer
	current   Key
	target    Key    // key of the most recent request
	seq       uint64 // request counter, last writer wins
	cache     *Cache
	onApplied func(*audio.Buffer)
}

// New creates an empty track processed by proc.
func New(proc effects.Processor) *Track {
	return &Track{
		proc:    proc,
		current: Identity,
		target:  Identity,
		cache:   NewCache(nil),
	}
}

// Open creates a track and loads path into it.
func Open(path string, proc effects.Processor) (*Track, error) {
	t := New(proc)
	if err := t.Load(path); err != nil {
		return nil, err
	}
	return t, nil
}

// Load decodes path and makes it the track's original. On failure the track
// is left as it was.
func (t *Track) Load(path string) error {
	b, err := audio.DecodeFile(path)
	if err != nil {
		return err
	}
	t.SetOriginal(path, b)
	return nil
}

// SetOriginal installs an already decoded buffer as the original. The cache
// is reset to the identity entry and in-flight transforms are invalidated.
func (t *Track) SetOriginal(path string, b *audio.Buffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = path
	t.gen++
	t.seq++
	t.original = b
	t.buf = b
	t.current = Identity
	t.target = Identity
	t.cache = NewCache(b)
}

// OnApplied registers fn to be called with each newly installed buffer.
// fn runs while the track is locked and must not call back into the track.
func (t *Track) OnApplied(fn func(*audio.Buffer)) {
	t.mu.Lock()
	t.onApplied = fn
	t.mu.Unlock()
}

// Path returns the file the track was loaded from.
func (t *Track) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Loaded reports whether the track holds audio.
func (t *Track) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.original != nil
}

// Original returns the decoded, unprocessed audio.
func (t *Track) Original() *audio.Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.original
}

// Buffer returns the buffer currently selected for playback.
func (t *Track) Buffer() *audio.Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf
}

// Key returns the parameters of the current buffer.
func (t *Track) Key() Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// CacheLen returns the number of cached variants, identity included.
func (t *Track) CacheLen() int {
	t.mu.Lock()
	c := t.cache
	t.mu.Unlock()
	return c.Len()
}

// Request is a transform stamped with its place in the track's request
// order. Only the most recent Request of a track can be installed.
type Request struct {
	Key      Key
	seq      uint64
	gen      uint64
	original *audio.Buffer
	cache    *Cache
}

// ApplyPitch selects the variant shifted by semitones, combined with the
// most recently requested stretch. It blocks while a cache miss is computed.
func (t *Track) ApplyPitch(semitones int) (*audio.Buffer, error) {
	req, err := t.RequestPitch(semitones)
	if err != nil {
		return nil, err
	}
	return t.Complete(req)
}

// ApplyStretch selects the variant stretched by ratio, combined with the
// most recently requested pitch.
func (t *Track) ApplyStretch(ratio float64) (*audio.Buffer, error) {
	req, err := t.RequestStretch(ratio)
	if err != nil {
		return nil, err
	}
	return t.Complete(req)
}

// RequestPitch records a pitch change and returns the request to pass to
// Complete. Any request made earlier on the track becomes stale.
func (t *Track) RequestPitch(semitones int) (Request, error) {
	if err := effects.ValidateSemitones(semitones); err != nil {
		return Request{}, &EffectProcessingError{Key: NewKey(semitones, 1), Err: err}
	}
	return t.request(func(k Key) Key { return NewKey(semitones, k.Stretch) })
}

// RequestStretch records a stretch change, keeping the requested pitch.
func (t *Track) RequestStretch(ratio float64) (Request, error) {
	if err := effects.ValidateStretch(ratio); err != nil {
		return Request{}, &EffectProcessingError{Key: NewKey(0, ratio), Err: err}
	}
	return t.request(func(k Key) Key { return NewKey(k.Pitch, ratio) })
}

func (t *Track) request(next func(Key) Key) (Request, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.original == nil {
		return Request{}, ErrNotLoaded
	}
	t.seq++
	t.target = next(t.target)
	return Request{
		Key:      t.target,
		seq:      t.seq,
		gen:      t.gen,
		original: t.original,
		cache:    t.cache,
	}, nil
}

// Complete computes or fetches the buffer for req and installs it, unless a
// newer request was made meanwhile, in which case ErrSuperseded is returned.
// A request already stale when Complete starts is not computed at all.
func (t *Track) Complete(req Request) (*audio.Buffer, error) {
	if req.original == nil {
		return nil, ErrNotLoaded
	}
	if t.stale(req) {
		return nil, ErrSuperseded
	}

	buf, err := t.lookup(req.original, req.cache, req.gen, req.Key)

	t.mu.Lock()
	defer t.mu.Unlock()
	if req.seq != t.seq {
		return nil, ErrSuperseded
	}
	if err != nil {
		t.target = t.current
		return nil, &EffectProcessingError{Key: req.Key, Err: err}
	}
	t.current = req.Key
	t.buf = buf
	if t.onApplied != nil {
		t.onApplied(buf)
	}
	return buf, nil
}

func (t *Track) stale(req Request) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return req.seq != t.seq
}

// lookup returns the cached variant for key or computes and stores it.
// Concurrent requests for the same key share one computation.
func (t *Track) lookup(original *audio.Buffer, cache *Cache, gen uint64, key Key) (*audio.Buffer, error) {
	if b, ok := cache.Get(key); ok {
		return b, nil
	}
	v, err, _ := t.flight.Do(fmt.Sprintf("%d/%s", gen, key), func() (any, error) {
		if b, ok := cache.Get(key); ok {
			return b, nil
		}
		b, err := Render(t.proc, original, key)
		if err != nil {
			return nil, err
		}
		return cache.Put(key, b), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*audio.Buffer), nil
}

// Render computes the variant of original described by k: pitch shift first,
// then time stretch.
func Render(p effects.Processor, original *audio.Buffer, k Key) (*audio.Buffer, error) {
	if k.IsIdentity() {
		return original, nil
	}
	b := original
	var err error
	if k.Pitch != 0 {
		if b, err = p.PitchShift(b, k.Pitch); err != nil {
			return nil, fmt.Errorf("pitch shift: %w", err)
		}
	}
	if k.Stretch != 1 {
		if b, err = p.TimeStretch(b, k.Stretch); err != nil {
			return nil, fmt.Errorf("time stretch: %w", err)
		}
	}
	if b == nil {
		return nil, errors.New("processor returned no buffer")
	}
	if b.SampleRate() != original.SampleRate() {
		return nil, fmt.Errorf("processor changed sample rate from %d to %d", original.SampleRate(), b.SampleRate())
	}
	return b, nil
}
