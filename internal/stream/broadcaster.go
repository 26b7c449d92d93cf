// Package stream delivers the mixed karaoke output: to the local audio
// device, and to network listeners over HTTP (MP3) and WebRTC (Opus).
package stream

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// Listener kinds.
const (
	KindHTTP   = "http"
	KindWebRTC = "webrtc"
)

// Broadcaster fans out PCM frames from the mixer to N listeners.
type Broadcaster struct {
	mu         sync.RWMutex
	listeners  map[*Listener]struct{}
	nowPlaying func() string
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	Kind    string
	Addr    string
	C       chan []int16 // buffered channel of 20ms PCM frames
	done    chan struct{}
	dropped atomic.Int64
}

// Dropped returns how many frames were skipped because the listener fell
// behind.
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// SetNowPlaying sets the function describing what is being played. It is
// shown to listeners as the stream title.
func (b *Broadcaster) SetNowPlaying(fn func() string) {
	b.mu.Lock()
	b.nowPlaying = fn
	b.mu.Unlock()
}

// NowPlaying returns the current stream title, "karaoke" when nothing is
// attached.
func (b *Broadcaster) NowPlaying() string {
	b.mu.RLock()
	fn := b.nowPlaying
	b.mu.RUnlock()
	if fn != nil {
		if title := fn(); title != "" {
			return title
		}
	}
	return "karaoke"
}

// Connect subscribes a listener for a remote peer and logs it.
func (b *Broadcaster) Connect(kind, addr string) *Listener {
	l := b.Subscribe(kind)
	l.Addr = addr
	log.Printf("%s listener connected from %s (total: %d, playing: %s)", kind, addr, b.ListenerCount(), b.NowPlaying())
	return l
}

// Disconnect unsubscribes a listener added with Connect and logs it.
func (b *Broadcaster) Disconnect(l *Listener) {
	b.Unsubscribe(l)
	log.Printf("%s listener %s disconnected (dropped %d frames, remaining: %d)", l.Kind, l.Addr, l.Dropped(), b.ListenerCount())
}

// Drain passes every frame to fn until ctx is done, the listener is
// unsubscribed or fn fails. It returns fn's error, or nil.
func (l *Listener) Drain(ctx context.Context, fn func(frame []int16) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case frame, ok := <-l.C:
			if !ok {
				return nil
			}
			if err := fn(frame); err != nil {
				return err
			}
		}
	}
}

// Subscribe registers a new listener of the given kind.
func (b *Broadcaster) Subscribe(kind string) *Listener {
	l := &Listener{
		Kind: kind,
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Counts returns the number of active listeners per kind.
func (b *Broadcaster) Counts() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int)
	for l := range b.listeners {
		out[l.Kind]++
	}
	return out
}

// Run reads frames from source and fans out to all listeners.
// Slow listeners get frames dropped rather than blocking the mixer.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
