package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/Maig0l/karaoke/internal/audio"
)

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus streaming,
// which keeps a singer's monitor close to the live mix.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	bitrate     int
	mu          sync.Mutex
	peers       map[*webrtc.PeerConnection]context.CancelFunc
}

// NewWebRTCHandler creates a WebRTC stream handler encoding Opus at bitrate
// bits per second.
func NewWebRTCHandler(b *Broadcaster, bitrate int) *WebRTCHandler {
	if bitrate <= 0 {
		bitrate = 128000
	}
	return &WebRTCHandler{
		broadcaster: b,
		bitrate:     bitrate,
		peers:       make(map[*webrtc.PeerConnection]context.CancelFunc),
	}
}

// Close hangs up every connected peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*webrtc.PeerConnection]context.CancelFunc)
	h.mu.Unlock()
	for pc, stop := range peers {
		stop()
		pc.Close()
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, audioTrack, status, err := negotiate(r.Context(), offer)
	if err != nil {
		log.Printf("%s: negotiation with %s failed: %v", KindWebRTC, r.RemoteAddr, err)
		http.Error(w, err.Error(), status)
		return
	}

	ctx, stop := context.WithCancel(context.Background())
	h.mu.Lock()
	h.peers[pc] = stop
	h.mu.Unlock()

	go h.streamToPeer(ctx, r.RemoteAddr, audioTrack)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			h.removePeer(pc)
			pc.Close()
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Karaoke-Title", h.broadcaster.NowPlaying())
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// negotiate answers offer with a peer connection carrying one Opus track for
// the mix, and waits for ICE gathering. On failure it returns the HTTP status
// to report.
func negotiate(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, int, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, http.StatusInternalServerError, fmt.Errorf("create peer connection: %w", err)
	}
	fail := func(status int, step string, err error) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, int, error) {
		pc.Close()
		return nil, nil, status, fmt.Errorf("%s: %w", step, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"mix",
		"karaoke-mix",
	)
	if err != nil {
		return fail(http.StatusInternalServerError, "create audio track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(http.StatusInternalServerError, "add track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(http.StatusBadRequest, "set remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(http.StatusInternalServerError, "create answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(http.StatusInternalServerError, "set local description", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return fail(http.StatusServiceUnavailable, "ice gathering", ctx.Err())
	}
	return pc, track, 0, nil
}

// streamToPeer encodes mixer frames to Opus and writes them to the peer's
// track until the peer goes away.
func (h *WebRTCHandler) streamToPeer(ctx context.Context, addr string, track *webrtc.TrackLocalStaticSample) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("%s: opus encoder error: %v", KindWebRTC, err)
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		log.Printf("%s: opus bitrate %d: %v", KindWebRTC, h.bitrate, err)
	}

	listener := h.broadcaster.Connect(KindWebRTC, addr)
	defer h.broadcaster.Disconnect(listener)

	packet := make([]byte, 4000)
	listener.Drain(ctx, func(frame []int16) error {
		n, err := enc.Encode(frame, packet)
		if err != nil {
			log.Printf("%s: opus encode error: %v", KindWebRTC, err)
			return nil
		}
		return track.WriteSample(media.Sample{
			Data:     packet[:n],
			Duration: audio.FrameDuration,
		})
	})
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	stop, ok := h.peers[pc]
	delete(h.peers, pc)
	h.mu.Unlock()
	if ok {
		stop()
	}
}
