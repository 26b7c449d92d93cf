package stream

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Maig0l/karaoke/internal/audio"
)

// HTTPHandler serves the karaoke mix as a chunked MP3 stream.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	bitrate     string
	ffmpeg      string
}

// NewHTTPHandler creates an HTTP stream handler encoding at bitrate (FFmpeg
// syntax, e.g. "192k") with the given FFmpeg binary.
func NewHTTPHandler(b *Broadcaster, bitrate, ffmpegPath string) *HTTPHandler {
	if bitrate == "" {
		bitrate = "192k"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &HTTPHandler{broadcaster: b, bitrate: bitrate, ffmpeg: ffmpegPath}
}

// encoder returns the FFmpeg command turning mixer PCM on stdin into MP3 on
// stdout, tagged with the current title.
func (h *HTTPHandler) encoder(ctx context.Context, title string) *exec.Cmd {
	return exec.CommandContext(ctx, h.ffmpeg,
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", h.bitrate,
		"-metadata", "title="+title,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	title := h.broadcaster.NowPlaying()
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "karaoke")
	w.Header().Set("ICY-Description", title)
	w.Header().Set("ICY-BR", strings.TrimSuffix(h.bitrate, "k"))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := h.encoder(ctx, title)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("%s stream: stdin pipe error: %v", KindHTTP, err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("%s stream: stdout pipe error: %v", KindHTTP, err)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("%s stream: ffmpeg start error: %v", KindHTTP, err)
		return
	}
	defer cmd.Wait()

	listener := h.broadcaster.Connect(KindHTTP, r.RemoteAddr)
	defer h.broadcaster.Disconnect(listener)

	go func() {
		defer stdin.Close()
		listener.Drain(ctx, func(frame []int16) error {
			_, err := stdin.Write(audio.SamplesToBytes(frame))
			return err
		})
	}()

	if _, err := io.Copy(flushWriter{w: w, f: flusher}, stdout); err != nil && !errors.Is(err, errClientGone) {
		log.Printf("%s stream: ffmpeg read error: %v", KindHTTP, err)
	}
	cancel()
}

var errClientGone = errors.New("client went away")

// flushWriter pushes every MP3 chunk to the client as soon as it is encoded.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err != nil {
		return n, errClientGone
	}
	fw.f.Flush()
	return n, nil
}
