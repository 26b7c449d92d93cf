package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// DecodeError reports a file that could not be turned into a Buffer.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FFmpegPath is the binary used for formats without a native decoder.
var FFmpegPath = "ffmpeg"

// DecodeFile decodes a whole audio file into memory. WAV, FLAC, MP3 and Ogg
// Vorbis are decoded natively at the file's own rate; anything else goes
// through FFmpeg and comes back as 48kHz stereo.
func DecodeFile(path string) (*Buffer, error) {
	var (
		buf *Buffer
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave", ".flac", ".mp3", ".ogg", ".oga":
		buf, err = decodeNative(path)
	default:
		buf, err = decodeFFmpeg(path)
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if buf.Frames() == 0 {
		return nil, &DecodeError{Path: path, Err: errors.New("no audio frames")}
	}
	return buf, nil
}

func decodeNative(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		s, format, err = wav.Decode(f)
	case ".flac":
		s, format, err = flac.Decode(f)
	case ".mp3":
		s, format, err = mp3.Decode(f)
	default:
		s, format, err = vorbis.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	defer s.Close()

	return readStreamer(s, format)
}

// readStreamer drains s into a planar Buffer.
func readStreamer(s beep.Streamer, format beep.Format) (*Buffer, error) {
	channels := format.NumChannels
	if channels < 1 || channels > 2 {
		channels = 2
	}
	data := make([][]float64, channels)

	chunk := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(chunk)
		for i := 0; i < n; i++ {
			for ch := range data {
				data[ch] = append(data[ch], chunk[i][ch])
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return NewBuffer(int(format.SampleRate), data)
}

// decodeFFmpeg runs FFmpeg to decode an audio file to raw PCM int16 samples
// (interleaved stereo at 48kHz).
func decodeFFmpeg(path string) (*Buffer, error) {
	cmd := exec.Command(FFmpegPath,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return FromInterleaved(SampleRate, Channels, samples)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
