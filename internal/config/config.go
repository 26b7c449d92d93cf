package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Output drivers.
const (
	OutputStream  = "stream"  // ticker-paced, network listeners only
	OutputSpeaker = "speaker" // local audio device, also fed to listeners
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int // 0 disables HTTP

	// Engine
	MaxChannels      int
	Workers          int           // effect recompute goroutines
	PositionInterval time.Duration // position event period
	PitchEngine      string        // wsola or spectral
	Fade             time.Duration // fade-in when a channel starts

	// Output
	Output        string
	SpeakerBuffer time.Duration
	OpusBitrate   int
	MP3Bitrate    string
	FFmpegPath    string

	// Console
	Shell       bool
	HistoryFile string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("KARAOKE_PORT", 8080),

		MaxChannels:      envInt("KARAOKE_MAX_CHANNELS", 2),
		Workers:          envInt("KARAOKE_WORKERS", 2),
		PositionInterval: time.Duration(envInt("KARAOKE_POSITION_INTERVAL_MS", 250)) * time.Millisecond,
		PitchEngine:      strings.ToLower(envStr("KARAOKE_PITCH_ENGINE", "wsola")),
		Fade:             time.Duration(envFloat("KARAOKE_FADE_MS", 10) * float64(time.Millisecond)),

		Output:        strings.ToLower(envStr("KARAOKE_OUTPUT", OutputStream)),
		SpeakerBuffer: time.Duration(envInt("KARAOKE_SPEAKER_BUFFER_MS", 100)) * time.Millisecond,
		OpusBitrate:   envInt("KARAOKE_OPUS_BITRATE", 128000),
		MP3Bitrate:    envStr("KARAOKE_MP3_BITRATE", "192k"),
		FFmpegPath:    envStr("KARAOKE_FFMPEG", "ffmpeg"),

		Shell:       envBool("KARAOKE_SHELL", true),
		HistoryFile: envStr("KARAOKE_HISTORY", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
