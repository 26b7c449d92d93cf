package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Maig0l/karaoke/internal/audio"
	"github.com/Maig0l/karaoke/internal/config"
	"github.com/Maig0l/karaoke/internal/effects"
	"github.com/Maig0l/karaoke/internal/engine"
	"github.com/Maig0l/karaoke/internal/shell"
	"github.com/Maig0l/karaoke/internal/stream"
	"github.com/Maig0l/karaoke/internal/web"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("karaoke starting up...")
	audio.FFmpegPath = cfg.FFmpegPath

	dsp, err := effects.NewDSP(effects.PitchEngine(cfg.PitchEngine))
	if err != nil {
		log.Fatalf("Effects: %v", err)
	}

	eng := engine.New(dsp, engine.Options{
		MaxChannels:      cfg.MaxChannels,
		Workers:          cfg.Workers,
		PositionInterval: cfg.PositionInterval,
		Fade:             cfg.Fade,
	})
	defer eng.Close()
	go eng.Run(ctx)

	// Tracks from the command line: instrumental first, then vocals
	if paths := os.Args[1:]; len(paths) > 0 {
		if err := eng.Attach(paths); err != nil {
			log.Fatalf("Open tracks: %v", err)
		}
	}

	// Output: the speaker or the real-time pacer pulls the mixer
	var frames <-chan []int16
	switch cfg.Output {
	case config.OutputSpeaker:
		frames, err = stream.PlaySpeaker(ctx, eng.Mixer(), cfg.SpeakerBuffer)
		if err != nil {
			log.Fatalf("Speaker: %v", err)
		}
	case config.OutputStream:
		frames = stream.PlayPaced(ctx, eng.Mixer())
	default:
		log.Fatalf("Unknown output %q (want %s or %s)", cfg.Output, config.OutputStream, config.OutputSpeaker)
	}

	// Broadcaster: fan-out PCM frames to all listeners
	broadcaster := stream.NewBroadcaster()
	broadcaster.SetNowPlaying(eng.Title)
	go broadcaster.Run(ctx, frames)

	if cfg.Shell {
		console := shell.New(eng, cfg.HistoryFile)
		go func() {
			if err := console.Run(ctx); err != nil {
				log.Printf("Console: %v", err)
			}
			cancel()
		}()
	}

	if cfg.Port == 0 {
		<-ctx.Done()
		log.Println("Shutting down...")
		return
	}

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, cfg.OpusBitrate)
	defer webrtcHandler.Close()

	// HTTP routes
	mux := http.NewServeMux()
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, cfg.MP3Bitrate, cfg.FFmpegPath))
	mux.Handle("/offer", webrtcHandler)
	web.NewAPI(eng, broadcaster.Counts).Register(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("karaoke live on %s (output: %s, pitch engine: %s)", addr, cfg.Output, dsp.Engine())
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
